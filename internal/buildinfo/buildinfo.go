// Package buildinfo carries the version stamped into ksim by the linker.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Set at build time via -ldflags "-X mkernel/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func init() {
	if Commit != "unknown" {
		return
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			Commit = s.Value
		case "vcs.time":
			Date = s.Value
		}
	}
}

// Short returns the release version, or the abbreviated commit for dev builds.
func Short() string {
	if Version != "dev" {
		return Version
	}
	if len(Commit) > 12 {
		return Commit[:12]
	}
	if Commit != "unknown" {
		return Commit
	}
	return "dev"
}

// String is the one-line banner printed by "ksim version".
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
