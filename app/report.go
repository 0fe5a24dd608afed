package app

import (
	"sort"

	"mkernel/kernel"
)

// Report is the outcome of a run.
type Report struct {
	Name      string
	Completed bool
	Switches  uint64
	Processes []ProcessReport
	Panic     *kernel.PanicInfo

	TLBLookups uint64
	TLBMisses  uint64
	// TraceRun identifies the recorded events, if tracing was enabled.
	TraceRun string
}

// ProcessReport is the final state of one process.
type ProcessReport struct {
	Pid      kernel.Pid
	Name     string
	Task     string
	Priority kernel.Priority
	Exited   bool
	// Status is the last known status of a process that did not exit.
	Status kernel.Status
	Err    error
}

// OK reports whether every process exited cleanly and the kernel never halted.
func (r *Report) OK() bool {
	if !r.Completed || r.Panic != nil {
		return false
	}
	for _, p := range r.Processes {
		if !p.Exited || p.Err != nil {
			return false
		}
	}
	return true
}

// Blocked lists the processes left waiting for a partner.
func (r *Report) Blocked() []ProcessReport {
	var out []ProcessReport
	for _, p := range r.Processes {
		if !p.Exited && p.Status.Blocked() {
			out = append(out, p)
		}
	}
	return out
}

// report collects the outcome. The kernel is queried only once it is quiet.
func (s *System) report(quiet bool) *Report {
	r := &Report{Completed: quiet}
	r.TLBLookups, r.TLBMisses = s.host.HostMemory().TLBStats()

	status := make(map[kernel.Pid]kernel.Status)
	if quiet {
		if n, err := s.k.Switches(); err == nil {
			r.Switches = n
		}
		if snap, err := s.k.Snapshot(); err == nil {
			for _, info := range snap {
				status[info.Pid] = info.Status
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r.Panic = s.panic
	for _, p := range s.procs {
		r.Processes = append(r.Processes, ProcessReport{
			Pid:      p.pid,
			Name:     p.name,
			Task:     p.kind,
			Priority: p.priority,
			Exited:   s.exited[p.pid],
			Status:   status[p.pid],
			Err:      s.results[p.pid],
		})
	}
	sort.Slice(r.Processes, func(i, j int) bool { return r.Processes[i].Pid < r.Processes[j].Pid })
	return r
}
