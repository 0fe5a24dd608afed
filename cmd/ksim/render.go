package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"mkernel/app"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
)

func printReport(w io.Writer, rep *app.Report) {
	verdict := okColor.Sprint("ok")
	switch {
	case rep.Panic != nil:
		verdict = failColor.Sprint("halted")
	case !rep.Completed:
		verdict = failColor.Sprint("interrupted")
	case !rep.OK():
		verdict = warnColor.Sprint("incomplete")
	}
	fmt.Fprintf(w, "== %s: %s (%d switches, tlb %d/%d misses)\n",
		rep.Name, verdict, rep.Switches, rep.TLBMisses, rep.TLBLookups)
	if rep.TraceRun != "" {
		fmt.Fprintf(w, "   trace %s\n", rep.TraceRun)
	}

	for _, p := range rep.Processes {
		state := okColor.Sprint("exited")
		if !p.Exited {
			state = warnColor.Sprint(p.Status.String())
		}
		fmt.Fprintf(w, "   %3d %-12s %-6s prio %-2d %s", p.Pid, p.Name, p.Task, p.Priority, state)
		if p.Err != nil {
			fmt.Fprintf(w, "  %s", failColor.Sprint(p.Err))
		}
		fmt.Fprintln(w)
	}
	if rep.Panic != nil {
		fmt.Fprintf(w, "   panic in pid %d: %s\n", rep.Panic.Pid, failColor.Sprint(rep.Panic.Err))
	}
}
