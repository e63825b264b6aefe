package metrics

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/judgecore/executor/api"
)

// TermSink renders records to the terminal for operator use.
type TermSink struct{}

func NewTermSink() *TermSink { return &TermSink{} }

var verdictColors = map[api.Verdict]*color.Color{
	api.Accepted:            color.New(color.FgHiGreen),
	api.CompileError:        color.New(color.FgYellow),
	api.TimeLimitExceeded:   color.New(color.FgHiYellow),
	api.MemoryLimitExceeded: color.New(color.FgHiYellow),
	api.SecurityViolation:   color.New(color.FgHiRed),
	api.RuntimeError:        color.New(color.FgRed),
	api.SystemError:         color.New(color.FgHiMagenta),
}

func (TermSink) Emit(rec Record) {
	c, ok := verdictColors[rec.Verdict]
	if !ok {
		c = color.New(color.FgWhite)
	}
	fmt.Printf("[%s] %s lang=%s wall=%dms cpu=%dms mem=%dMB\n",
		c.Sprint(rec.Verdict), rec.ExecutionID, rec.Language,
		rec.WallTimeMs, rec.CpuTimeMs, rec.PeakMemoryMb)
	if rec.Stderr != "" {
		fmt.Printf("  stderr:\n%s\n", rec.Stderr)
	}
}
