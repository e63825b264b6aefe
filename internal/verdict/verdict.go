// Package verdict maps the observed behavior of one execution to its
// final classification. Resolution is a pure function with a total,
// deterministic precedence order; output correctness is out of scope and
// judged downstream.
package verdict

import "github.com/judgecore/executor/api"

// Evidence is everything the resolver may consider.
type Evidence struct {
	// Orchestration itself failed: spawn error, workspace IO error,
	// unparsable sandbox handoff with no usable exit code.
	SystemFailure bool

	CompileFailed bool

	// Watchdog fired, or the runtime reported a timeout kill.
	TimedOut bool

	// Sampled peak memory breached the adjusted limit, or the runtime
	// reported an OOM kill.
	MemoryExceeded bool

	SecurityViolations []api.Violation

	ExitCode int64
	Signal   *int64
}

// Resolve returns the verdict, first match wins:
// system error, compile error, time limit, memory limit, security
// violation, runtime error, accepted.
func Resolve(e Evidence) api.Verdict {
	switch {
	case e.SystemFailure:
		return api.SystemError
	case e.CompileFailed:
		return api.CompileError
	case e.TimedOut:
		return api.TimeLimitExceeded
	case e.MemoryExceeded:
		return api.MemoryLimitExceeded
	case len(e.SecurityViolations) > 0:
		return api.SecurityViolation
	case e.Signal != nil:
		return api.RuntimeError
	case e.ExitCode != 0:
		return api.RuntimeError
	default:
		return api.Accepted
	}
}
