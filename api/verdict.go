package api

// Verdict classifies how one execution attempt behaved. It says nothing
// about output correctness; answer checking consumes Stdout together with
// Verdict == Accepted downstream.
type Verdict string

const (
	Accepted            Verdict = "AC"
	CompileError        Verdict = "CE"
	TimeLimitExceeded   Verdict = "TLE"
	MemoryLimitExceeded Verdict = "MLE"
	SecurityViolation   Verdict = "SV"
	RuntimeError        Verdict = "RE"
	SystemError         Verdict = "ISE"
)

var verdictNames = map[Verdict]string{
	Accepted:            "Accepted",
	CompileError:        "Compile Error",
	TimeLimitExceeded:   "Time Limit Exceeded",
	MemoryLimitExceeded: "Memory Limit Exceeded",
	SecurityViolation:   "Security Violation",
	RuntimeError:        "Runtime Error",
	SystemError:         "System Error",
}

func (v Verdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return string(v)
}

// IsTerminalFailure reports whether the verdict precludes answer checking.
func (v Verdict) IsTerminalFailure() bool {
	return v != Accepted
}
