package api

// ViolationKind is the category of a detected security violation.
type ViolationKind string

const (
	ViolationFileAccess    ViolationKind = "file_access"
	ViolationNetworkAccess ViolationKind = "network_access"
	ViolationSyscall       ViolationKind = "syscall"
	ViolationPrivilege     ViolationKind = "privilege_escalation"
	ViolationSandboxEscape ViolationKind = "sandbox_escape"
)

// Violation is one detected security-relevant event, recorded by the
// detection layer over captured output and exit signals.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Pattern string        `json:"pattern"`
	Detail  string        `json:"detail,omitempty"`
}

// RuntimeMetrics carries resource accounting harvested during and after
// the run. Fields degrade to zero on platforms without process accounting.
type RuntimeMetrics struct {
	CpuTimeMs       int64 `json:"cpu_time_ms"`
	CtxSwVoluntary  int64 `json:"ctx_sw_voluntary"`
	CtxSwForced     int64 `json:"ctx_sw_forced"`
	MajorPageFaults int64 `json:"major_page_faults"`
	MinorPageFaults int64 `json:"minor_page_faults"`

	ResourceViolations []string    `json:"resource_violations,omitempty"`
	SecurityViolations []Violation `json:"security_violations,omitempty"`
}

// ExecutionResult is the single terminal value produced for every accepted
// ExecutionRequest. Immutable once returned.
type ExecutionResult struct {
	ExecutionID string  `json:"execution_id"`
	Verdict     Verdict `json:"verdict"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	ExitCode int64  `json:"exit_code"`
	Signal   *int64 `json:"signal,omitempty"`

	WallTimeMs         int64 `json:"wall_time_ms"`
	NetExecutionTimeMs int64 `json:"net_execution_time_ms"`
	CompileTimeMs      int64 `json:"compile_time_ms,omitempty"`
	PeakMemoryMb       int64 `json:"peak_memory_mb"`

	Monitoring RuntimeMetrics `json:"monitoring"`
}
