package api

// SecurityLevel selects how aggressively captured output is scanned for
// sandbox-escape signatures. It does not affect OS-level containment.
type SecurityLevel string

const (
	SecurityLow  SecurityLevel = "low"
	SecurityHigh SecurityLevel = "high"
)

// ExecutionRequest describes one execution attempt of untrusted source code.
// It is constructed by the caller and never mutated afterwards.
type ExecutionRequest struct {
	Language   string `json:"language"`
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin,omitempty"`

	TimeLimitMs   int64 `json:"time_limit_ms"`
	MemoryLimitMb int64 `json:"memory_limit_mb"`

	SecurityLevel SecurityLevel `json:"security_level,omitempty"`
	Containerized bool          `json:"containerized,omitempty"`

	Metadata Metadata `json:"metadata,omitempty"`
}

// Metadata is an opaque passthrough identifying the submission for metrics.
// The execution core never branches on it.
type Metadata struct {
	SubmissionID string `json:"submission_id,omitempty"`
	TeamID       string `json:"team_id,omitempty"`
	ContestID    string `json:"contest_id,omitempty"`
}
