// Package metrics emits one record per execution to an external store.
// Emission is fire-and-forget: a sink failure is logged and never fails
// or mutates the execution result.
package metrics

import (
	"strings"
	"time"

	"github.com/judgecore/executor/api"
)

// Caps applied to free-form text before emission.
const (
	maxTextHeight = 40
	maxTextWidth  = 160
)

// Record is the per-execution metrics payload.
type Record struct {
	ExecutionID  string `json:"execution_id"`
	SubmissionID string `json:"submission_id,omitempty"`
	TeamID       string `json:"team_id,omitempty"`
	ContestID    string `json:"contest_id,omitempty"`

	Language string      `json:"language"`
	Verdict  api.Verdict `json:"verdict"`
	Success  bool        `json:"success"`

	WallTimeMs         int64 `json:"wall_time_ms"`
	NetExecutionTimeMs int64 `json:"net_execution_time_ms"`
	CompileTimeMs      int64 `json:"compile_time_ms,omitempty"`
	CpuTimeMs          int64 `json:"cpu_time_ms"`
	PeakMemoryMb       int64 `json:"peak_memory_mb"`

	SecurityViolations int `json:"security_violations,omitempty"`

	// Stderr is trimmed to a bounded rectangle for failed runs.
	Stderr string `json:"stderr,omitempty"`

	FinishedAt time.Time `json:"finished_at"`
}

// Sink receives execution records. Implementations must be safe for
// concurrent use and must not block indefinitely.
type Sink interface {
	Emit(rec Record)
}

// NewRecord builds the metrics record for a finished execution.
func NewRecord(req api.ExecutionRequest, res *api.ExecutionResult) Record {
	rec := Record{
		ExecutionID:        res.ExecutionID,
		SubmissionID:       req.Metadata.SubmissionID,
		TeamID:             req.Metadata.TeamID,
		ContestID:          req.Metadata.ContestID,
		Language:           req.Language,
		Verdict:            res.Verdict,
		Success:            res.Verdict == api.Accepted,
		WallTimeMs:         res.WallTimeMs,
		NetExecutionTimeMs: res.NetExecutionTimeMs,
		CompileTimeMs:      res.CompileTimeMs,
		CpuTimeMs:          res.Monitoring.CpuTimeMs,
		PeakMemoryMb:       res.PeakMemoryMb,
		SecurityViolations: len(res.Monitoring.SecurityViolations),
		FinishedAt:         time.Now().UTC(),
	}
	if res.Verdict != api.Accepted {
		rec.Stderr = trimToRect(res.Stderr, maxTextHeight, maxTextWidth)
	}
	return rec
}

func trimToRect(s string, maxHeight, maxWidth int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
		lines = append(lines, "[...]")
	}
	res := ""
	for i, line := range lines {
		if i > 0 {
			res += "\n"
		}
		if len(line) > maxWidth {
			res += line[:maxWidth] + "[...]"
		} else {
			res += line
		}
	}
	return res
}

// Discard is a no-op sink.
type Discard struct{}

func (Discard) Emit(Record) {}
