package sandbox

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Conventional exit codes of the in-container entrypoint: timeout(1)
// reports 124 on a timeout kill and the kernel's SIGKILL path yields 137.
const (
	exitCodeTimeout = 124
	exitCodeKilled  = 137
)

// entrypointResult is the structured handoff written by the judge
// entrypoint to result.json inside the workspace mount.
type entrypointResult struct {
	ExitCode     int64 `json:"exit_code"`
	WallMs       int64 `json:"wall_ms"`
	TimedOut     bool  `json:"timed_out"`
	OomKilled    bool  `json:"oom_killed"`
	PeakMemoryKb int64 `json:"peak_memory_kb"`
}

func parseEntrypointResult(workspaceDir string) (*entrypointResult, error) {
	data, err := os.ReadFile(filepath.Join(workspaceDir, "result.json"))
	if err != nil {
		return nil, fmt.Errorf("entrypoint result missing: %w", err)
	}
	var res entrypointResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("entrypoint result unparsable: %w", err)
	}
	return &res, nil
}

// applyExitCodeFallback derives a coarse classification when the
// structured result never materialized: 0 is an accepted candidate, 124
// a timeout, 137 a kill (treated as a memory kill), everything else a
// runtime failure expressed through the code itself.
func applyExitCodeFallback(out *Outcome, statusCode int64) {
	out.ExitCode = statusCode
	switch statusCode {
	case 0:
	case exitCodeTimeout:
		out.TimedOut = true
	case exitCodeKilled:
		out.OomKilled = true
	}
}

func readWorkspaceFile(dir, name string, maxBytes int64) (string, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// cappedSink collects stream bytes up to a hard cap and drops the rest.
type cappedSink struct {
	b     strings.Builder
	limit int64
}

func (s *cappedSink) Write(p []byte) (int, error) {
	room := s.limit - int64(s.b.Len())
	if room > 0 {
		if int64(len(p)) < room {
			room = int64(len(p))
		}
		s.b.Write(p[:room])
	}
	return len(p), nil
}

func (s *cappedSink) String() string { return s.b.String() }
