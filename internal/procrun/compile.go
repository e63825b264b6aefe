package procrun

import (
	"github.com/judgecore/executor/internal/lang"
)

// CompileResult reports one compilation attempt. A failed compilation is
// terminal for the execution; it is not an infrastructure error.
type CompileResult struct {
	Success     bool
	Diagnostics string
	DurationMs  int64
	Outcome     *Outcome
}

// Compile runs the language's compile command inside the workspace
// directory. The compiler is trusted, but still bounded: it gets a
// timeout and capped output like any other child.
func (r *Runner) Compile(workspaceDir string, profile *lang.Profile) (*CompileResult, error) {
	if !profile.NeedsCompilation() {
		return &CompileResult{Success: true}, nil
	}

	out, err := r.Run(Spec{
		Command:   *profile.CompileCmd,
		Dir:       workspaceDir,
		TimeoutMs: profile.CompileTimeoutMs,
	})
	if err != nil {
		return nil, err
	}

	res := &CompileResult{
		Success:     out.ExitCode == 0 && !out.TimedOut,
		DurationMs:  out.WallTimeMs,
		Outcome:     out,
		Diagnostics: out.Stderr,
	}
	if res.Diagnostics == "" && !res.Success {
		res.Diagnostics = out.Stdout
	}
	return res, nil
}
