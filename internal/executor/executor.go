// Package executor orchestrates one execution attempt end to end:
// request validation, workspace staging, compilation, supervised
// execution (in-process or containerized), verdict resolution, cleanup
// and metrics emission.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/judgecore/executor/api"
	"github.com/judgecore/executor/internal/lang"
	"github.com/judgecore/executor/internal/metrics"
	"github.com/judgecore/executor/internal/monitor"
	"github.com/judgecore/executor/internal/procrun"
	"github.com/judgecore/executor/internal/registry"
	"github.com/judgecore/executor/internal/sandbox"
	"github.com/judgecore/executor/internal/security"
	"github.com/judgecore/executor/internal/verdict"
	"github.com/judgecore/executor/internal/workspace"
)

// Request validation errors: the only condition under which Execute
// returns an error instead of a result.
var (
	ErrEmptySource   = errors.New("source code is empty")
	ErrInvalidLimits = errors.New("time and memory limits must be positive")
)

// Config holds the executor's host-level settings.
type Config struct {
	WorkspaceRoot  string
	MaxConcurrent  int64
	SandboxImage   string
	MaxOutputBytes int64
}

// Executor owns the execution pipeline. One instance serves many
// concurrent executions up to the configured ceiling.
type Executor struct {
	cfg    Config
	langs  *lang.Store
	wsm    *workspace.Manager
	runner *procrun.Runner
	box    *sandbox.Runner
	mon    *monitor.Monitor
	reg    *registry.Registry
	sink   metrics.Sink
	logger *slog.Logger
}

// Options carries optional collaborators; nil fields get defaults.
type Options struct {
	Langs   *lang.Store
	Sink    metrics.Sink
	Sampler monitor.ResourceSampler

	// Sandbox may be nil; containerized requests then fall back to the
	// in-process runner.
	Sandbox *sandbox.Runner
}

func New(cfg Config, opts Options, logger *slog.Logger) (*Executor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = procrun.DefaultMaxOutputBytes
	}
	if opts.Langs == nil {
		opts.Langs = lang.Default()
	}
	if opts.Sink == nil {
		opts.Sink = metrics.Discard{}
	}
	if opts.Sampler == nil {
		opts.Sampler = monitor.NewPlatformSampler()
	}

	wsm, err := workspace.NewManager(cfg.WorkspaceRoot, logger)
	if err != nil {
		return nil, err
	}

	return &Executor{
		cfg:    cfg,
		langs:  opts.Langs,
		wsm:    wsm,
		runner: procrun.NewRunner(logger),
		box:    opts.Sandbox,
		mon:    monitor.New(opts.Sampler, logger),
		reg:    registry.New(cfg.MaxConcurrent),
		sink:   opts.Sink,
		logger: logger,
	}, nil
}

// Registry exposes the in-flight execution registry for status reporting.
func (e *Executor) Registry() *registry.Registry { return e.reg }

// Shutdown force-kills every in-flight execution. Individual Execute
// calls observe the kill and unwind through their normal cleanup paths.
func (e *Executor) Shutdown() {
	n := e.reg.KillAll()
	if n > 0 {
		e.logger.Warn("emergency shutdown killed executions", "count", n)
	}
}

// Execute runs one request to completion. For a well-formed request the
// caller always receives a result, never an error: every infrastructure
// failure is folded into a SystemError verdict. Malformed requests are
// rejected before any resource is allocated.
func (e *Executor) Execute(ctx context.Context, req api.ExecutionRequest) (*api.ExecutionResult, error) {
	profile, err := e.langs.Get(req.Language)
	if err != nil {
		return nil, err
	}
	if req.SourceCode == "" {
		return nil, ErrEmptySource
	}
	if req.TimeLimitMs <= 0 || req.MemoryLimitMb <= 0 {
		return nil, ErrInvalidLimits
	}

	execID := uuid.NewString()
	logger := e.logger.With("execution_id", execID, "language", req.Language)

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var liveProc atomic.Pointer[os.Process]
	kill := func() {
		cancel()
		if p := liveProc.Load(); p != nil {
			procrun.KillGroup(p)
		}
	}

	handle := &registry.Handle{
		ID:        execID,
		Language:  req.Language,
		StartedAt: time.Now(),
		Kill:      kill,
	}
	if err := e.reg.Register(execCtx, handle); err != nil {
		return e.finish(req, e.systemError(execID, logger, fmt.Errorf("failed to register execution: %w", err))), nil
	}
	defer e.reg.Remove(execID)

	ws, err := e.wsm.Stage(execID, profile.CodeFilename, req.SourceCode, req.Stdin)
	if err != nil {
		return e.finish(req, e.systemError(execID, logger, err)), nil
	}
	defer ws.Dispose()

	compileRes, err := e.runner.Compile(ws.Dir, profile)
	if err != nil {
		return e.finish(req, e.systemError(execID, logger, err)), nil
	}
	if !compileRes.Success {
		logger.Info("compilation failed")
		res := &api.ExecutionResult{
			ExecutionID:   execID,
			Verdict:       verdict.Resolve(verdict.Evidence{CompileFailed: true}),
			Stderr:        compileRes.Diagnostics,
			CompileTimeMs: compileRes.DurationMs,
		}
		if compileRes.Outcome != nil {
			res.ExitCode = compileRes.Outcome.ExitCode
		}
		return e.finish(req, res), nil
	}

	adjTimeMs := profile.AdjustedTimeLimitMs(req.TimeLimitMs)
	adjMemMb := profile.AdjustedMemoryLimitMb(req.MemoryLimitMb)

	var res *api.ExecutionResult
	if req.Containerized && e.box != nil {
		res = e.runContainerized(execCtx, execID, logger, req, ws, adjTimeMs, adjMemMb)
	} else {
		res = e.runInProcess(execID, logger, req, profile, ws, &liveProc, adjTimeMs, adjMemMb)
	}
	res.CompileTimeMs = compileRes.DurationMs

	logger.Info("execution finished",
		"verdict", res.Verdict, "wall_ms", res.WallTimeMs, "peak_mb", res.PeakMemoryMb)
	return e.finish(req, res), nil
}

func (e *Executor) runInProcess(
	execID string,
	logger *slog.Logger,
	req api.ExecutionRequest,
	profile *lang.Profile,
	ws *workspace.Workspace,
	liveProc *atomic.Pointer[os.Process],
	adjTimeMs, adjMemMb int64,
) *api.ExecutionResult {
	var watch *monitor.Watch

	out, err := e.runner.Run(procrun.Spec{
		Command:        profile.ExecuteCmd,
		Dir:            ws.Dir,
		Stdin:          req.Stdin,
		TimeoutMs:      adjTimeMs,
		MaxOutputBytes: e.cfg.MaxOutputBytes,
		OnStart: func(proc *os.Process) {
			liveProc.Store(proc)
			watch = e.mon.Watch(proc.Pid, adjMemMb*1024, func() {
				procrun.KillGroup(proc)
			})
		},
	})

	var report monitor.Report
	if watch != nil {
		report = watch.Stop()
	}

	if err != nil {
		return e.systemError(execID, logger, err)
	}

	violations := security.NewDetector(req.SecurityLevel).Scan(out.Stderr, out.Signal)

	resourceViolations := report.ResourceViolations
	if out.OutputClipped {
		resourceViolations = append(resourceViolations, "output byte cap exceeded")
	}

	v := verdict.Resolve(verdict.Evidence{
		TimedOut:           out.TimedOut,
		MemoryExceeded:     report.MemoryExceeded,
		SecurityViolations: violations,
		ExitCode:           out.ExitCode,
		Signal:             out.Signal,
	})

	return &api.ExecutionResult{
		ExecutionID:        execID,
		Verdict:            v,
		Stdout:             out.Stdout,
		Stderr:             out.Stderr,
		ExitCode:           out.ExitCode,
		Signal:             out.Signal,
		WallTimeMs:         out.WallTimeMs,
		NetExecutionTimeMs: out.WallTimeMs,
		PeakMemoryMb:       (report.PeakRssKb + 1023) / 1024,
		Monitoring: api.RuntimeMetrics{
			CpuTimeMs:          report.CpuTimeMs,
			CtxSwVoluntary:     report.CtxSwVoluntary,
			CtxSwForced:        report.CtxSwForced,
			MajorPageFaults:    report.MajorPageFaults,
			MinorPageFaults:    report.MinorPageFaults,
			ResourceViolations: resourceViolations,
			SecurityViolations: violations,
		},
	}
}

func (e *Executor) runContainerized(
	ctx context.Context,
	execID string,
	logger *slog.Logger,
	req api.ExecutionRequest,
	ws *workspace.Workspace,
	adjTimeMs, adjMemMb int64,
) *api.ExecutionResult {
	out, err := e.box.Run(ctx, sandbox.RunSpec{
		ExecutionID:    execID,
		WorkspaceDir:   ws.Dir,
		Language:       req.Language,
		TimeLimitMs:    adjTimeMs,
		MemoryLimitMb:  adjMemMb,
		MaxOutputBytes: e.cfg.MaxOutputBytes,
	})
	if err != nil {
		return e.systemError(execID, logger, err)
	}

	violations := security.NewDetector(req.SecurityLevel).Scan(out.Stderr, out.Signal)

	v := verdict.Resolve(verdict.Evidence{
		TimedOut:           out.TimedOut,
		MemoryExceeded:     out.OomKilled,
		SecurityViolations: violations,
		ExitCode:           out.ExitCode,
		Signal:             out.Signal,
	})

	net := out.WallTimeMs
	if !out.Parsed {
		// Without the structured handoff, wall time includes container
		// startup; subtract the measured overhead.
		net = out.WallTimeMs - out.ContainerOverheadMs
		if net < 0 {
			net = 0
		}
	}

	return &api.ExecutionResult{
		ExecutionID:        execID,
		Verdict:            v,
		Stdout:             out.Stdout,
		Stderr:             out.Stderr,
		ExitCode:           out.ExitCode,
		Signal:             out.Signal,
		WallTimeMs:         out.WallTimeMs,
		NetExecutionTimeMs: net,
		PeakMemoryMb:       (out.PeakMemoryKb + 1023) / 1024,
		Monitoring: api.RuntimeMetrics{
			SecurityViolations: violations,
		},
	}
}

func (e *Executor) systemError(execID string, logger *slog.Logger, err error) *api.ExecutionResult {
	logger.Error("execution failed with system error", "error", err)
	return &api.ExecutionResult{
		ExecutionID: execID,
		Verdict:     verdict.Resolve(verdict.Evidence{SystemFailure: true}),
		ExitCode:    -1,
	}
}

func (e *Executor) finish(req api.ExecutionRequest, res *api.ExecutionResult) *api.ExecutionResult {
	e.sink.Emit(metrics.NewRecord(req, res))
	return res
}
