// Package sandbox runs one execution per container with the policy set:
// no network, read-only root filesystem, dropped capabilities, seccomp
// allow-list, pids ceiling, cgroup cpu/memory limits, non-root user.
// This is the containment layer; pattern detection over output is a
// separate, defense-in-depth concern.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
)

// WatchdogGraceMs is added on top of the requested time limit before the
// host-side watchdog force-kills the container. The in-container timeout
// should fire first; the watchdog only exists for a hung runtime.
const WatchdogGraceMs = 5_000

const boxPath = "/box"

// RunSpec describes one containerized execution.
type RunSpec struct {
	ExecutionID   string
	WorkspaceDir  string
	Language      string
	TimeLimitMs   int64
	MemoryLimitMb int64

	// MaxOutputBytes caps each captured stream.
	MaxOutputBytes int64
}

// Outcome mirrors the process-runner outcome with container extras.
type Outcome struct {
	Stdout string
	Stderr string

	ExitCode int64
	Signal   *int64

	TimedOut  bool
	OomKilled bool

	WallTimeMs          int64
	ContainerOverheadMs int64
	PeakMemoryKb        int64

	// Parsed reports whether the structured entrypoint result was
	// readable; false means the exit-code fallback classified the run.
	Parsed bool
}

// Runner launches judge containers. One Runner is shared by all
// executions; the docker client is safe for concurrent use.
type Runner struct {
	cli     *client.Client
	image   string
	logger  *slog.Logger
	buildMu sync.Mutex
}

func NewRunner(image string, logger *slog.Logger) (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if image == "" {
		image = DefaultImage
	}
	return &Runner{cli: cli, image: image, logger: logger}, nil
}

// Run launches the judge container for one staged workspace and blocks
// until the terminal event. The container is always removed, even when
// the runtime's own stop call fails.
func (r *Runner) Run(ctx context.Context, spec RunSpec) (*Outcome, error) {
	seccomp, err := seccompProfile()
	if err != nil {
		return nil, err
	}

	timeLimitS := (spec.TimeLimitMs + 999) / 1000
	pidsLimit := int64(64)

	cfg := &container.Config{
		Image: r.image,
		Cmd: []string{
			spec.Language,
			strconv.FormatInt(timeLimitS, 10),
			strconv.FormatInt(spec.MemoryLimitMb, 10),
		},
		User:            "judge",
		WorkingDir:      boxPath,
		NetworkDisabled: true,
	}

	hostCfg := &container.HostConfig{
		AutoRemove:     false,
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt: []string{
			"no-new-privileges",
			"seccomp=" + seccomp,
		},
		Binds: []string{spec.WorkspaceDir + ":" + boxPath + ":rw"},
		Tmpfs: map[string]string{
			// Size-capped, non-executable scratch space.
			"/tmp": "rw,noexec,nosuid,size=64m,mode=1777",
		},
		Resources: container.Resources{
			Memory:     spec.MemoryLimitMb * 1024 * 1024,
			MemorySwap: spec.MemoryLimitMb * 1024 * 1024,
			NanoCPUs:   1_000_000_000,
			PidsLimit:  &pidsLimit,
			Ulimits: []*units.Ulimit{
				{Name: "nproc", Soft: 64, Hard: 128},
				{Name: "nofile", Soft: 64, Hard: 128},
				{Name: "core", Soft: 0, Hard: 0},
				{Name: "fsize", Soft: 32 * 1024 * 1024, Hard: 32 * 1024 * 1024},
			},
		},
	}

	setupStart := time.Now()
	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "judge-"+spec.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		// Removal must succeed on every path; force covers a stuck or
		// already-stopped container alike.
		rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.cli.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Error("failed to remove judge container",
				"execution_id", spec.ExecutionID, "container", shortID(resp.ID), "error", err)
		}
	}()

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}
	overhead := time.Since(setupStart).Milliseconds()

	runStart := time.Now()
	waitResp, timedOutHost, err := r.waitWithWatchdog(ctx, resp.ID, spec.TimeLimitMs)
	if err != nil {
		return nil, err
	}
	wall := time.Since(runStart).Milliseconds()

	out := &Outcome{
		WallTimeMs:          wall,
		ContainerOverheadMs: overhead,
		TimedOut:            timedOutHost,
	}

	inspect, err := r.cli.ContainerInspect(ctx, resp.ID)
	if err == nil && inspect.State != nil && inspect.State.OOMKilled {
		out.OomKilled = true
	}

	r.collectStreams(ctx, resp.ID, spec, out)

	entry, parseErr := parseEntrypointResult(spec.WorkspaceDir)
	if parseErr == nil {
		out.Parsed = true
		out.ExitCode = entry.ExitCode
		out.TimedOut = out.TimedOut || entry.TimedOut
		out.OomKilled = out.OomKilled || entry.OomKilled
		out.PeakMemoryKb = entry.PeakMemoryKb
		if entry.WallMs > 0 {
			out.WallTimeMs = entry.WallMs
		}
	} else {
		// Container orchestration cannot guarantee a clean structured
		// handoff; classify coarsely from the exit code alone.
		applyExitCodeFallback(out, waitResp.StatusCode)
	}

	return out, nil
}

// waitWithWatchdog waits for the container to stop. A wall-clock watchdog
// beyond the requested limit force-kills the container when the runtime
// itself hangs, and resolves even if the kill call fails.
func (r *Runner) waitWithWatchdog(ctx context.Context, containerID string, timeLimitMs int64) (container.WaitResponse, bool, error) {
	statusCh, errCh := r.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	watchdog := time.NewTimer(time.Duration(timeLimitMs+WatchdogGraceMs) * time.Millisecond)
	defer watchdog.Stop()

	select {
	case waitResp := <-statusCh:
		return waitResp, false, nil
	case err := <-errCh:
		return container.WaitResponse{}, false, fmt.Errorf("container wait failed: %w", err)
	case <-watchdog.C:
	case <-ctx.Done():
	}

	killed := ctx.Err() == nil
	r.logger.Warn("watchdog killing container", "container", shortID(containerID))

	killCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.cli.ContainerKill(killCtx, containerID, "SIGKILL"); err != nil {
		r.logger.Error("container kill failed, falling back to force remove",
			"container", shortID(containerID), "error", err)
		_ = r.cli.ContainerRemove(killCtx, containerID, container.RemoveOptions{Force: true})
	}

	// Drain the wait so the final status is observed when available.
	select {
	case waitResp := <-statusCh:
		if !killed {
			return waitResp, false, fmt.Errorf("execution aborted: %w", ctx.Err())
		}
		return waitResp, true, nil
	case <-errCh:
	case <-time.After(5 * time.Second):
	}
	if !killed {
		return container.WaitResponse{}, false, fmt.Errorf("execution aborted: %w", ctx.Err())
	}
	return container.WaitResponse{StatusCode: 137}, true, nil
}

func (r *Runner) collectStreams(ctx context.Context, containerID string, spec RunSpec, out *Outcome) {
	maxBytes := spec.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}

	// The entrypoint redirects the submission's streams into workspace
	// files; the container log stream carries entrypoint diagnostics.
	stdout, err := readWorkspaceFile(spec.WorkspaceDir, "stdout.txt", maxBytes)
	if err == nil {
		out.Stdout = stdout
	}
	stderr, err := readWorkspaceFile(spec.WorkspaceDir, "stderr.txt", maxBytes)
	if err == nil {
		out.Stderr = stderr
		return
	}

	logReader, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return
	}
	defer logReader.Close()

	var so, se cappedSink
	so.limit, se.limit = maxBytes, maxBytes
	_, _ = stdcopy.StdCopy(&so, &se, logReader)
	if out.Stdout == "" {
		out.Stdout = so.String()
	}
	out.Stderr = se.String()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
