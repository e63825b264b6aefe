package procrun

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrSpawn marks failures where the child process never ran at all
// (missing binary, permission error). Callers must not conflate it with a
// non-zero exit of a process that did run.
var ErrSpawn = errors.New("failed to spawn process")

// DefaultMaxOutputBytes caps each of stdout and stderr. Exceeding the cap
// kills the process: output flooding must not exhaust judge host memory.
const DefaultMaxOutputBytes = 1 << 20

// Spec describes a single child process run.
type Spec struct {
	// Command is a shell command line, run via sh -c.
	Command string
	Dir     string
	Stdin   string

	TimeoutMs      int64
	MaxOutputBytes int64

	// OnStart, when set, is invoked once with the live process right
	// after a successful spawn. Used to attach the resource monitor.
	OnStart func(proc *os.Process)
}

// Outcome is the terminal observation of one child process.
type Outcome struct {
	Stdout string
	Stderr string

	ExitCode int64
	Signal   *int64

	TimedOut      bool
	OutputClipped bool
	WallTimeMs    int64
}

// Runner spawns supervised child processes. One Runner is shared across
// executions; it holds no per-run state.
type Runner struct {
	logger *slog.Logger
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run spawns the command and blocks until the terminal event: normal exit,
// timeout kill, or output-cap kill. Spawn failures are reported as an
// error wrapping ErrSpawn; every other path yields an Outcome.
func (r *Runner) Run(spec Spec) (*Outcome, error) {
	if spec.MaxOutputBytes <= 0 {
		spec.MaxOutputBytes = DefaultMaxOutputBytes
	}

	cmd := exec.Command("sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	setSysProcAttr(cmd)

	kill := func() { killTree(cmd) }

	stdout := newCappedBuffer(spec.MaxOutputBytes, kill)
	stderr := newCappedBuffer(spec.MaxOutputBytes, kill)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	if spec.OnStart != nil {
		spec.OnStart(cmd.Process)
	}

	var timedOut atomic.Bool
	var timer *time.Timer
	if spec.TimeoutMs > 0 {
		timer = time.AfterFunc(time.Duration(spec.TimeoutMs)*time.Millisecond, func() {
			timedOut.Store(true)
			kill()
		})
	}

	waitErr := cmd.Wait()
	if timer != nil {
		timer.Stop()
	}
	wall := time.Since(start).Milliseconds()

	out := &Outcome{
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		TimedOut:      timedOut.Load(),
		OutputClipped: stdout.Clipped() || stderr.Clipped(),
		WallTimeMs:    wall,
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("failed to wait for process: %w", waitErr)
		}
	}
	code, sig := exitStatus(cmd.ProcessState)
	out.ExitCode = code
	out.Signal = sig

	return out, nil
}

// RunAll runs several specs concurrently and fails fast on the first
// spawn-level error.
func (r *Runner) RunAll(specs []Spec) ([]*Outcome, error) {
	outcomes := make([]*Outcome, len(specs))
	errs := errgroup.Group{}
	for i := range specs {
		i := i
		errs.Go(func() error {
			out, err := r.Run(specs[i])
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := errs.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// KillGroup force-kills a spawned process together with its process
// group. Used by supervisors (resource monitor, emergency shutdown) that
// hold only the *os.Process handed out via Spec.OnStart.
func KillGroup(proc *os.Process) {
	if proc == nil {
		return
	}
	killPid(proc)
}

// cappedBuffer accumulates writes up to a hard byte cap. The first write
// past the cap triggers the overflow callback exactly once.
type cappedBuffer struct {
	mu         sync.Mutex
	buf        strings.Builder
	limit      int64
	clipped    bool
	onOverflow func()
}

func newCappedBuffer(limit int64, onOverflow func()) *cappedBuffer {
	return &cappedBuffer{limit: limit, onOverflow: onOverflow}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.clipped {
		return len(p), nil
	}

	room := b.limit - int64(b.buf.Len())
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.clipped = true
		if b.onOverflow != nil {
			b.onOverflow()
		}
		return len(p), nil
	}

	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *cappedBuffer) Clipped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clipped
}
