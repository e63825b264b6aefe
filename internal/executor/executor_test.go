package executor_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/judgecore/executor/api"
	"github.com/judgecore/executor/internal/executor"
	"github.com/judgecore/executor/internal/lang"
	"github.com/judgecore/executor/internal/metrics"
	"github.com/judgecore/executor/internal/monitor"
)

// captureSink records every emitted metrics record.
type captureSink struct {
	mu   sync.Mutex
	recs []metrics.Record
}

func (s *captureSink) Emit(rec metrics.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
}

func (s *captureSink) last(t *testing.T) metrics.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.recs)
	return s.recs[len(s.recs)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newExecutor(t *testing.T, opts executor.Options) (*executor.Executor, string) {
	t.Helper()
	root := t.TempDir()
	e, err := executor.New(executor.Config{
		WorkspaceRoot: root,
		MaxConcurrent: 4,
	}, opts, quietLogger())
	require.NoError(t, err)
	return e, root
}

func shellRequest(script, stdin string) api.ExecutionRequest {
	return api.ExecutionRequest{
		Language:      "shell",
		SourceCode:    script,
		Stdin:         stdin,
		TimeLimitMs:   5000,
		MemoryLimitMb: 256,
	}
}

func TestExecuteAccepted(t *testing.T) {
	sink := &captureSink{}
	e, _ := newExecutor(t, executor.Options{Sink: sink})

	res, err := e.Execute(context.Background(), shellRequest("read a b; echo $((a+b))", "5 3\n"))
	require.NoError(t, err)
	require.Equal(t, api.Accepted, res.Verdict)
	require.Equal(t, "8\n", res.Stdout)
	require.Equal(t, int64(0), res.ExitCode)
	require.NotEmpty(t, res.ExecutionID)
	require.GreaterOrEqual(t, res.NetExecutionTimeMs, int64(0))

	rec := sink.last(t)
	require.True(t, rec.Success)
	require.Equal(t, res.ExecutionID, rec.ExecutionID)
}

func TestExecuteTimeLimitExceeded(t *testing.T) {
	e, _ := newExecutor(t, executor.Options{})

	req := shellRequest("while true; do :; done", "")
	req.TimeLimitMs = 300

	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, api.TimeLimitExceeded, res.Verdict)
	require.GreaterOrEqual(t, res.WallTimeMs, int64(300))
	require.Less(t, res.WallTimeMs, int64(5000))
}

// rampSampler reports memory that grows by stepKb on every sample,
// regardless of what the process actually allocates.
type rampSampler struct {
	stepKb int64
	calls  atomic.Int64
}

func (r *rampSampler) Sample(pid int) (*monitor.Sample, error) {
	return &monitor.Sample{PeakRssKb: r.calls.Add(1) * r.stepKb}, nil
}

func TestExecuteMemoryLimitExceeded(t *testing.T) {
	e, _ := newExecutor(t, executor.Options{
		Sampler: &rampSampler{stepKb: 64 * 1024},
	})

	req := shellRequest("sleep 10", "")
	req.MemoryLimitMb = 64

	start := time.Now()
	res, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, api.MemoryLimitExceeded, res.Verdict)
	require.NotEmpty(t, res.Monitoring.ResourceViolations)
	require.Less(t, time.Since(start), 5*time.Second, "breach must kill the process, not wait it out")
}

func TestExecuteCompileError(t *testing.T) {
	store, err := lang.Load([]byte(`
[[languages]]
id = "brokencc"
code_fname = "main.src"
compile_cmd = "echo 'main.src:1: syntax error' >&2; exit 1"
exec_cmd = "./main"
`))
	require.NoError(t, err)

	e, root := newExecutor(t, executor.Options{Langs: store})

	req := shellRequest("whatever", "")
	req.Language = "brokencc"

	res, execErr := e.Execute(context.Background(), req)
	require.NoError(t, execErr)
	require.Equal(t, api.CompileError, res.Verdict)
	require.Contains(t, res.Stderr, "syntax error")
	require.GreaterOrEqual(t, res.CompileTimeMs, int64(0))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries, "workspace must be disposed after a compile failure")
}

func TestExecuteRuntimeError(t *testing.T) {
	e, _ := newExecutor(t, executor.Options{})

	res, err := e.Execute(context.Background(), shellRequest("echo boom >&2; exit 7", ""))
	require.NoError(t, err)
	require.Equal(t, api.RuntimeError, res.Verdict)
	require.Equal(t, int64(7), res.ExitCode)
	require.Contains(t, res.Stderr, "boom")
}

func TestExecuteSecurityViolation(t *testing.T) {
	e, _ := newExecutor(t, executor.Options{})

	res, err := e.Execute(context.Background(), shellRequest("echo 'open /etc/shadow: permission denied' >&2", ""))
	require.NoError(t, err)
	require.Equal(t, api.SecurityViolation, res.Verdict)
	require.NotEmpty(t, res.Monitoring.SecurityViolations)
}

func TestExecuteClassifiesSyscallFilterKill(t *testing.T) {
	e, _ := newExecutor(t, executor.Options{})

	// A SIGSYS death is how the syscall filter reports a blocked call.
	res, err := e.Execute(context.Background(), shellRequest("kill -SYS $$", ""))
	require.NoError(t, err)
	require.Equal(t, api.SecurityViolation, res.Verdict)
	require.NotNil(t, res.Signal)
	require.Equal(t, int64(31), *res.Signal)
	require.NotEmpty(t, res.Monitoring.SecurityViolations)
}

func TestExecuteRejectsMalformedRequests(t *testing.T) {
	e, _ := newExecutor(t, executor.Options{})

	_, err := e.Execute(context.Background(), shellRequest("", ""))
	require.ErrorIs(t, err, executor.ErrEmptySource)

	req := shellRequest("echo hi", "")
	req.Language = "cobol"
	_, err = e.Execute(context.Background(), req)
	require.ErrorIs(t, err, lang.ErrUnknownLanguage)

	req = shellRequest("echo hi", "")
	req.TimeLimitMs = 0
	_, err = e.Execute(context.Background(), req)
	require.ErrorIs(t, err, executor.ErrInvalidLimits)

	req = shellRequest("echo hi", "")
	req.MemoryLimitMb = -1
	_, err = e.Execute(context.Background(), req)
	require.ErrorIs(t, err, executor.ErrInvalidLimits)
}

func TestExecuteCleansWorkspaceAndRegistry(t *testing.T) {
	e, root := newExecutor(t, executor.Options{})

	for i := 0; i < 3; i++ {
		res, err := e.Execute(context.Background(), shellRequest("echo ok", ""))
		require.NoError(t, err)
		require.Equal(t, api.Accepted, res.Verdict)
	}

	require.Equal(t, 0, e.Registry().Size())
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestExecuteConcurrentRunsStayIsolated(t *testing.T) {
	e, _ := newExecutor(t, executor.Options{})

	var wg sync.WaitGroup
	outs := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Execute(context.Background(), shellRequest("read n; echo $((n*2))", fmt.Sprintf("%d\n", i)))
			require.NoError(t, err)
			require.Equal(t, api.Accepted, res.Verdict)
			outs[i] = res.Stdout
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		require.Equal(t, fmt.Sprintf("%d\n", i*2), outs[i])
	}
	require.Equal(t, 0, e.Registry().Size())
}

func TestShutdownKillsInFlightExecutions(t *testing.T) {
	e, _ := newExecutor(t, executor.Options{})

	done := make(chan *api.ExecutionResult, 1)
	go func() {
		res, err := e.Execute(context.Background(), shellRequest("sleep 30", ""))
		require.NoError(t, err)
		done <- res
	}()

	require.Eventually(t, func() bool { return e.Registry().Size() == 1 }, 2*time.Second, 10*time.Millisecond)
	e.Shutdown()

	select {
	case res := <-done:
		require.NotEqual(t, api.Accepted, res.Verdict)
	case <-time.After(5 * time.Second):
		t.Fatal("killed execution did not unwind")
	}
	require.Equal(t, 0, e.Registry().Size())
}

func TestLanguageMultipliersStretchTimeLimit(t *testing.T) {
	store, err := lang.Load([]byte(`
[[languages]]
id = "slowsh"
code_fname = "main.sh"
exec_cmd = "sh main.sh"
time_multiplier = 10.0
`))
	require.NoError(t, err)

	e, _ := newExecutor(t, executor.Options{Langs: store})

	// Sleeps past the raw limit but inside the multiplied one.
	req := shellRequest("sleep 0.3; echo done", "")
	req.Language = "slowsh"
	req.TimeLimitMs = 100

	res, execErr := e.Execute(context.Background(), req)
	require.NoError(t, execErr)
	require.Equal(t, api.Accepted, res.Verdict)
	require.Equal(t, "done\n", res.Stdout)
}
