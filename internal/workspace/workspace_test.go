package workspace_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/judgecore/executor/internal/workspace"
)

func newManager(t *testing.T) *workspace.Manager {
	t.Helper()
	root := t.TempDir()
	m, err := workspace.NewManager(root, nil)
	require.NoError(t, err)
	return m
}

func TestStageAndDispose(t *testing.T) {
	m := newManager(t)
	id := uuid.NewString()

	ws, err := m.Stage(id, "main.sh", "echo hi\n", "5 3\n")
	require.NoError(t, err)
	require.DirExists(t, ws.Dir)
	require.FileExists(t, ws.SourceFile)
	require.FileExists(t, ws.StdinFile)

	src, err := os.ReadFile(ws.SourceFile)
	require.NoError(t, err)
	require.Equal(t, "echo hi\n", string(src))

	dir := ws.Dir
	ws.Dispose()
	require.NoDirExists(t, dir)

	// Disposal must be safe to repeat.
	ws.Dispose()
}

func TestStageWithoutStdin(t *testing.T) {
	m := newManager(t)

	ws, err := m.Stage(uuid.NewString(), "main.py", "print(1)\n", "")
	require.NoError(t, err)
	defer ws.Dispose()

	require.Empty(t, ws.StdinFile)
	require.False(t, ws.HasFile("stdin.txt"))
}

func TestWorkspacesArePartitioned(t *testing.T) {
	m := newManager(t)

	a, err := m.Stage(uuid.NewString(), "main.sh", "a\n", "")
	require.NoError(t, err)
	defer a.Dispose()
	b, err := m.Stage(uuid.NewString(), "main.sh", "b\n", "")
	require.NoError(t, err)
	defer b.Dispose()

	require.NotEqual(t, a.Dir, b.Dir)

	a.Dispose()
	require.DirExists(t, b.Dir, "disposing one workspace must not touch another")
}

func TestStageRejectsDuplicateID(t *testing.T) {
	m := newManager(t)
	id := uuid.NewString()

	ws, err := m.Stage(id, "main.sh", "x\n", "")
	require.NoError(t, err)
	defer ws.Dispose()

	_, err = m.Stage(id, "main.sh", "x\n", "")
	require.Error(t, err)
}

func TestReadFile(t *testing.T) {
	m := newManager(t)

	ws, err := m.Stage(uuid.NewString(), "main.sh", "x\n", "")
	require.NoError(t, err)
	defer ws.Dispose()

	require.NoError(t, os.WriteFile(filepath.Join(ws.Dir, "out.txt"), []byte("42\n"), 0o644))
	data, err := ws.ReadFile("out.txt")
	require.NoError(t, err)
	require.Equal(t, "42\n", string(data))
}
