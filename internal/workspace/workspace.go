package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const stdinFilename = "stdin.txt"

// Workspace is the per-execution temporary directory holding source and
// input files. It is owned by exactly one execution and never shared.
type Workspace struct {
	Dir        string
	SourceFile string
	StdinFile  string

	logger *slog.Logger
}

// Manager stages and disposes per-execution workspaces under a common
// root. Directory names are derived from the random execution id, so no
// two executions can collide and names are not guessable from request
// content.
type Manager struct {
	root   string
	logger *slog.Logger
}

func NewManager(root string, logger *slog.Logger) (*Manager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "executor")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	return &Manager{root: root, logger: logger}, nil
}

// Root returns the directory under which workspaces are created.
func (m *Manager) Root() string { return m.root }

// Stage creates the workspace directory for the given execution and writes
// the source file plus, when stdin is non-empty, the stdin file.
func (m *Manager) Stage(executionID, sourceFilename, sourceCode, stdin string) (*Workspace, error) {
	dir := filepath.Join(m.root, executionID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", executionID, err)
	}

	ws := &Workspace{Dir: dir, logger: m.logger}

	srcPath := filepath.Join(dir, sourceFilename)
	if err := os.WriteFile(srcPath, []byte(sourceCode), 0o644); err != nil {
		ws.Dispose()
		return nil, fmt.Errorf("failed to write source file: %w", err)
	}
	ws.SourceFile = srcPath

	if stdin != "" {
		stdinPath := filepath.Join(dir, stdinFilename)
		if err := os.WriteFile(stdinPath, []byte(stdin), 0o644); err != nil {
			ws.Dispose()
			return nil, fmt.Errorf("failed to write stdin file: %w", err)
		}
		ws.StdinFile = stdinPath
	}

	return ws, nil
}

// ReadFile returns the contents of a file inside the workspace.
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(w.Dir, name))
}

// HasFile reports whether a file exists inside the workspace.
func (w *Workspace) HasFile(name string) bool {
	_, err := os.Stat(filepath.Join(w.Dir, name))
	return err == nil
}

// Dispose removes the workspace tree. It never fails: removal errors are
// logged and swallowed so that cleanup can run on every exit path.
func (w *Workspace) Dispose() {
	if w.Dir == "" {
		return
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		if w.logger != nil {
			w.logger.Error("failed to remove workspace", "dir", w.Dir, "error", err)
		}
		return
	}
	w.Dir = ""
}
