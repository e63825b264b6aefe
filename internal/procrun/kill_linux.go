//go:build linux

package procrun

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSysProcAttr places the child in its own process group so the whole
// tree can be killed at once, and makes sure children die with the judge.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &unix.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: unix.SIGKILL,
	}
}

// killTree sends an unmaskable SIGKILL to the child's process group.
// Submitted code gets no opportunity to intercept or delay it.
func killTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		// Group may already be gone, or Setpgid raced the kill.
		_ = cmd.Process.Kill()
	}
}

func killPid(proc *os.Process) {
	if err := unix.Kill(-proc.Pid, unix.SIGKILL); err != nil {
		_ = proc.Kill()
	}
}

// exitStatus extracts the exit code and, for signal deaths, the signal
// number from a finished process state.
func exitStatus(state *os.ProcessState) (int64, *int64) {
	if state == nil {
		return -1, nil
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := int64(ws.Signal())
		return -1, &sig
	}
	return int64(state.ExitCode()), nil
}
