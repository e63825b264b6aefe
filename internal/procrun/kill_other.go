//go:build !linux

package procrun

import (
	"os"
	"os/exec"
)

func setSysProcAttr(cmd *exec.Cmd) {}

func killTree(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func killPid(proc *os.Process) {
	_ = proc.Kill()
}

func exitStatus(state *os.ProcessState) (int64, *int64) {
	if state == nil {
		return -1, nil
	}
	return int64(state.ExitCode()), nil
}
