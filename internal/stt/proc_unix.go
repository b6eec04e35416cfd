//go:build !windows

package stt

import (
	"os/exec"
	"syscall"
)

// setProcessGroup makes cancellation kill the whole process tree the CLI may
// have spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
