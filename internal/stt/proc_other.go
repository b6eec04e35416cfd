//go:build windows

package stt

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
