//go:build windows

package runner

import (
	"os/exec"
	"syscall"
)

// CREATE_NO_WINDOW keeps ffmpeg from flashing a console window.
const createNoWindow = 0x08000000

// hideConsoleWindow suppresses the child console window on Windows.
func hideConsoleWindow(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
	cmd.SysProcAttr.CreationFlags |= createNoWindow
}
