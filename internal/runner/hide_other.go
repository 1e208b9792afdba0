//go:build !windows

package runner

import "os/exec"

// hideConsoleWindow is a no-op outside Windows; child processes there
// never open a console window of their own.
func hideConsoleWindow(_ *exec.Cmd) {}
