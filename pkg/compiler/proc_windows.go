//go:build windows

package compiler

import (
	"os/exec"
	"syscall"
)

// configureCommandProcess sets the raw command line. MetaEditor parses its own
// switches and expects the value after the colon to be quoted
// (/compile:"C:\path with spaces\x.mq5"), which the default Windows argument
// escaping would wrap in another layer of quotes.
func configureCommandProcess(cmd *exec.Cmd, exe string, args []string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: CommandLine(exe, args)}
}

func terminateCommandProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
