//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// SetProcessGroup places cmd in its own process group so KillProcessGroup
// can reach any helpers the tool spawns.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
