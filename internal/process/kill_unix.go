//go:build !windows

package process

import "syscall"

// KillProcessGroup kills a process and all its children by sending SIGKILL
// to the process group (negative PID). Used to tear down external tools that
// spawn their own helpers when a stage timeout fires.
func KillProcessGroup(pid int) {
	// Best-effort cleanup; error ignored as cmd.Process.Kill() provides fallback
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
