//go:build windows

package process

import "os/exec"

// SetProcessGroup is a no-op on Windows; taskkill /T walks the process tree
// without group setup.
func SetProcessGroup(_ *exec.Cmd) {}
