//go:build darwin

package pty

import (
	"os/exec"
	"strconv"
)

// processCwd resolves the working directory of a process by asking lsof for
// its cwd file descriptor. Slower than libproc but dependency-free and
// identical to what ships on user machines.
func processCwd(pid int) string {
	out, err := exec.Command("lsof", "-a", "-p", strconv.Itoa(pid), "-d", "cwd", "-Fn").Output()
	if err != nil {
		return ""
	}
	return parseLsofCwd(out)
}
