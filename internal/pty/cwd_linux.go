//go:build linux

package pty

import (
	"fmt"
	"os"
)

// processCwd resolves the working directory of a process via procfs.
func processCwd(pid int) string {
	path, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
	if err != nil {
		return ""
	}
	return path
}
