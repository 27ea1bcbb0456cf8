package pty

import (
	"bufio"
	"bytes"
	"strings"
)

// parseLsofCwd extracts the cwd path from `lsof -Fn` field output. Lines are
// single-letter field prefixes; the n-line carries the file name.
func parseLsofCwd(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "n") {
			return line[1:]
		}
	}
	return ""
}
