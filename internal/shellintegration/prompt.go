package shellintegration

import (
	"bytes"
	"regexp"
)

var (
	// ansiPattern matches CSI/OSC escape sequences so the prompt heuristic
	// sees plain text.
	ansiPattern = regexp.MustCompile(`\x1b(\[[0-9;?]*[ -/]*[@-~]|\][^\x07]*(\x07|\x1b\\))`)

	// promptPattern matches the trailing characters of common shell prompts.
	// ':' and '?' are deliberately excluded so password and Duo prompts do
	// not trigger re-injection.
	promptPattern = regexp.MustCompile(`[#$%>]\s*$`)
)

// looksLikePrompt reports whether the final non-empty de-ANSI'd line of a
// chunk resembles a shell prompt awaiting input.
func looksLikePrompt(chunk []byte) bool {
	plain := ansiPattern.ReplaceAll(chunk, nil)
	lines := bytes.FieldsFunc(plain, func(r rune) bool { return r == '\n' || r == '\r' })
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		return promptPattern.Match(lines[i])
	}
	return false
}
