package shellintegration

import (
	"bytes"
	"strconv"
)

// OSC 7770 wire protocol: a private Operating System Command emitted by the
// injected shell hooks.
//
//	ESC ] 7770 ; preexec BEL          a foreground command is starting
//	ESC ] 7770 ; precmd ; <code> BEL  a prompt was printed, <code> is $?
var (
	oscPrefix = []byte("\x1b]7770;")
)

const bel = 0x07

type oscKind int

const (
	oscPreexec oscKind = iota
	oscPrecmd
	oscUnknown
)

type oscEvent struct {
	kind     oscKind
	exitCode int
}

// parsePayload decodes the bytes between the OSC prefix and the BEL.
func parsePayload(payload []byte) oscEvent {
	if bytes.Equal(payload, []byte("preexec")) {
		return oscEvent{kind: oscPreexec}
	}
	if rest, ok := bytes.CutPrefix(payload, []byte("precmd;")); ok {
		code, err := strconv.Atoi(string(rest))
		if err != nil {
			return oscEvent{kind: oscUnknown}
		}
		return oscEvent{kind: oscPrecmd, exitCode: code}
	}
	return oscEvent{kind: oscUnknown}
}

// stripOSC removes every complete OSC 7770 sequence from data, invoking
// onEvent for each in arrival order, and returns the cleaned bytes.
func stripOSC(data []byte, onEvent func(oscEvent)) []byte {
	idx := bytes.Index(data, oscPrefix)
	if idx < 0 {
		return data
	}

	out := make([]byte, 0, len(data))
	for {
		out = append(out, data[:idx]...)
		data = data[idx+len(oscPrefix):]

		end := bytes.IndexByte(data, bel)
		if end < 0 {
			// No terminator; splitPartial should have stashed this, but an
			// interior unterminated sequence passes through untouched.
			out = append(out, oscPrefix...)
			return append(out, data...)
		}
		if onEvent != nil {
			onEvent(parsePayload(data[:end]))
		}
		data = data[end+1:]

		idx = bytes.Index(data, oscPrefix)
		if idx < 0 {
			return append(out, data...)
		}
	}
}

// containsOSC reports whether data holds at least one complete sequence.
func containsOSC(data []byte) bool {
	idx := bytes.Index(data, oscPrefix)
	if idx < 0 {
		return false
	}
	return bytes.IndexByte(data[idx+len(oscPrefix):], bel) >= 0
}
