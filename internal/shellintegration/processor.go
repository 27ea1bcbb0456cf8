package shellintegration

import (
	"bytes"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dispatch-sh/dispatcher/internal/logger"
	"github.com/dispatch-sh/dispatcher/internal/models"
)

const (
	// preexecSettle is how long a command must have been running before the
	// sub-shell detectors consider the hooks lost.
	preexecSettle = 2 * time.Second
	// quietDebounce is the quiet-output detector's debounce window.
	quietDebounce = 1500 * time.Millisecond
	// enterWait is how long after an Enter keypress we wait for an OSC.
	enterWait = 500 * time.Millisecond
	// verifyWindow is how long a re-injection attempt has to produce an OSC
	// before another trigger may retry.
	verifyWindow = 3 * time.Second
	// maxReinjections caps attempts per active command.
	maxReinjections = 3
	// injectionSettle is the pause between stty -echo and the hook script on
	// initial injection, giving the shell time to swallow the mode change.
	injectionSettle = 100 * time.Millisecond
)

// StatusFunc receives run-state transitions derived from OSC events.
type StatusFunc func(status models.SessionStatus, exitCode *int)

// Processor filters one terminal's PTY byte stream: it strips OSC 7770
// sequences (surviving arbitrary chunk boundaries), drives the session's
// run-state, and re-injects hooks into unhooked sub-shells.
type Processor struct {
	terminalID string
	out        func([]byte)
	writePTY   func([]byte)
	onStatus   StatusFunc
	log        zerolog.Logger

	mu          sync.Mutex
	partial     []byte
	status      models.SessionStatus
	lastPreexec time.Time
	awaitingOsc bool
	attempts    int
	attempted   bool
	quietTimer  *time.Timer
	enterTimer  *time.Timer
	verifyTimer *time.Timer
	disposed    bool

	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
	sleep     func(time.Duration)
}

// NewProcessor creates a processor for one terminal. out receives cleaned
// emulator-bound bytes; writePTY is the injection path back into the PTY.
func NewProcessor(terminalID string, out func([]byte), writePTY func([]byte), onStatus StatusFunc) *Processor {
	return &Processor{
		terminalID: terminalID,
		out:        out,
		writePTY:   writePTY,
		onStatus:   onStatus,
		log:        logger.Component("shellintegration").With().Str("terminal_id", terminalID).Logger(),
		status:     models.StatusDone,
		now:        time.Now,
		afterFunc:  time.AfterFunc,
		sleep:      time.Sleep,
	}
}

// InjectHooks performs the initial hook installation: echo off, a short
// settle, the script, echo back on, and a clear for a clean first prompt.
func (p *Processor) InjectHooks() {
	p.writePTY([]byte(" stty -echo\n"))
	p.sleep(injectionSettle)
	p.writePTY([]byte(hookScript))
	p.writePTY([]byte(" stty echo && clear\n"))
}

// Process consumes one raw PTY chunk. Status transitions are applied before
// the cleaned bytes are forwarded.
func (p *Processor) Process(chunk []byte) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}

	data := chunk
	if len(p.partial) > 0 {
		data = append(p.partial, chunk...)
		p.partial = nil
	}
	data = p.splitPartial(data)

	sawOSC := false
	cleaned := stripOSC(data, func(ev oscEvent) {
		sawOSC = true
		p.applyEvent(ev)
	})

	if sawOSC {
		p.oscReceived()
	} else if p.status == models.StatusRunning &&
		p.now().Sub(p.lastPreexec) >= preexecSettle &&
		looksLikePrompt(cleaned) {
		p.restartQuietTimer()
	}
	p.mu.Unlock()

	if len(cleaned) > 0 {
		p.out(cleaned)
	}
}

// splitPartial stashes a trailing unterminated OSC sequence, or a trailing
// fragment of its prefix, for the next chunk and returns the portion safe to
// scan. Caller holds p.mu.
func (p *Processor) splitPartial(data []byte) []byte {
	idx := bytes.LastIndex(data, oscPrefix)
	if idx >= 0 && bytes.IndexByte(data[idx:], bel) < 0 {
		p.partial = append(p.partial, data[idx:]...)
		return data[:idx]
	}
	for n := len(oscPrefix) - 1; n > 0; n-- {
		if bytes.HasSuffix(data, oscPrefix[:n]) {
			p.partial = append(p.partial, data[len(data)-n:]...)
			return data[:len(data)-n]
		}
	}
	return data
}

// applyEvent performs the status transition for one OSC. Caller holds p.mu.
func (p *Processor) applyEvent(ev oscEvent) {
	switch ev.kind {
	case oscPreexec:
		p.status = models.StatusRunning
		p.lastPreexec = p.now()
		p.notify(models.StatusRunning, nil)
	case oscPrecmd:
		code := ev.exitCode
		if code == 0 {
			p.status = models.StatusDone
			p.notify(models.StatusDone, &code)
		} else {
			p.status = models.StatusError
			p.notify(models.StatusError, &code)
		}
	case oscUnknown:
		p.log.Debug().Msg("ignoring malformed OSC 7770 payload")
	}
}

func (p *Processor) notify(status models.SessionStatus, exitCode *int) {
	if p.onStatus != nil {
		p.onStatus(status, exitCode)
	}
}

// NotifyEnter signals that the user pressed Enter. If a command has been
// running long enough without hooks answering, arm the Enter-keypress
// detector: re-inject unless an OSC lands within the wait window.
func (p *Processor) NotifyEnter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed || p.status != models.StatusRunning {
		return
	}
	if p.now().Sub(p.lastPreexec) < preexecSettle {
		return
	}
	p.awaitingOsc = true
	p.stopTimer(p.enterTimer)
	p.enterTimer = p.afterFunc(enterWait, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.awaitingOsc {
			p.awaitingOsc = false
			p.attemptReinject()
		}
	})
}

// restartQuietTimer (re)arms the quiet-output debounce. Caller holds p.mu.
func (p *Processor) restartQuietTimer() {
	p.stopTimer(p.quietTimer)
	p.quietTimer = p.afterFunc(quietDebounce, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.attemptReinject()
	})
}

// attemptReinject writes the notice and hook script back into the PTY,
// bounded by the per-command attempt cap. Caller holds p.mu.
func (p *Processor) attemptReinject() {
	if p.disposed || p.attempted || p.attempts >= maxReinjections {
		return
	}
	p.attempts++
	p.attempted = true
	p.log.Info().Int("attempt", p.attempts).Msg("re-injecting shell hooks into unhooked sub-shell")

	go p.writePTY([]byte(reinjectionNotice + hookScript))

	p.stopTimer(p.verifyTimer)
	p.verifyTimer = p.afterFunc(verifyWindow, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		// No OSC arrived; allow the next trigger to retry (until the cap).
		p.attempted = false
	})
}

// oscReceived resets the re-injection machinery. Caller holds p.mu.
func (p *Processor) oscReceived() {
	p.attempts = 0
	p.attempted = false
	p.awaitingOsc = false
	p.stopTimer(p.quietTimer)
	p.stopTimer(p.enterTimer)
	p.stopTimer(p.verifyTimer)
	p.quietTimer, p.enterTimer, p.verifyTimer = nil, nil, nil
}

func (p *Processor) stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// Status returns the session's current run-state.
func (p *Processor) Status() models.SessionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Dispose cancels all pending timers; further chunks are ignored.
func (p *Processor) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposed = true
	p.oscReceived()
	p.partial = nil
}
