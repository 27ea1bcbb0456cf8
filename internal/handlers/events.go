package handlers

import (
	"sync"

	"github.com/dispatch-sh/dispatcher/internal/logger"
	"github.com/dispatch-sh/dispatcher/internal/models"

	"github.com/rs/zerolog"
)

// Event is one message on the UI event channel.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EventBus fans workspace and PTY lifecycle events out to connected event
// sockets. Slow subscribers lose events rather than stalling publishers.
type EventBus struct {
	log zerolog.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		log:  logger.Component("events"),
		subs: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a buffered event channel; cancel removes it.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
func (b *EventBus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn().Str("type", ev.Type).Msg("dropping event for slow subscriber")
		}
	}
}

// PublishExit emits a terminal-exit event.
func (b *EventBus) PublishExit(terminalID string, exitCode *int) {
	b.Publish(Event{
		Type:    "terminal-exit",
		Payload: models.TerminalExitPayload{TerminalID: terminalID, ExitCode: exitCode},
	})
}

// PublishStatus emits a terminal-status event.
func (b *EventBus) PublishStatus(terminalID string, status models.SessionStatus, exitCode *int) {
	b.Publish(Event{
		Type:    "terminal-status",
		Payload: models.TerminalStatusPayload{TerminalID: terminalID, Status: status, ExitCode: exitCode},
	})
}
