package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/dispatch-sh/dispatcher/internal/logger"
	"github.com/dispatch-sh/dispatcher/internal/recovery"
	"github.com/dispatch-sh/dispatcher/internal/workspace"
)

// TerminalHandler bridges one WebSocket per terminal attachment to the hub.
type TerminalHandler struct {
	hub *TerminalHub
	ws  *workspace.Workspace
	log zerolog.Logger
}

// NewTerminalHandler creates the terminal socket handler.
func NewTerminalHandler(hub *TerminalHub, ws *workspace.Workspace) *TerminalHandler {
	return &TerminalHandler{
		hub: hub,
		ws:  ws,
		log: logger.Component("terminal-ws"),
	}
}

// controlMsg is a text frame from the client: a resize, an Enter-keypress
// signal, or raw input.
type controlMsg struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
	Data string `json:"data"`
}

// HandleWebSocket upgrades GET /v1/terminals/:id/ws. Binary frames carry
// PTY output to the client; text frames from the client carry control
// messages and input.
func (h *TerminalHandler) HandleWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	terminalID := c.Params("id")
	if _, ok := h.ws.Session(terminalID); !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown terminal")
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.handleConnection(conn, terminalID)
	})(c)
}

func (h *TerminalHandler) handleConnection(conn *websocket.Conn, terminalID string) {
	log := h.log.With().Str("terminal_id", terminalID).Logger()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("terminal socket attached")

	replay, output, cancel := h.hub.Subscribe(terminalID)
	defer cancel()
	defer conn.Close()

	if len(replay) > 0 {
		if err := conn.WriteMessage(websocket.BinaryMessage, replay); err != nil {
			return
		}
	}

	done := make(chan struct{})
	recovery.SafeGoWithCleanup("terminal-ws-writer", func() {
		for {
			select {
			case <-done:
				return
			case chunk, ok := <-output:
				if !ok {
					conn.Close()
					return
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
					return
				}
			}
		}
	}, func() {})

	defer close(done)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			log.Info().Msg("terminal socket detached")
			return
		}
		switch messageType {
		case websocket.BinaryMessage:
			h.writeInput(terminalID, data)
		case websocket.TextMessage:
			h.handleControl(terminalID, data)
		}
	}
}

func (h *TerminalHandler) handleControl(terminalID string, data []byte) {
	var msg controlMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		h.writeInput(terminalID, data)
		return
	}
	switch {
	case msg.Type == "enter":
		h.hub.NotifyEnter(terminalID)
		h.writeInput(terminalID, []byte("\r"))
	case msg.Cols > 0 && msg.Rows > 0:
		if err := h.hub.Resize(terminalID, msg.Cols, msg.Rows); err != nil {
			h.log.Debug().Err(err).Str("terminal_id", terminalID).Msg("resize failed")
		}
	case msg.Data != "":
		h.writeInput(terminalID, []byte(msg.Data))
	}
}

func (h *TerminalHandler) writeInput(terminalID string, data []byte) {
	if err := h.hub.Write(terminalID, data); err != nil {
		h.log.Debug().Err(err).Str("terminal_id", terminalID).Msg("input write failed")
	}
}

// EventsHandler streams workspace and PTY lifecycle events to the UI.
type EventsHandler struct {
	bus *EventBus
	log zerolog.Logger
}

// NewEventsHandler creates the event socket handler.
func NewEventsHandler(bus *EventBus) *EventsHandler {
	return &EventsHandler{bus: bus, log: logger.Component("events-ws")}
}

// HandleWebSocket upgrades GET /v1/events/ws and forwards bus events as
// JSON text frames.
func (h *EventsHandler) HandleWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()
		events, cancel := h.bus.Subscribe()
		defer cancel()

		closed := make(chan struct{})
		recovery.SafeGo("events-ws-reader", func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					close(closed)
					return
				}
			}
		})

		for {
			select {
			case <-closed:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			}
		}
	})(c)
}
