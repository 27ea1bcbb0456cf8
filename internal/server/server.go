package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/dispatch-sh/dispatcher/internal/config"
	"github.com/dispatch-sh/dispatcher/internal/handlers"
	"github.com/dispatch-sh/dispatcher/internal/logger"
	"github.com/dispatch-sh/dispatcher/internal/middleware"
	"github.com/dispatch-sh/dispatcher/internal/persist"
	"github.com/dispatch-sh/dispatcher/internal/pty"
	"github.com/dispatch-sh/dispatcher/internal/workspace"
)

const shutdownGrace = 5 * time.Second

// Server owns the assembled application: the fiber app, the PTY engine and
// hub, the workspace stores and their persistence.
type Server struct {
	cfg    *config.RuntimeConfig
	app    *fiber.App
	engine *pty.Engine
	hub    *handlers.TerminalHub
	ws     *workspace.Workspace
	store  *persist.Store
	log    zerolog.Logger
}

// New assembles the server from configuration: engine, hub, workspace,
// persistence, handlers and routes.
func New(cfg *config.RuntimeConfig) (*Server, error) {
	engine := pty.NewEngine(cfg.Shell)
	events := handlers.NewEventBus()
	hub := handlers.NewTerminalHub(engine, events)
	ws := workspace.New(hub)
	hub.BindWorkspace(ws)

	store, err := persist.NewStore(cfg.StateDir, ws)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "dispatcher",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger())

	handlers.RegisterRoutes(app,
		handlers.NewWorkspaceHandler(ws, hub, store),
		handlers.NewTerminalHandler(hub, ws),
		handlers.NewEventsHandler(events),
	)
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return &Server{
		cfg:    cfg,
		app:    app,
		engine: engine,
		hub:    hub,
		ws:     ws,
		store:  store,
		log:    logger.Component("server"),
	}, nil
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the exit pump, warms the PTY pool and serves until ctx is
// cancelled, then shuts everything down in order: HTTP, PTYs, state.
func (s *Server) Run(ctx context.Context) error {
	s.hub.PumpExits()
	if s.cfg.PoolSize > 0 {
		s.engine.WarmPool(s.cfg.PoolSize)
	}

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()
	s.log.Info().Str("addr", addr).Str("state_dir", s.cfg.StateDir).Msg("dispatcher listening")

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	if err := s.app.ShutdownWithTimeout(shutdownGrace); err != nil {
		s.log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	s.shutdown()
	return nil
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.engine.Shutdown(ctx)
	if err := s.store.Close(); err != nil {
		s.log.Error().Err(err).Msg("final state flush failed")
	}
}
