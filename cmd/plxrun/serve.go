package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/caffeineduck/plxrun/controller"
	"github.com/caffeineduck/plxrun/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for running programs",
		Long: `Start an HTTP server bound to one runtime.

Endpoints:
  POST   /run          Run {"source":"..."}; 409 while busy, 503 if the runtime failed
  GET    /status       Current state and status line
  GET    /events       Server-sent status transitions
  GET    /runs         Recorded runs, newest first (?limit=n, needs --history)
  GET    /runs/{id}    One recorded run
  GET    /health       Health check`,
		Args: cobra.NoArgs,
		RunE: a.runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (default 127.0.0.1:8080)")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *server.Server
	s, err := a.openSession(controller.WithStatusListener(func(state controller.State, status string) {
		srv.StatusChanged(state, status)
	}))
	if err != nil {
		return err
	}
	defer s.Close()

	cfg := server.Config{
		Runner: s.ctrl,
		Addr:   a.cfg.Serve.Addr,
		Logger: a.logger.Named("server"),
	}
	if s.store != nil {
		cfg.History = s.store
	}
	srv = server.New(cfg)

	// Serve while the runtime loads so /status reports progress.
	go func() {
		if err := s.ctrl.Start(context.WithoutCancel(ctx)); err != nil {
			a.logger.Error("runtime failed to load", zap.Error(err))
		}
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "plxrun server listening on %s\n", a.cfg.Serve.Addr)
	return srv.Serve(ctx)
}
