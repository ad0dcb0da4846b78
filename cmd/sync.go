package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/server"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
)

const stopTimeout = 10 * time.Second

type engineStatus struct {
	Identity      models.CloudIdentity  `json:"identity"`
	Playlists     int                   `json:"playlists"`
	PendingOps    int                   `json:"pending_operations"`
	PendingRetry  int                   `json:"pending_retries"`
	RetryStep     int                   `json:"retry_step"`
	CurrentListen *models.ListenSession `json:"current_listen,omitempty"`
}

func (s *session) status() any {
	st := engineStatus{
		Identity:     s.sync.Identity(),
		Playlists:    len(s.library.Playlists()),
		PendingOps:   s.sync.Buffer().Len(),
		PendingRetry: s.sync.Retry().Len(),
		RetryStep:    s.sync.Retry().Step(),
	}
	if cur, ok := s.sync.Listens().Session(); ok {
		st.CurrentListen = &cur
	}
	return st
}

// Sync runs the engine and the push listener until interrupted or until the server removes this device.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("foreground-log") && r.config.Logging.Path != "" {
		logger, err := shared.NewFileLogger(r.config.Logging.Path, r.config.Logging)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		r.SetLogger(logger)
		r.writePlain("Logging to %s\n", r.config.Logging.Path)
	}

	r.writePlain("Synchronizing, push listener on %s. Press Ctrl+C to stop.\n", r.config.Server.Addr())
	return r.runEngine(ctx, nil)
}

// runEngine starts the synchronizer and serves /push and /status. attach, when set, runs alongside and its return
// ends the engine.
func (r *Runner) runEngine(ctx context.Context, attach func(ctx context.Context, s *session) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var s *session
	s, err := r.openSession(ctx, func(userID uint) {
		if err := s.accounts.Delink(context.Background(), userID); err != nil {
			r.logger.Warn("failed to forget account", "user", userID, "error", err)
		}
		if err := services.DeleteToken(r.config.Cloud.TokenPath); err != nil {
			r.logger.Warn("failed to delete token", "error", err)
		}
		cancel()
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.sync.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, done := context.WithTimeout(context.Background(), stopTimeout)
		defer done()
		if err := s.sync.Stop(stopCtx); err != nil {
			r.logger.Warn("synchronizer did not stop cleanly", "error", err)
		}
	}()

	router := server.NewRouter(r.logger)
	router.Handler(server.NewPushHandler(s.sync, r.logger))
	router.Handle(http.MethodGet, "/status", server.StatusHandler(s.status))

	errs := make(chan error, 1)
	go func() {
		errs <- server.Serve(ctx, r.config.Server.Addr(), router, r.logger)
	}()

	if attach != nil {
		attachErr := attach(ctx, s)
		cancel()
		if err := <-errs; err != nil {
			r.logger.Warn("push listener failed", "error", err)
		}
		return attachErr
	}
	return <-errs
}
