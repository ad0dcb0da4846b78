package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/playsync/internal/cloud"
	"github.com/desertthunder/playsync/internal/server"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Link runs the authorization code flow on the local listener, then registers this device with the account.
func (r *Runner) Link(ctx context.Context, cmd *cli.Command) error {
	conf, err := services.NewOAuthConfig(r.config.Cloud)
	if err != nil {
		return err
	}

	tok, err := r.authorize(ctx, conf, !cmd.Bool("no-browser"), cmd.Duration("timeout"))
	if err != nil {
		return err
	}
	r.logger.Info("authorization complete", "token_path", r.config.Cloud.TokenPath)

	client := r.client
	if client == nil {
		authorized := services.NewAuthorizedClient(ctx, conf, tok, r.config.Cloud.TokenPath)
		client = services.NewCloudService(r.config.Cloud.BaseURL, authorized, r.config.Sync.RequestTimeout(), r.logger)
	}
	return r.registerDevice(ctx, client)
}

// authorize serves the OAuth callback until the user granted access, ctx is done or timeout passed.
func (r *Runner) authorize(ctx context.Context, conf *oauth2.Config, browser bool, timeout time.Duration) (*oauth2.Token, error) {
	state := shared.GenerateID()
	handler := server.NewOAuthHandler(conf, state, r.config.Cloud.TokenPath)
	router := server.NewRouter(r.logger)
	router.Handler(handler)

	srvCtx, stop := context.WithCancel(ctx)
	defer stop()
	errs := make(chan error, 1)
	go func() {
		errs <- server.Serve(srvCtx, r.config.Server.Addr(), router, r.logger)
	}()

	authURL := services.AuthURL(conf, state)
	r.writePlain("Open this URL to link your account:\n%s\n", authURL)
	if browser {
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case res := <-handler.Result():
		if err := res.Error(); err != nil {
			return nil, err
		}
		return res.Token, nil
	case err := <-errs:
		if err == nil {
			err = errors.New("listener stopped")
		}
		return nil, fmt.Errorf("%w: callback listener: %v", shared.ErrServiceUnavailable, err)
	case <-waitCtx.Done():
		return nil, fmt.Errorf("%w: waiting for authorization", shared.ErrTimeout)
	}
}

func (r *Runner) registerDevice(ctx context.Context, client services.SignedRequestClient) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	accounts, err := r.loadAccounts(ctx, db)
	if err != nil {
		return err
	}

	name := r.config.Cloud.DeviceName
	if name == "" {
		name, _ = os.Hostname()
	}

	id, err := cloud.RegisterDevice(ctx, client, accounts, name)
	if err != nil {
		return err
	}

	data := id.Snapshot()
	r.writePlain("✓ Linked %s (user #%d) as device #%d\n", data.Name, data.UserID, data.DeviceID)
	r.writePlain("Run 'playsync sync' to start synchronizing\n")
	return nil
}

// Unlink deletes this device on the server, forgets the account and removes the saved token.
func (r *Runner) Unlink(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	accounts, err := r.loadAccounts(ctx, db)
	if err != nil {
		return err
	}
	id, err := accounts.Primary()
	if err != nil {
		return err
	}

	var client services.SignedRequestClient
	if !cmd.Bool("local") {
		if client, err = r.cloudClient(ctx, id.DeviceID()); err != nil {
			r.logger.Warn("server not contacted", "error", err)
			client = nil
		}
	}

	userID := id.UserID()
	if err := cloud.UnregisterDevice(ctx, client, accounts, id); err != nil {
		return err
	}
	if err := services.DeleteToken(r.config.Cloud.TokenPath); err != nil {
		r.logger.Warn("failed to delete token", "error", err)
	}

	return r.writePlain("✓ Unlinked user #%d\n", userID)
}
