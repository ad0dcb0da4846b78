package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/playsync/internal/formatter"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
)

type statusReport struct {
	Linked    bool                  `json:"linked"`
	Identity  *models.CloudIdentity `json:"identity,omitempty"`
	Playlists int                   `json:"playlists"`
	Synced    int                   `json:"synced"`
	Database  string                `json:"database"`
	SizeBytes int64                 `json:"size_bytes"`
}

// Status prints the linked account, its link registry and a summary of the local library.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	report := statusReport{Database: r.config.Database.Path}
	if info, err := os.Stat(r.config.Database.Path); err == nil {
		report.SizeBytes = info.Size()
	}

	accounts, err := r.loadAccounts(ctx, db)
	if err != nil {
		return err
	}
	if id, err := accounts.Primary(); err == nil {
		data := id.Snapshot()
		report.Linked = true
		report.Identity = &data
	} else if !errors.Is(err, shared.ErrNotLinked) {
		return err
	}

	lib, err := r.loadLibrary(ctx, db)
	if err != nil {
		return err
	}
	playlists := lib.Playlists()
	report.Playlists = len(playlists)
	for _, p := range playlists {
		if p.ID != 0 {
			report.Synced++
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	r.writePlainHeader("Account")
	if report.Identity == nil {
		r.writePlain("Not linked. Run 'playsync link' to link this device.\n")
	} else {
		r.writePlain("%s", formatter.IdentitySummary(*report.Identity))
		r.writePlainln("Links:")
		r.writePlain("%s", formatter.LinkTable(report.Identity.Links))
	}

	r.writePlainln("Library:")
	r.writePlain("Playlists: %d (%d synced)\n", report.Playlists, report.Synced)
	return r.writePlain("Database:  %s (%s)\n", report.Database, formatter.Bytes(report.SizeBytes))
}
