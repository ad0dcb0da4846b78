package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/desertthunder/playsync/internal/formatter"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// PlaylistsList prints the local playlists with their sync state.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	lib, err := r.loadLibrary(ctx, db)
	if err != nil {
		return err
	}

	playlists := lib.Playlists()
	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}
	return r.writePlain("%s", formatter.PlaylistTable(playlists))
}

// PlaylistsPull merges the account's cloud playlists into the local library once, without running the engine.
func (r *Runner) PlaylistsPull(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	pullCtx, cancel := context.WithTimeout(ctx, r.config.Sync.RequestTimeout())
	defer cancel()

	n, err := s.sync.SyncOnce(pullCtx)
	if err != nil {
		return err
	}

	r.writePlain("✓ Merged %d playlist(s)\n\n", n)
	return r.writePlain("%s", formatter.PlaylistTable(s.library.Playlists()))
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// exportPath derives a file name from the playlist name, e.g. "Road Trip" -> "road_trip.csv".
func exportPath(name, format string) string {
	base := strings.Trim(unsafeFilename.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if base == "" {
		base = "playlist"
	}
	if format == "md" || format == "markdown" {
		return base
	}
	return base + "." + format
}

// PlaylistsExport writes a local playlist as csv, txt, json or a markdown directory with its cover.
func (r *Runner) PlaylistsExport(ctx context.Context, cmd *cli.Command) error {
	name := cmd.StringArg("name")
	if name == "" {
		return fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	lib, err := r.loadLibrary(ctx, db)
	if err != nil {
		return err
	}

	p, ok := lib.ByName(name)
	if !ok {
		return fmt.Errorf("%w: %q", shared.ErrPlaylistNotFound, name)
	}

	format := strings.ToLower(cmd.String("format"))
	path := cmd.String("output")
	if path == "" {
		path = exportPath(p.Name, format)
	}

	files, err := formatter.Export(r.httpClient, p, format, path)
	if err != nil {
		return err
	}

	r.logger.Info("playlist exported", "name", p.Name, "format", format, "files", len(files))
	for _, f := range files {
		r.writePlain("✓ %s\n", f)
	}
	return nil
}
