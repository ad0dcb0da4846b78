package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/shared"
)

// PlaylistRepository persists the local playlist library.
//
// Playlists are keyed by their local key; tracks keep their list order through the position column.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// SavePlaylist inserts or updates a playlist and replaces its track list.
func (r *PlaylistRepository) SavePlaylist(ctx context.Context, p models.PlaylistData) error {
	if p.Key == "" || p.Name == "" {
		return fmt.Errorf("%w: playlist needs a key and a name", shared.ErrInvalidInput)
	}

	return withTx(r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO playlists (id, cloud_id, name, owner, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE
			SET cloud_id = excluded.cloud_id, name = excluded.name, owner = excluded.owner, updated_at = excluded.updated_at
		`
		if _, err := tx.ExecContext(ctx, query, p.Key, p.ID, p.Name, p.Owner, time.Now()); err != nil {
			return fmt.Errorf("failed to save playlist: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM playlist_tracks WHERE playlist_id = ?", p.Key); err != nil {
			return fmt.Errorf("failed to clear playlist tracks: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO playlist_tracks (playlist_id, position, path, title, artist, album, genre, length, art_url, foreign_url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare track insert: %w", err)
		}
		defer stmt.Close()

		for i, t := range p.Tracks {
			if _, err := stmt.ExecContext(ctx, p.Key, i, t.Path, t.Title, t.Artist, t.Album, t.Genre, t.Length, t.ArtURL, t.ForeignURL); err != nil {
				return fmt.Errorf("failed to insert track %s: %w", t.Path, err)
			}
		}
		return nil
	})
}

// GetPlaylist retrieves one playlist with its tracks.
func (r *PlaylistRepository) GetPlaylist(ctx context.Context, key string) (models.PlaylistData, error) {
	query := `SELECT id, cloud_id, name, owner FROM playlists WHERE id = ?`

	var p models.PlaylistData
	err := r.db.QueryRowContext(ctx, query, key).Scan(&p.Key, &p.ID, &p.Name, &p.Owner)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, key)
	}
	if err != nil {
		return p, fmt.Errorf("failed to scan playlist: %w", err)
	}

	tracks, err := r.tracks(ctx, key)
	if err != nil {
		return p, err
	}
	p.Tracks = tracks[key]
	return p, nil
}

// ListPlaylists retrieves every playlist in insertion order.
func (r *PlaylistRepository) ListPlaylists(ctx context.Context) ([]models.PlaylistData, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, cloud_id, name, owner FROM playlists ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []models.PlaylistData
	for rows.Next() {
		var p models.PlaylistData
		if err := rows.Scan(&p.Key, &p.ID, &p.Name, &p.Owner); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	tracks, err := r.tracks(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range playlists {
		playlists[i].Tracks = tracks[playlists[i].Key]
	}
	return playlists, nil
}

// DeletePlaylist removes a playlist and its tracks. Deleting an unknown key is not an error.
func (r *PlaylistRepository) DeletePlaylist(ctx context.Context, key string) error {
	return withTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM playlist_tracks WHERE playlist_id = ?", key); err != nil {
			return fmt.Errorf("failed to delete playlist tracks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", key); err != nil {
			return fmt.Errorf("failed to delete playlist: %w", err)
		}
		return nil
	})
}

// tracks loads track lists grouped by playlist key, for one playlist or (key == "") all of them.
func (r *PlaylistRepository) tracks(ctx context.Context, key string) (map[string][]models.Track, error) {
	query := `
		SELECT playlist_id, path, title, artist, album, genre, length, art_url, foreign_url
		FROM playlist_tracks
	`
	var args []any
	if key != "" {
		query += " WHERE playlist_id = ?"
		args = append(args, key)
	}
	query += " ORDER BY playlist_id, position ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist tracks: %w", err)
	}
	defer rows.Close()

	out := map[string][]models.Track{}
	for rows.Next() {
		var (
			playlistID string
			t          models.Track
		)
		if err := rows.Scan(&playlistID, &t.Path, &t.Title, &t.Artist, &t.Album, &t.Genre, &t.Length, &t.ArtURL, &t.ForeignURL); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		out[playlistID] = append(out[playlistID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
