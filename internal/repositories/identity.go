package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/shared"
)

// IdentityRepository persists linked accounts together with their link registries.
type IdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new IdentityRepository with the given database connection
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

const identityColumns = `user_id, name, device_id, configuration_id, synchronize, synchronize_config, synchronize_playlists`

const linkColumns = `id, provider, url, connected, can_share, do_share, can_listen, do_listen,
	can_donate, do_donate, can_create_playlist, do_create_playlist`

// SaveIdentity inserts or updates an identity and replaces its links.
func (r *IdentityRepository) SaveIdentity(ctx context.Context, id models.CloudIdentity) error {
	if id.UserID == 0 {
		return fmt.Errorf("%w: user id is required", shared.ErrInvalidInput)
	}

	return withTx(r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO identities (` + identityColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE
			SET name = excluded.name,
				device_id = excluded.device_id,
				configuration_id = excluded.configuration_id,
				synchronize = excluded.synchronize,
				synchronize_config = excluded.synchronize_config,
				synchronize_playlists = excluded.synchronize_playlists
		`
		_, err := tx.ExecContext(ctx, query,
			id.UserID,
			id.Name,
			id.DeviceID,
			id.ConfigurationID,
			id.Flags.Synchronize,
			id.Flags.SynchronizeConfig,
			id.Flags.SynchronizePlaylists,
		)
		if err != nil {
			return fmt.Errorf("failed to save identity: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM links WHERE user_id = ?", id.UserID); err != nil {
			return fmt.Errorf("failed to clear links: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO links (user_id, position, `+linkColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare link insert: %w", err)
		}
		defer stmt.Close()

		for i, l := range id.Links {
			_, err := stmt.ExecContext(ctx, id.UserID, i,
				l.ID, l.Provider, l.URL, l.Connected,
				l.CanShare, l.DoShare, l.CanListen, l.DoListen,
				l.CanDonate, l.DoDonate, l.CanCreatePlaylist, l.DoCreatePlaylist,
			)
			if err != nil {
				return fmt.Errorf("failed to insert link %d: %w", l.ID, err)
			}
		}
		return nil
	})
}

// GetIdentity retrieves one identity with its links.
func (r *IdentityRepository) GetIdentity(ctx context.Context, userID uint) (models.CloudIdentity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE user_id = ?`, userID)

	id, err := r.scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return id, fmt.Errorf("%w: user %d", shared.ErrNotLinked, userID)
	}
	if err != nil {
		return id, err
	}

	if id.Links, err = r.links(ctx, userID); err != nil {
		return id, err
	}
	return id, nil
}

// ListIdentities retrieves every identity in link order.
func (r *IdentityRepository) ListIdentities(ctx context.Context) ([]models.CloudIdentity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY linked_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	var ids []models.CloudIdentity
	for rows.Next() {
		id, err := r.scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for i := range ids {
		if ids[i].Links, err = r.links(ctx, ids[i].UserID); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// DeleteIdentity removes an identity and its links.
func (r *IdentityRepository) DeleteIdentity(ctx context.Context, userID uint) error {
	return withTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM links WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("failed to delete links: %w", err)
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM identities WHERE user_id = ?", userID)
		if err != nil {
			return fmt.Errorf("failed to delete identity: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: user %d", shared.ErrNotLinked, userID)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *IdentityRepository) scanIdentity(row scanner) (models.CloudIdentity, error) {
	var id models.CloudIdentity
	err := row.Scan(
		&id.UserID,
		&id.Name,
		&id.DeviceID,
		&id.ConfigurationID,
		&id.Flags.Synchronize,
		&id.Flags.SynchronizeConfig,
		&id.Flags.SynchronizePlaylists,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return id, err
	}
	if err != nil {
		return id, fmt.Errorf("failed to scan identity: %w", err)
	}
	return id, nil
}

func (r *IdentityRepository) links(ctx context.Context, userID uint) ([]models.Link, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+linkColumns+` FROM links WHERE user_id = ? ORDER BY position ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []models.Link
	for rows.Next() {
		var l models.Link
		err := rows.Scan(&l.ID, &l.Provider, &l.URL, &l.Connected,
			&l.CanShare, &l.DoShare, &l.CanListen, &l.DoListen,
			&l.CanDonate, &l.DoDonate, &l.CanCreatePlaylist, &l.DoCreatePlaylist)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return links, nil
}
