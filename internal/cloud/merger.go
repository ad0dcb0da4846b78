package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/desertthunder/playsync/internal/tasks"
)

// CloudPlaylist is a playlist as the service represents it.
type CloudPlaylist struct {
	ID     uint           `json:"id"`
	Name   string         `json:"name"`
	Owner  uint           `json:"owner"`
	UserID uint           `json:"user_id"`
	Songs  []models.Track `json:"songs"`
}

// OwnerID returns the owner, falling back to user_id.
func (c CloudPlaylist) OwnerID() uint {
	if c.Owner != 0 {
		return c.Owner
	}
	return c.UserID
}

// Enqueuer accepts outgoing operations.
type Enqueuer interface {
	Enqueue(op *models.SyncOperation)
}

// PlaylistMerger reconciles cloud playlists with the local library.
type PlaylistMerger struct {
	lib    Library
	out    Enqueuer
	userID func() uint
	events chan<- tasks.Update
	logger *log.Logger
}

// NewPlaylistMerger creates a merger. userID returns the id of the linked user.
func NewPlaylistMerger(lib Library, out Enqueuer, userID func() uint, logger *log.Logger) *PlaylistMerger {
	return &PlaylistMerger{lib: lib, out: out, userID: userID, logger: logger.With("component", "merger")}
}

// Merge applies a cloud playlist to the library and returns the resulting local playlist.
//
// The local playlist is found by cloud id, then by name, and created otherwise. Cloud songs missing locally are
// added in one batch. When the linked user owns the playlist, local-only tracks are queued as one songs.added
// update. All library mutations are tagged remote.
func (m *PlaylistMerger) Merge(cp CloudPlaylist) (models.PlaylistData, error) {
	if cp.ID == 0 || cp.Name == "" {
		return models.PlaylistData{}, fmt.Errorf("%w: playlist needs an id and a name", shared.ErrMalformedPayload)
	}

	owner := cp.OwnerID()
	songs, _ := models.AppendUnique(nil, cp.Songs...)

	local, err := m.match(cp, owner, songs)
	if err != nil {
		return models.PlaylistData{}, err
	}

	if missing := models.Difference(songs, local.Tracks); len(missing) > 0 {
		if _, err := m.lib.AddTracks(local.Key, missing, models.OriginRemote); err != nil {
			return models.PlaylistData{}, fmt.Errorf("failed to add cloud tracks: %w", err)
		}
	}

	var pushed int
	if uid := m.userID(); uid != 0 && owner == uid {
		if localOnly := models.Difference(local.Tracks, songs); len(localOnly) > 0 {
			op := models.NewSyncOperation(models.CommandUpdate, models.ObjectPlaylist, cp.ID)
			op.Ref = local.Key
			delta := &models.SongsDelta{}
			delta.Add(localOnly...)
			op.Params.Set(models.SongsKey, delta)
			m.out.Enqueue(op)
			pushed = len(localOnly)
		}
	}

	merged, _ := m.lib.Get(local.Key)
	m.logger.Debug("merged playlist", "name", merged.Name, "id", merged.ID, "tracks", len(merged.Tracks), "pushed", pushed)
	tasks.Notify(m.events, tasks.NewUpdate(tasks.KindMerge, "merged %s", merged.Name).WithData(merged))
	return merged, nil
}

// match finds or creates the local playlist for cp. id wins over name, name over create.
func (m *PlaylistMerger) match(cp CloudPlaylist, owner uint, songs []models.Track) (models.PlaylistData, error) {
	if local, ok := m.lib.ByCloudID(cp.ID); ok {
		if local.Owner != owner {
			if err := m.lib.SetCloudID(local.Key, cp.ID, owner, models.OriginRemote); err != nil {
				return local, err
			}
		}
		if local.Name != cp.Name {
			if err := m.lib.Rename(local.Key, cp.Name, models.OriginRemote); err != nil {
				m.logger.Warn("cloud rename skipped", "from", local.Name, "to", cp.Name, "error", err)
			}
		}
		return local, nil
	}

	if local, ok := m.lib.ByName(cp.Name); ok {
		if err := m.lib.SetCloudID(local.Key, cp.ID, owner, models.OriginRemote); err != nil {
			return local, err
		}
		return local, nil
	}

	created, err := m.lib.Create(cp.Name, cp.ID, owner, songs, models.OriginRemote)
	if err != nil {
		return created, fmt.Errorf("failed to create playlist: %w", err)
	}
	return created, nil
}

// MergeAll fetches the user's playlists and merges each one. Malformed entries are logged and skipped.
func (m *PlaylistMerger) MergeAll(ctx context.Context, client services.SignedRequestClient) (int, error) {
	var raw []json.RawMessage
	if err := services.GetJSON(ctx, client, "/me/playlists.json", &raw); err != nil {
		return 0, fmt.Errorf("failed to fetch playlists: %w", err)
	}

	merged := 0
	for _, entry := range raw {
		var cp CloudPlaylist
		if err := json.Unmarshal(entry, &cp); err != nil {
			m.logger.Warn("skipping playlist", "error", fmt.Errorf("%w: %v", shared.ErrMalformedPayload, err))
			continue
		}
		if _, err := m.Merge(cp); err != nil {
			if errors.Is(err, shared.ErrMalformedPayload) {
				m.logger.Warn("skipping playlist", "error", err)
			} else {
				m.logger.Error("failed to merge playlist", "name", cp.Name, "error", err)
			}
			continue
		}
		merged++
	}
	return merged, nil
}
