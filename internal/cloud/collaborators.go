package cloud

import (
	"github.com/desertthunder/playsync/internal/library"
	"github.com/desertthunder/playsync/internal/models"
)

// Library is the local playlist collection the engine keeps in sync.
//
// [library.Library] implements it.
type Library interface {
	Subscribe(fn func(library.Change)) (unsubscribe func())
	Playlists() []models.PlaylistData
	Get(key string) (models.PlaylistData, bool)
	ByCloudID(id uint) (models.PlaylistData, bool)
	ByName(name string) (models.PlaylistData, bool)
	Create(name string, id, owner uint, tracks []models.Track, origin models.Origin) (models.PlaylistData, error)
	Rename(key, name string, origin models.Origin) error
	SetCloudID(key string, id, owner uint, origin models.Origin) error
	AddTracks(key string, tracks []models.Track, origin models.Origin) ([]models.Track, error)
	RemoveTracks(key string, tracks []models.Track, origin models.Origin) ([]models.Track, error)
	Delete(key string, origin models.Origin) error
}

// Player executes remote playback commands.
type Player interface {
	Next() error
	Previous() error
	Play() error
	Pause() error
}

// Settings is the host's configuration store.
//
// Apply is called with [models.OriginRemote] for server-pushed values; implementations must not report those back
// through [Synchronizer.SettingChanged].
type Settings interface {
	Values() map[string]any
	Apply(values map[string]any, origin models.Origin) error
}

// NopPlayer ignores every command.
type NopPlayer struct{}

func (NopPlayer) Next() error     { return nil }
func (NopPlayer) Previous() error { return nil }
func (NopPlayer) Play() error     { return nil }
func (NopPlayer) Pause() error    { return nil }
