package library

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/shared"
)

type memStore struct {
	mu    sync.Mutex
	saved map[string]models.PlaylistData
	err   error
}

func newMemStore() *memStore { return &memStore{saved: map[string]models.PlaylistData{}} }

func (m *memStore) ListPlaylists(context.Context) ([]models.PlaylistData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []models.PlaylistData
	for _, p := range m.saved {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) SavePlaylist(_ context.Context, p models.PlaylistData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[p.Key] = p
	return m.err
}

func (m *memStore) DeletePlaylist(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, key)
	return m.err
}

func track(path, title string) models.Track {
	return models.Track{Path: path, Title: title}
}

func record(l *Library) (*[]Change, func()) {
	var mu sync.Mutex
	var changes []Change
	unsub := l.Subscribe(func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})
	return &changes, unsub
}

func TestLibrary(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		l := New(nil, nil)
		changes, _ := record(l)

		p, err := l.Create("Road Trip", 0, 0, []models.Track{track("/a", "A"), track("/a", "A again"), track("/b", "B")}, models.OriginLocal)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if p.Key == "" {
			t.Error("expected a local key")
		}
		if len(p.Tracks) != 2 {
			t.Errorf("expected duplicate paths to collapse, got %d tracks", len(p.Tracks))
		}
		if len(*changes) != 1 || (*changes)[0].Kind != PlaylistCreated || (*changes)[0].Origin != models.OriginLocal {
			t.Errorf("unexpected changes %+v", *changes)
		}

		if _, err := l.Create("Road Trip", 0, 0, nil, models.OriginLocal); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected duplicate name to fail, got %v", err)
		}
		if _, err := l.Create("  ", 0, 0, nil, models.OriginLocal); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected empty name to fail, got %v", err)
		}
	})

	t.Run("Lookups", func(t *testing.T) {
		l := New(nil, nil)
		p, _ := l.Create("Road Trip", 42, 7, nil, models.OriginRemote)
		l.Create("Local", 0, 0, nil, models.OriginLocal)

		if got, ok := l.ByCloudID(42); !ok || got.Key != p.Key {
			t.Errorf("ByCloudID(42) = %+v, %v", got, ok)
		}
		if _, ok := l.ByCloudID(0); ok {
			t.Error("id 0 must never match")
		}
		if got, ok := l.ByName("Road Trip"); !ok || got.ID != 42 {
			t.Errorf("ByName() = %+v, %v", got, ok)
		}
		if _, ok := l.Get("missing"); ok {
			t.Error("expected missing key to miss")
		}

		all := l.Playlists()
		if len(all) != 2 || all[0].Name != "Road Trip" || all[1].Name != "Local" {
			t.Errorf("expected creation order, got %+v", all)
		}
	})

	t.Run("Snapshots Are Copies", func(t *testing.T) {
		l := New(nil, nil)
		p, _ := l.Create("Road Trip", 0, 0, []models.Track{track("/a", "A")}, models.OriginLocal)
		p.Tracks[0].Path = "/mutated"

		got, _ := l.Get(p.Key)
		if got.Tracks[0].Path != "/a" {
			t.Error("mutating a snapshot must not change the library")
		}
	})

	t.Run("AddTracks Is Path Unique And Batched", func(t *testing.T) {
		l := New(nil, nil)
		p, _ := l.Create("Road Trip", 0, 0, []models.Track{track("/a", "A")}, models.OriginLocal)
		changes, _ := record(l)

		added, err := l.AddTracks(p.Key, []models.Track{track("/a", "Different Title"), track("/c", "C"), track("/d", "D")}, models.OriginRemote)
		if err != nil {
			t.Fatalf("AddTracks() error = %v", err)
		}
		if len(added) != 2 {
			t.Errorf("expected 2 added tracks, got %+v", added)
		}
		if len(*changes) != 1 || len((*changes)[0].Tracks) != 2 || (*changes)[0].Origin != models.OriginRemote {
			t.Errorf("expected one batched change, got %+v", *changes)
		}

		added, _ = l.AddTracks(p.Key, []models.Track{track("/a", "A")}, models.OriginLocal)
		if len(added) != 0 || len(*changes) != 1 {
			t.Error("adding an existing path must not notify")
		}

		got, _ := l.Get(p.Key)
		if len(got.Tracks) != 3 || got.Tracks[0].Title != "A" {
			t.Errorf("unexpected tracks %+v", got.Tracks)
		}
	})

	t.Run("RemoveTracks", func(t *testing.T) {
		l := New(nil, nil)
		p, _ := l.Create("Road Trip", 0, 0, []models.Track{track("/a", "A"), track("/b", "B")}, models.OriginLocal)

		removed, err := l.RemoveTracks(p.Key, []models.Track{{Path: "/b"}, {Path: "/zzz"}}, models.OriginLocal)
		if err != nil || len(removed) != 1 || removed[0].Title != "B" {
			t.Errorf("RemoveTracks() = %+v, %v", removed, err)
		}
	})

	t.Run("Rename And SetCloudID", func(t *testing.T) {
		l := New(nil, nil)
		p, _ := l.Create("Road Trip", 0, 0, nil, models.OriginLocal)
		l.Create("Taken", 0, 0, nil, models.OriginLocal)
		changes, _ := record(l)

		if err := l.Rename(p.Key, "Road Trip", models.OriginLocal); err != nil || len(*changes) != 0 {
			t.Errorf("renaming to the same name should be a silent no-op: %v", err)
		}
		if err := l.Rename(p.Key, "Taken", models.OriginLocal); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected name collision error, got %v", err)
		}
		if err := l.Rename(p.Key, "Summer", models.OriginLocal); err != nil {
			t.Fatalf("Rename() error = %v", err)
		}
		if c := (*changes)[0]; c.Kind != PlaylistRenamed || c.OldName != "Road Trip" || c.Playlist.Name != "Summer" {
			t.Errorf("unexpected rename change %+v", c)
		}

		if err := l.SetCloudID(p.Key, 42, 7, models.OriginRemote); err != nil {
			t.Fatalf("SetCloudID() error = %v", err)
		}
		if got, _ := l.ByCloudID(42); got.Owner != 7 {
			t.Errorf("expected owner 7, got %d", got.Owner)
		}
		if err := l.SetCloudID("missing", 1, 1, models.OriginRemote); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("Delete And Unsubscribe", func(t *testing.T) {
		l := New(nil, nil)
		p, _ := l.Create("Road Trip", 0, 0, nil, models.OriginLocal)
		changes, unsub := record(l)

		if err := l.Delete(p.Key, models.OriginRemote); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if (*changes)[0].Kind != PlaylistDeleted || (*changes)[0].Playlist.Name != "Road Trip" {
			t.Errorf("unexpected delete change %+v", (*changes)[0])
		}

		unsub()
		unsub()
		l.Create("Other", 0, 0, nil, models.OriginLocal)
		if len(*changes) != 1 {
			t.Error("expected no notifications after unsubscribe")
		}

		if err := l.Delete(p.Key, models.OriginLocal); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("Store Write Through And Load", func(t *testing.T) {
		store := newMemStore()
		l := New(store, nil)
		p, _ := l.Create("Road Trip", 0, 0, []models.Track{track("/a", "A")}, models.OriginLocal)
		l.AddTracks(p.Key, []models.Track{track("/b", "B")}, models.OriginLocal)

		if got := store.saved[p.Key]; len(got.Tracks) != 2 {
			t.Errorf("expected store to hold 2 tracks, got %+v", got)
		}

		reloaded := New(store, nil)
		if err := reloaded.Load(context.Background()); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got, ok := reloaded.Get(p.Key); !ok || got.Name != "Road Trip" {
			t.Errorf("expected reloaded playlist, got %+v", got)
		}

		l.Delete(p.Key, models.OriginLocal)
		if _, ok := store.saved[p.Key]; ok {
			t.Error("expected store entry to be deleted")
		}

		store.err = errors.New("disk full")
		if err := reloaded.Load(context.Background()); err == nil {
			t.Error("expected load error")
		}
	})
}
