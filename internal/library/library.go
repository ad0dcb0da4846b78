// package library holds the local playlist collection and notifies observers of every change
package library

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/shared"
)

// ChangeKind is the kind of mutation a [Change] describes.
type ChangeKind int

const (
	PlaylistCreated ChangeKind = iota
	PlaylistRenamed
	PlaylistAdopted // cloud id and owner assigned
	TracksAdded
	TracksRemoved
	PlaylistDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case PlaylistCreated:
		return "created"
	case PlaylistRenamed:
		return "renamed"
	case PlaylistAdopted:
		return "adopted"
	case TracksAdded:
		return "tracks_added"
	case TracksRemoved:
		return "tracks_removed"
	case PlaylistDeleted:
		return "deleted"
	default:
		return ""
	}
}

// Change describes one mutation of the collection. Playlist is a snapshot taken after the mutation
// (before it, for deletes). Tracks holds the batch for track changes.
type Change struct {
	Kind     ChangeKind
	Playlist models.PlaylistData
	Tracks   []models.Track
	OldName  string
	Origin   models.Origin
}

// Store persists the collection.
type Store interface {
	ListPlaylists(ctx context.Context) ([]models.PlaylistData, error)
	SavePlaylist(ctx context.Context, p models.PlaylistData) error
	DeletePlaylist(ctx context.Context, key string) error
}

// Library is the local playlist collection.
//
// Playlists are keyed by a local uuid and can be looked up by cloud id and by name. Names are unique.
// Every mutation carries the [models.Origin] it was made with so observers can ignore their own echoes.
type Library struct {
	mu        sync.RWMutex
	playlists map[string]*models.PlaylistData
	order     []string
	subMu     sync.RWMutex
	subs      map[int]func(Change)
	nextSub   int
	store     Store
	logger    *log.Logger
}

// New creates an empty library. store may be nil for a memory-only collection.
func New(store Store, logger *log.Logger) *Library {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Library{
		playlists: map[string]*models.PlaylistData{},
		subs:      map[int]func(Change){},
		store:     store,
		logger:    logger.With("component", "library"),
	}
}

// Load replaces the collection with the store's content without notifying observers.
func (l *Library) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	pls, err := l.store.ListPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("failed to load playlists: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.playlists = make(map[string]*models.PlaylistData, len(pls))
	l.order = l.order[:0]
	for _, p := range pls {
		p := p.Clone()
		p.Tracks, _ = models.AppendUnique(nil, p.Tracks...)
		l.playlists[p.Key] = &p
		l.order = append(l.order, p.Key)
	}
	return nil
}

// Subscribe registers fn for every change and returns the function that removes it.
//
// Observers run synchronously on the mutating goroutine, after the library lock is released.
func (l *Library) Subscribe(fn func(Change)) (unsubscribe func()) {
	l.subMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.subMu.Lock()
			delete(l.subs, id)
			l.subMu.Unlock()
		})
	}
}

func (l *Library) notify(c Change) {
	l.subMu.RLock()
	ids := make([]int, 0, len(l.subs))
	for id := range l.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.subs[id])
	}
	l.subMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (l *Library) persist(p models.PlaylistData) {
	if l.store == nil {
		return
	}
	if err := l.store.SavePlaylist(context.Background(), p); err != nil {
		l.logger.Warn("failed to persist playlist", "playlist", p.Name, "error", err)
	}
}

// Playlists returns snapshots of every playlist in creation order.
func (l *Library) Playlists() []models.PlaylistData {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.PlaylistData, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, l.playlists[k].Clone())
	}
	return out
}

// Get returns the playlist with the given local key.
func (l *Library) Get(key string) (models.PlaylistData, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if p, ok := l.playlists[key]; ok {
		return p.Clone(), true
	}
	return models.PlaylistData{}, false
}

// ByCloudID returns the playlist with the given server id. id 0 never matches.
func (l *Library) ByCloudID(id uint) (models.PlaylistData, bool) {
	if id == 0 {
		return models.PlaylistData{}, false
	}
	return l.find(func(p *models.PlaylistData) bool { return p.ID == id })
}

// ByName returns the playlist with the given name.
func (l *Library) ByName(name string) (models.PlaylistData, bool) {
	return l.find(func(p *models.PlaylistData) bool { return p.Name == name })
}

func (l *Library) find(match func(*models.PlaylistData) bool) (models.PlaylistData, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, k := range l.order {
		if p := l.playlists[k]; match(p) {
			return p.Clone(), true
		}
	}
	return models.PlaylistData{}, false
}

func (l *Library) nameTaken(name, except string) bool {
	for k, p := range l.playlists {
		if k != except && p.Name == name {
			return true
		}
	}
	return false
}

// Create adds a playlist. Duplicate track paths in tracks are collapsed.
func (l *Library) Create(name string, id, owner uint, tracks []models.Track, origin models.Origin) (models.PlaylistData, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.PlaylistData{}, fmt.Errorf("%w: playlist name is required", shared.ErrInvalidInput)
	}

	l.mu.Lock()
	if l.nameTaken(name, "") {
		l.mu.Unlock()
		return models.PlaylistData{}, fmt.Errorf("%w: playlist %q already exists", shared.ErrInvalidInput, name)
	}

	p := &models.PlaylistData{Key: shared.GenerateID(), ID: id, Name: name, Owner: owner}
	p.Tracks, _ = models.AppendUnique(nil, tracks...)
	l.playlists[p.Key] = p
	l.order = append(l.order, p.Key)
	snap := p.Clone()
	l.mu.Unlock()

	l.persist(snap)
	l.notify(Change{Kind: PlaylistCreated, Playlist: snap, Tracks: snap.Tracks, Origin: origin})
	return snap, nil
}

// mutate applies fn to the playlist under the lock. fn reports whether anything changed.
func (l *Library) mutate(key string, fn func(p *models.PlaylistData) (bool, error)) (models.PlaylistData, bool, error) {
	l.mu.Lock()
	p, ok := l.playlists[key]
	if !ok {
		l.mu.Unlock()
		return models.PlaylistData{}, false, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, key)
	}
	changed, err := fn(p)
	snap := p.Clone()
	l.mu.Unlock()

	if err != nil {
		return snap, false, err
	}
	if changed {
		l.persist(snap)
	}
	return snap, changed, nil
}

// Rename changes the name of a playlist. Renaming to the current name is a no-op.
func (l *Library) Rename(key, name string, origin models.Origin) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: playlist name is required", shared.ErrInvalidInput)
	}

	var old string
	snap, changed, err := l.mutate(key, func(p *models.PlaylistData) (bool, error) {
		if p.Name == name {
			return false, nil
		}
		if l.nameTaken(name, key) {
			return false, fmt.Errorf("%w: playlist %q already exists", shared.ErrInvalidInput, name)
		}
		old, p.Name = p.Name, name
		return true, nil
	})
	if err != nil || !changed {
		return err
	}

	l.notify(Change{Kind: PlaylistRenamed, Playlist: snap, OldName: old, Origin: origin})
	return nil
}

// SetCloudID records the server id and owner of a playlist.
func (l *Library) SetCloudID(key string, id, owner uint, origin models.Origin) error {
	snap, changed, err := l.mutate(key, func(p *models.PlaylistData) (bool, error) {
		if p.ID == id && p.Owner == owner {
			return false, nil
		}
		p.ID, p.Owner = id, owner
		return true, nil
	})
	if err != nil || !changed {
		return err
	}

	l.notify(Change{Kind: PlaylistAdopted, Playlist: snap, Origin: origin})
	return nil
}

// AddTracks appends the tracks whose path the playlist does not hold yet, as one batch.
// It returns the tracks actually added; nothing is notified when that is empty.
func (l *Library) AddTracks(key string, tracks []models.Track, origin models.Origin) ([]models.Track, error) {
	var added []models.Track
	snap, changed, err := l.mutate(key, func(p *models.PlaylistData) (bool, error) {
		p.Tracks, added = models.AppendUnique(p.Tracks, tracks...)
		return len(added) > 0, nil
	})
	if err != nil || !changed {
		return nil, err
	}

	l.notify(Change{Kind: TracksAdded, Playlist: snap, Tracks: added, Origin: origin})
	return added, nil
}

// RemoveTracks removes the tracks matching the given paths, as one batch.
func (l *Library) RemoveTracks(key string, tracks []models.Track, origin models.Origin) ([]models.Track, error) {
	var removed []models.Track
	snap, changed, err := l.mutate(key, func(p *models.PlaylistData) (bool, error) {
		p.Tracks, removed = models.RemovePaths(p.Tracks, tracks...)
		return len(removed) > 0, nil
	})
	if err != nil || !changed {
		return nil, err
	}

	l.notify(Change{Kind: TracksRemoved, Playlist: snap, Tracks: removed, Origin: origin})
	return removed, nil
}

// Delete removes a playlist.
func (l *Library) Delete(key string, origin models.Origin) error {
	l.mu.Lock()
	p, ok := l.playlists[key]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, key)
	}
	delete(l.playlists, key)
	l.order = slices.DeleteFunc(l.order, func(k string) bool { return k == key })
	snap := p.Clone()
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.DeletePlaylist(context.Background(), key); err != nil {
			l.logger.Warn("failed to delete persisted playlist", "playlist", snap.Name, "error", err)
		}
	}

	l.notify(Change{Kind: PlaylistDeleted, Playlist: snap, Origin: origin})
	return nil
}
