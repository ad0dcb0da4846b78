package cloud

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/library"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/desertthunder/playsync/internal/tasks"
	"github.com/robfig/cron/v3"
)

const eventBuffer = 64

// Options configures a [Synchronizer].
type Options struct {
	Client     services.SignedRequestClient
	Library    Library
	Identity   *Identity
	Player     Player   // optional
	Settings   Settings // optional
	Config     shared.SyncConfig
	DeviceName string
	Logger     *log.Logger
	OnDelink   func(userID uint) // called when the server deletes this device
}

// Synchronizer owns the synchronization engine of one linked account.
//
// Outbound, it turns local library changes, setting changes and playback into requests. Inbound, it applies
// server-pushed mutations with [models.OriginRemote] so they are not echoed back.
type Synchronizer struct {
	client   services.SignedRequestClient
	lib      Library
	identity *Identity
	player   Player
	settings Settings
	config   shared.SyncConfig
	device   string
	onDelink func(userID uint)

	pool    *tasks.Pool
	buffer  *OutgoingBuffer
	retry   *RetryScheduler
	listens *ListenTracker
	merger  *PlaylistMerger
	events  chan tasks.Update

	mu          sync.Mutex
	unsubscribe func()
	cron        *cron.Cron
	started     atomic.Bool
	stopped     atomic.Bool
	delinked    atomic.Bool
	logger      *log.Logger
}

// New wires a synchronizer. Client, Library and Identity are required.
func New(opts Options) (*Synchronizer, error) {
	if opts.Client == nil || opts.Library == nil || opts.Identity == nil {
		return nil, fmt.Errorf("%w: client, library and identity are required", shared.ErrInvalidArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Player == nil {
		opts.Player = NopPlayer{}
	}

	logger := opts.Logger.With("user", opts.Identity.UserID())
	pool := tasks.NewPool(tasks.PoolOpts{
		MaxConcurrent: opts.Config.MaxConcurrent,
		RateLimit:     opts.Config.RequestsPerSecond,
	}, logger)

	s := &Synchronizer{
		client:   opts.Client,
		lib:      opts.Library,
		identity: opts.Identity,
		player:   opts.Player,
		settings: opts.Settings,
		config:   opts.Config,
		device:   opts.DeviceName,
		onDelink: opts.OnDelink,
		pool:     pool,
		events:   make(chan tasks.Update, eventBuffer),
		logger:   logger.With("component", "synchronizer"),
	}

	s.buffer = NewOutgoingBuffer(opts.Client, pool, opts.Config.FlushDelay(), logger)
	s.buffer.events = s.events
	s.buffer.OnCreated(s.created)

	s.retry = NewRetryScheduler(opts.Client, pool, opts.Config.RetrySteps(), logger)
	s.retry.events = s.events

	s.listens = NewListenTracker(opts.Client, pool, s.retry, opts.Config.ListenDelay(), opts.Config.MinListen(), logger)
	s.listens.events = s.events

	s.merger = NewPlaylistMerger(opts.Library, s.buffer, opts.Identity.UserID, logger)
	s.merger.events = s.events

	return s, nil
}

// Events returns the stream of engine updates. Updates are dropped when the reader falls behind.
func (s *Synchronizer) Events() <-chan tasks.Update {
	return s.events
}

func (s *Synchronizer) notify(u tasks.Update) {
	tasks.Notify(s.events, u)
}

// Identity returns a snapshot of the linked account.
func (s *Synchronizer) Identity() models.CloudIdentity {
	return s.identity.Snapshot()
}

// Buffer exposes the outgoing buffer.
func (s *Synchronizer) Buffer() *OutgoingBuffer { return s.buffer }

// Retry exposes the retry scheduler.
func (s *Synchronizer) Retry() *RetryScheduler { return s.retry }

// Listens exposes the listen tracker.
func (s *Synchronizer) Listens() *ListenTracker { return s.listens }

// Start subscribes to the library and brings the account up to date: device name, configuration binding, links and
// playlists. No step is fatal; failures are logged and the engine keeps running with what it has.
// A stopped synchronizer cannot be restarted.
func (s *Synchronizer) Start(ctx context.Context) error {
	if s.stopped.Load() {
		return fmt.Errorf("%w: synchronizer was stopped", shared.ErrServiceUnavailable)
	}
	if s.started.Swap(true) {
		return nil
	}

	s.mu.Lock()
	s.unsubscribe = s.lib.Subscribe(s.libraryChanged)
	s.mu.Unlock()

	flags := s.identity.Flags()
	s.logger.Info("starting", "device", s.identity.DeviceID(), "configuration", s.identity.ConfigurationID())
	s.notify(tasks.NewUpdate(tasks.KindLifecycle, "synchronizer started"))

	if id, name := s.identity.DeviceID(), s.deviceName(); id != 0 && name != "" {
		op := models.NewSyncOperation(models.CommandUpdate, models.ObjectDevice, id)
		op.Params.Set("name", name)
		s.buffer.Enqueue(op)
	}

	if flags.Synchronize && flags.SynchronizeConfig {
		if err := s.bindConfiguration(ctx); err != nil {
			s.logger.Warn("configuration not bound", "error", err)
		}
	}

	if err := s.pullLinks(ctx); err != nil {
		s.logger.Warn("links not refreshed", "error", err)
	}

	if flags.Synchronize && flags.SynchronizePlaylists {
		if _, err := s.PullPlaylists(ctx); err != nil {
			s.logger.Warn("playlists not merged", "error", err)
		}
	}

	s.startResync()
	return nil
}

func (s *Synchronizer) startResync() {
	spec := s.config.ResyncSchedule
	if spec == "" {
		return
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.RequestTimeout())
		defer cancel()
		if _, err := s.PullPlaylists(ctx); err != nil {
			s.logger.Warn("scheduled resync failed", "error", err)
		}
	})
	if err != nil {
		s.logger.Warn("invalid resync schedule", "schedule", spec, "error", err)
		return
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	c.Start()
	s.logger.Debug("resync scheduled", "schedule", spec)
}

// Stop unsubscribes from the library, closes the current listen, flushes pending operations and waits for
// in-flight requests until ctx expires.
func (s *Synchronizer) Stop(ctx context.Context) error {
	if !s.started.Load() || s.stopped.Swap(true) {
		return nil
	}

	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.listens.Stop()
	flushed := s.buffer.Stop()
	s.retry.Stop()

	done := make(chan struct{})
	go func() {
		s.pool.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("%w: waiting for requests", shared.ErrTimeout)
	}
	s.pool.Close()

	if n := s.retry.Len(); n > 0 {
		s.logger.Warn("unsent listen requests discarded", "count", n)
	}
	s.logger.Info("stopped", "flushed", flushed)
	s.notify(tasks.NewUpdate(tasks.KindLifecycle, "synchronizer stopped"))
	return err
}

func (s *Synchronizer) deviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *Synchronizer) active() bool {
	return !s.delinked.Load() && s.identity.Flags().Synchronize
}

// PlaybackChanged reports a player state change.
func (s *Synchronizer) PlaybackChanged(state PlaybackState, track models.Track, playlist string) {
	if !s.active() {
		return
	}
	s.listens.PlaybackChanged(state, track, playlist)
}

// SettingChanged queues a local setting change for the bound configuration.
func (s *Synchronizer) SettingChanged(key string, value any) {
	if !s.active() || !s.identity.Flags().SynchronizeConfig {
		return
	}
	id := s.identity.ConfigurationID()
	if id == 0 {
		s.logger.Debug("setting not synced, no configuration bound", "key", key)
		return
	}

	op := models.NewSyncOperation(models.CommandUpdate, models.ObjectConfiguration, id)
	op.Params.Set(key, value)
	s.buffer.Enqueue(op)
}

// SetLinkFlag toggles a link capability locally and on the server.
func (s *Synchronizer) SetLinkFlag(linkID uint, flag models.LinkFlag, value bool) error {
	if _, err := s.identity.SetLinkFlag(linkID, flag, value); err != nil {
		return err
	}

	op := models.NewSyncOperation(models.CommandUpdate, models.ObjectLink, linkID)
	op.Params.Set(flag.ParamKey(), value)
	s.buffer.Enqueue(op)
	s.notify(tasks.NewUpdate(tasks.KindLink, "link %d: %s=%t", linkID, flag, value))
	return nil
}

// PullPlaylists fetches and merges every playlist of the linked user.
func (s *Synchronizer) PullPlaylists(ctx context.Context) (int, error) {
	n, err := s.merger.MergeAll(ctx, s.client)
	if err != nil {
		s.notify(tasks.NewUpdate(tasks.KindMerge, "playlist pull failed").WithErr(err))
		return 0, err
	}
	s.notify(tasks.NewUpdate(tasks.KindMerge, "merged %d playlist(s)", n))
	return n, nil
}

// SyncOnce pulls every playlist and sends the resulting operations without starting the engine.
// It returns once the requests completed or ctx expired.
func (s *Synchronizer) SyncOnce(ctx context.Context) (int, error) {
	if !s.identity.Flags().SynchronizePlaylists {
		return 0, fmt.Errorf("%w: playlist synchronization is disabled", shared.ErrInvalidArgument)
	}

	n, err := s.PullPlaylists(ctx)
	if err != nil {
		return 0, err
	}
	s.buffer.Flush()

	done := make(chan struct{})
	go func() {
		s.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		return n, nil
	case <-ctx.Done():
		return n, fmt.Errorf("%w: waiting for requests", shared.ErrTimeout)
	}
}

// libraryChanged turns local library changes into outgoing operations.
func (s *Synchronizer) libraryChanged(c library.Change) {
	if c.Origin == models.OriginRemote {
		return
	}
	if !s.active() || !s.identity.Flags().SynchronizePlaylists {
		return
	}

	p := c.Playlist
	var op *models.SyncOperation
	switch c.Kind {
	case library.PlaylistCreated:
		op = models.NewSyncOperation(models.CommandCreate, models.ObjectPlaylist, 0)
		op.Params.Set("name", p.Name)
		if len(c.Tracks) > 0 {
			delta := &models.SongsDelta{}
			delta.Add(c.Tracks...)
			op.Params.Set(models.SongsKey, delta)
		}
	case library.PlaylistRenamed:
		op = models.NewSyncOperation(models.CommandUpdate, models.ObjectPlaylist, p.ID)
		op.Params.Set("name", p.Name)
	case library.TracksAdded, library.TracksRemoved:
		op = models.NewSyncOperation(models.CommandUpdate, models.ObjectPlaylist, p.ID)
		delta := &models.SongsDelta{}
		if c.Kind == library.TracksAdded {
			delta.Add(c.Tracks...)
		} else {
			delta.Remove(c.Tracks...)
		}
		op.Params.Set(models.SongsKey, delta)
	case library.PlaylistDeleted:
		op = models.NewSyncOperation(models.CommandDelete, models.ObjectPlaylist, p.ID)
	default:
		return
	}

	op.Ref = p.Key
	s.buffer.Enqueue(op)
}

// created writes the server id of a new playlist back onto the local one and returns it.
func (s *Synchronizer) created(op *models.SyncOperation, resp *services.Response) uint {
	if op.ObjectType != models.ObjectPlaylist || op.Ref == "" {
		return 0
	}

	var reply CloudPlaylist
	if err := resp.Decode(&reply); err != nil || reply.ID == 0 {
		if err == nil {
			err = fmt.Errorf("%w: missing playlist id", shared.ErrMalformedPayload)
		}
		s.logger.Warn("playlist create reply dropped", "ref", op.Ref, "error", err)
		return 0
	}

	// a playlist deleted while its create was in flight still needs its delete sent
	if err := s.lib.SetCloudID(op.Ref, reply.ID, reply.OwnerID(), models.OriginRemote); err != nil {
		s.logger.Warn("playlist id not stored", "ref", op.Ref, "error", err)
		return reply.ID
	}
	s.logger.Debug("playlist created", "ref", op.Ref, "id", reply.ID)
	return reply.ID
}

type configurationEntry struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// bindConfiguration finds the configuration this device syncs with, creating one when none matches.
//
// The bound id is kept when the server still lists it; otherwise the configuration named after the device is
// adopted.
func (s *Synchronizer) bindConfiguration(ctx context.Context) error {
	var list []configurationEntry
	if err := services.GetJSON(ctx, s.client, "/configurations.json", &list); err != nil {
		return err
	}

	current, device := s.identity.ConfigurationID(), s.deviceName()
	for _, c := range list {
		if current != 0 && c.ID == current {
			return nil
		}
	}
	for _, c := range list {
		if device != "" && c.Name == device {
			s.identity.SetConfigurationID(c.ID)
			s.logger.Info("configuration bound", "id", c.ID)
			return nil
		}
	}

	params := models.NewParams("name", device)
	if s.settings != nil {
		for k, v := range s.settings.Values() {
			params.Set(k, v)
		}
	}
	resp, err := services.Call(ctx, s.client, &services.Request{
		Method: http.MethodPost,
		Path:   "/configurations.json",
		Query:  scopedQuery(models.ObjectConfiguration, params.Scalars()),
	}, http.StatusCreated)
	if err != nil {
		return err
	}

	var created configurationEntry
	if err := resp.Decode(&created); err != nil {
		return err
	}
	if created.ID == 0 {
		return fmt.Errorf("%w: missing configuration id", shared.ErrMalformedPayload)
	}
	s.identity.SetConfigurationID(created.ID)
	s.logger.Info("configuration created", "id", created.ID)
	return nil
}

func (s *Synchronizer) pullLinks(ctx context.Context) error {
	var links []models.Link
	if err := services.GetJSON(ctx, s.client, "/links.json", &links); err != nil {
		return err
	}
	s.identity.ReplaceLinks(links)
	s.notify(tasks.NewUpdate(tasks.KindLink, "%d link(s)", len(links)))
	return nil
}
