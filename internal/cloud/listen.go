package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/desertthunder/playsync/internal/tasks"
)

// PlaybackState is the state reported by the player.
type PlaybackState int

const (
	Stopped PlaybackState = iota
	Playing
	Paused
)

func (s PlaybackState) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// ParsePlaybackState parses "playing", "paused" or "stopped".
func ParsePlaybackState(s string) (PlaybackState, error) {
	switch s {
	case "playing", "play":
		return Playing, nil
	case "paused", "pause":
		return Paused, nil
	case "stopped", "stop":
		return Stopped, nil
	default:
		return Stopped, fmt.Errorf("%w: playback state %q", shared.ErrInvalidArgument, s)
	}
}

// ListenTracker follows the track being listened to and mirrors it as a server-side listen.
//
// A listen is only submitted once a track has played for the start delay; pausing stops that countdown. Leaving a submitted track ends the
// listen when it was heard for at least the minimum listen time and deletes it otherwise. When the track is left
// before the server has answered the start request, the decision is recorded on the session and applied to the
// reply.
type ListenTracker struct {
	mu        sync.Mutex
	session   *models.ListenSession
	inflight  map[string]*models.ListenSession
	debounce  *tasks.Debouncer
	minListen time.Duration
	now       func() time.Time
	client    services.SignedRequestClient
	pool      *tasks.Pool
	retry     *RetryScheduler
	events    chan<- tasks.Update
	logger    *log.Logger
}

// NewListenTracker creates an idle tracker.
func NewListenTracker(client services.SignedRequestClient, pool *tasks.Pool, retry *RetryScheduler, delay, minListen time.Duration, logger *log.Logger) *ListenTracker {
	t := &ListenTracker{
		inflight:  map[string]*models.ListenSession{},
		minListen: minListen,
		now:       time.Now,
		client:    client,
		pool:      pool,
		retry:     retry,
		logger:    logger.With("component", "listens"),
	}
	t.debounce = tasks.NewDebouncer(delay, t.submit)
	return t
}

// Session returns a copy of the current session, if any.
func (t *ListenTracker) Session() (models.ListenSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return models.ListenSession{}, false
	}
	return *t.session, true
}

// InFlight reports whether a start request for path awaits its reply.
func (t *ListenTracker) InFlight(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inflight[path]
	return ok
}

// PlaybackChanged feeds a player state change into the tracker.
func (t *ListenTracker) PlaybackChanged(state PlaybackState, track models.Track, playlist string) {
	now := t.now()

	t.mu.Lock()
	var follow []*services.Request
	switch state {
	case Playing:
		if s := t.session; s != nil && s.TrackPath == track.Path {
			// resuming a track paused before the start delay re-arms it
			if s.State == models.ListenPending && !t.debounce.Pending() {
				t.debounce.Reset()
			}
			t.mu.Unlock()
			return
		}
		follow = t.finishLocked(now)
		if _, busy := t.inflight[track.Path]; busy || track.Path == "" {
			t.session = nil
			break
		}
		t.session = &models.ListenSession{
			TrackPath: track.Path,
			Track:     track,
			Playlist:  playlist,
			StartedAt: now,
			State:     models.ListenPending,
		}
		t.debounce.Reset()
	case Paused:
		s := t.session
		switch {
		case s == nil:
		case s.State == models.ListenPending:
			t.debounce.Cancel()
		case s.State == models.ListenSubmitted:
			follow = append(follow, pauseRequest(s.CloudListenID, now))
		}
	case Stopped:
		follow = t.finishLocked(now)
		t.session = nil
	}
	t.mu.Unlock()

	t.dispatch(follow...)
}

// Stop finishes the current session and disarms the start timer.
func (t *ListenTracker) Stop() {
	t.mu.Lock()
	follow := t.finishLocked(t.now())
	t.session = nil
	t.mu.Unlock()

	t.debounce.Stop()
	t.dispatch(follow...)
}

// finishLocked leaves the current session and returns the requests that close it.
func (t *ListenTracker) finishLocked(now time.Time) []*services.Request {
	s := t.session
	if s == nil || s.Finished {
		return nil
	}
	s.Finished = true
	s.EndedAt = now

	switch s.State {
	case models.ListenPending:
		t.debounce.Cancel()
		s.State = models.ListenIdle
		return nil
	case models.ListenSubmitting:
		s.PendingDeleteOnReply = s.Elapsed(now) < t.minListen
		return nil
	case models.ListenSubmitted:
		return []*services.Request{t.closeLocked(s)}
	}
	return nil
}

// closeLocked ends or deletes a submitted, finished session.
func (t *ListenTracker) closeLocked(s *models.ListenSession) *services.Request {
	if s.Elapsed(s.EndedAt) >= t.minListen {
		s.State = models.ListenEnded
		return endRequest(s.CloudListenID)
	}
	s.State = models.ListenDeleted
	return deleteRequest(s.CloudListenID)
}

// submit fires when the start delay expires.
func (t *ListenTracker) submit() {
	t.mu.Lock()
	s := t.session
	if s == nil || s.State != models.ListenPending || s.Finished {
		t.mu.Unlock()
		return
	}
	s.State = models.ListenSubmitting
	t.inflight[s.TrackPath] = s
	req := startRequest(s)
	t.mu.Unlock()

	tasks.Notify(t.events, tasks.NewUpdate(tasks.KindListen, "listening to %s", describe(s.Track)))
	t.send(req, func(status int, body []byte) { t.started(s, status, body) })
}

// started handles the reply of a start request.
func (t *ListenTracker) started(s *models.ListenSession, status int, body []byte) {
	if status != http.StatusCreated {
		t.mu.Lock()
		delete(t.inflight, s.TrackPath)
		s.State = models.ListenIdle
		t.mu.Unlock()
		t.logger.Warn("listen not started", "track", s.TrackPath, "error", fmt.Errorf("%w: %d", shared.ErrUnexpectedStatus, status))
		return
	}

	var reply struct {
		ID uint `json:"id"`
	}
	err := (&services.Response{StatusCode: status, Body: body}).Decode(&reply)
	if err == nil && reply.ID == 0 {
		err = fmt.Errorf("%w: missing listen id", shared.ErrMalformedPayload)
	}

	t.mu.Lock()
	delete(t.inflight, s.TrackPath)
	if err != nil {
		s.State = models.ListenIdle
		t.mu.Unlock()
		t.logger.Warn("listen reply dropped", "track", s.TrackPath, "error", err)
		return
	}

	s.CloudListenID = reply.ID
	s.State = models.ListenSubmitted
	var follow *services.Request
	if s.Finished {
		if s.PendingDeleteOnReply {
			s.State = models.ListenDeleted
			follow = deleteRequest(s.CloudListenID)
		} else {
			s.State = models.ListenEnded
			follow = endRequest(s.CloudListenID)
		}
	}
	t.mu.Unlock()

	t.logger.Debug("listen started", "track", s.TrackPath, "id", reply.ID)
	if follow != nil {
		t.dispatch(follow)
	}
}

func (t *ListenTracker) dispatch(reqs ...*services.Request) {
	for _, req := range reqs {
		expect := listenStatus(req.Method)
		t.send(req, func(status int, _ []byte) {
			if status != expect {
				t.logger.Warn("listen request rejected", "method", req.Method, "path", req.Path,
					"error", fmt.Errorf("%w: got %d, want %d", shared.ErrUnexpectedStatus, status, expect))
			}
		})
	}
}

// send runs req on the pool. Transport failures are handed to the retry scheduler with the same reply handler.
func (t *ListenTracker) send(req *services.Request, onResponse func(status int, body []byte)) {
	item := &models.RetryItem{
		Key:        models.RetryKey(req.Method, req.Path, req.Query),
		Method:     req.Method,
		Path:       req.Path,
		Query:      req.Query,
		Body:       string(req.Body),
		OnResponse: onResponse,
	}

	ok := t.pool.Go(func(ctx context.Context) {
		resp, err := t.client.Do(ctx, req)
		if err != nil {
			if errors.Is(err, shared.ErrTransport) {
				t.logger.Warn("listen request failed, will retry", "request", item.Key, "error", err)
				t.retry.Add(item)
				return
			}
			t.logger.Warn("listen request failed", "request", item.Key, "error", err)
			return
		}
		onResponse(resp.StatusCode, resp.Body)
	})
	if !ok {
		t.retry.Add(item)
	}
}

func listenStatus(method string) int {
	switch method {
	case http.MethodPost:
		return http.StatusCreated
	default:
		return http.StatusNoContent
	}
}

func startRequest(s *models.ListenSession) *services.Request {
	tr := s.Track
	params := [][2]any{
		{"title", tr.Title},
		{"artist", tr.Artist},
		{"art_url", tr.ArtURL},
		{"foreign_url", tr.ForeignURL},
		{"genre", tr.Genre},
		{"length", tr.Length},
		{"path", tr.Path},
	}
	if s.Playlist != "" {
		params = append(params, [2]any{"playlist", s.Playlist})
	}
	return &services.Request{Method: http.MethodPost, Path: "/listens.json", Query: scopedQuery(models.ObjectListen, params)}
}

func pauseRequest(id uint, at time.Time) *services.Request {
	q := url.Values{}
	q.Set("listen[ended_at]", at.UTC().Format(TimestampLayout))
	return &services.Request{Method: http.MethodPut, Path: listenPath(id, ""), Query: q}
}

func endRequest(id uint) *services.Request {
	return &services.Request{Method: http.MethodPost, Path: listenPath(id, "/end")}
}

func deleteRequest(id uint) *services.Request {
	return &services.Request{Method: http.MethodDelete, Path: listenPath(id, "")}
}

func listenPath(id uint, suffix string) string {
	return "/listens/" + strconv.FormatUint(uint64(id), 10) + suffix + ".json"
}

func describe(tr models.Track) string {
	switch {
	case tr.Artist != "" && tr.Title != "":
		return tr.Artist + " - " + tr.Title
	case tr.Title != "":
		return tr.Title
	default:
		return tr.Path
	}
}
