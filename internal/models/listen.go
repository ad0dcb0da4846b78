package models

import (
	"net/url"
	"time"
)

// ListenState is the lifecycle stage of a [ListenSession].
type ListenState int

const (
	ListenIdle       ListenState = iota
	ListenPending                // waiting for the start debounce
	ListenSubmitting             // start request in flight, no server ID yet
	ListenSubmitted              // server ID known
	ListenEnded                  // recorded as a play
	ListenDeleted                // too short, removed from the server
)

func (s ListenState) String() string {
	switch s {
	case ListenIdle:
		return "idle"
	case ListenPending:
		return "pending"
	case ListenSubmitting:
		return "submitting"
	case ListenSubmitted:
		return "submitted"
	case ListenEnded:
		return "ended"
	case ListenDeleted:
		return "deleted"
	default:
		return ""
	}
}

// ListenSession tracks the track currently being listened to.
//
// Finished is set once playback has moved away; if that happens before the server assigned an ID,
// PendingDeleteOnReply records whether the reply must be answered with a delete (short listen) or an end.
type ListenSession struct {
	TrackPath            string
	Track                Track
	Playlist             string
	StartedAt            time.Time
	CloudListenID        uint
	PendingDeleteOnReply bool
	State                ListenState
	Finished             bool
	EndedAt              time.Time
}

// Elapsed returns how long the session has been (or was) listened to at now.
func (s *ListenSession) Elapsed(now time.Time) time.Duration {
	if s.Finished && !s.EndedAt.IsZero() {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// RetryItem is a request that failed at the transport level and will be replayed.
//
// OnResponse, when set, receives the status and body of a successful replay.
type RetryItem struct {
	Key        string
	Method     string
	Path       string
	Query      url.Values
	Body       string
	OnResponse func(status int, body []byte)
}

// RetryKey builds the identity of a request from its method, path and query.
func RetryKey(method, path string, query url.Values) string {
	key := method + " " + path
	if enc := query.Encode(); enc != "" {
		key += "?" + enc
	}
	return key
}
