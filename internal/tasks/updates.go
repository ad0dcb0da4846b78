package tasks

import (
	"fmt"
	"time"
)

// Update is an event emitted by the synchronization engine.
//
// Used to send real-time status to the CLI or UI layer for display.
type Update struct {
	Kind    Kind      // Event category
	Time    time.Time // When it happened
	Message string    // Human-readable message for display
	Err     error     // Set when the event reports a failure
	Data    any       // Optional kind-specific data for advanced UIs
}

// Kind is the category of an [Update].
type Kind int

const (
	KindLifecycle Kind = iota
	KindFlush
	KindListen
	KindRetry
	KindMerge
	KindRemote
	KindCommand
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindLifecycle:
		return "lifecycle"
	case KindFlush:
		return "flush"
	case KindListen:
		return "listen"
	case KindRetry:
		return "retry"
	case KindMerge:
		return "merge"
	case KindRemote:
		return "remote"
	case KindCommand:
		return "command"
	case KindLink:
		return "link"
	default:
		return ""
	}
}

func (u Update) String() string {
	if u.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", u.Kind, u.Message, u.Err)
	}
	return fmt.Sprintf("[%s] %s", u.Kind, u.Message)
}

// NewUpdate creates an update stamped with the current time.
func NewUpdate(kind Kind, format string, args ...any) Update {
	return Update{Kind: kind, Time: time.Now(), Message: fmt.Sprintf(format, args...)}
}

// WithErr attaches err to the update.
func (u Update) WithErr(err error) Update {
	u.Err = err
	return u
}

// WithData attaches data to the update.
func (u Update) WithData(data any) Update {
	u.Data = data
	return u
}

// Notify sends an update through the channel without blocking.
//
// Uses select with default so a slow or absent reader never stalls the engine.
func Notify(ch chan<- Update, u Update) {
	if ch == nil {
		return
	}
	select {
	case ch <- u:
		// Sent successfully
	default:
		// Channel full, skip this update
	}
}
