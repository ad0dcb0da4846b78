package models

import (
	"fmt"
	"slices"
	"strings"
)

// SyncFlags controls which parts of the local state are synchronized.
type SyncFlags struct {
	Synchronize          bool `json:"synchronize"`
	SynchronizeConfig    bool `json:"synchronize_config"`
	SynchronizePlaylists bool `json:"synchronize_playlists"`
}

// CloudIdentity is the locally cached representation of a linked account.
type CloudIdentity struct {
	UserID          uint      `json:"user_id"`
	Name            string    `json:"name,omitempty"`
	DeviceID        uint      `json:"device_id"`
	ConfigurationID uint      `json:"configuration_id"`
	Links           []Link    `json:"links"`
	Flags           SyncFlags `json:"flags"`
}

// Clone returns a copy of c that shares no link storage with it.
func (c CloudIdentity) Clone() CloudIdentity {
	c.Links = slices.Clone(c.Links)
	return c
}

// LinkFlag names one capability of a [Link].
type LinkFlag int

const (
	LinkShare LinkFlag = iota
	LinkListen
	LinkDonate
	LinkCreatePlaylist
)

func (f LinkFlag) String() string {
	switch f {
	case LinkShare:
		return "share"
	case LinkListen:
		return "listen"
	case LinkDonate:
		return "donate"
	case LinkCreatePlaylist:
		return "create_playlist"
	default:
		return ""
	}
}

// ParseLinkFlag parses the name of a link capability.
func ParseLinkFlag(s string) (LinkFlag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "share":
		return LinkShare, nil
	case "listen":
		return LinkListen, nil
	case "donate":
		return LinkDonate, nil
	case "create_playlist", "createplaylist", "create-playlist":
		return LinkCreatePlaylist, nil
	default:
		return 0, fmt.Errorf("unknown link capability %q", s)
	}
}

// Link is a connection to a third-party service.
//
// The Can* flags are granted by the provider, the Do* flags are the user's choice.
type Link struct {
	ID                uint   `json:"id"`
	Provider          string `json:"provider"`
	URL               string `json:"url,omitempty"`
	Connected         bool   `json:"connected"`
	CanShare          bool   `json:"can_share"`
	DoShare           bool   `json:"do_share"`
	CanListen         bool   `json:"can_listen"`
	DoListen          bool   `json:"do_listen"`
	CanDonate         bool   `json:"can_donate"`
	DoDonate          bool   `json:"do_donate"`
	CanCreatePlaylist bool   `json:"can_create_playlist"`
	DoCreatePlaylist  bool   `json:"do_create_playlist"`
}

// Can reports whether the provider grants the capability.
func (l Link) Can(f LinkFlag) bool {
	switch f {
	case LinkShare:
		return l.CanShare
	case LinkListen:
		return l.CanListen
	case LinkDonate:
		return l.CanDonate
	case LinkCreatePlaylist:
		return l.CanCreatePlaylist
	}
	return false
}

// Do reports whether the user enabled the capability.
func (l Link) Do(f LinkFlag) bool {
	switch f {
	case LinkShare:
		return l.DoShare
	case LinkListen:
		return l.DoListen
	case LinkDonate:
		return l.DoDonate
	case LinkCreatePlaylist:
		return l.DoCreatePlaylist
	}
	return false
}

// SetDo toggles the user's choice for a capability.
func (l *Link) SetDo(f LinkFlag, v bool) {
	switch f {
	case LinkShare:
		l.DoShare = v
	case LinkListen:
		l.DoListen = v
	case LinkDonate:
		l.DoDonate = v
	case LinkCreatePlaylist:
		l.DoCreatePlaylist = v
	}
}

// ParamKey is the server-side field name of the user's choice for f (e.g. "do_share").
func (f LinkFlag) ParamKey() string {
	return "do_" + f.String()
}
