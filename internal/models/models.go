// package models defines the data model for the account-link synchronization engine
package models

import "slices"

// Origin tags a mutation with where it came from.
type Origin int

const (
	OriginLocal  Origin = iota // OriginLocal marks changes made by the user on this device
	OriginRemote               // OriginRemote marks changes applied on behalf of the server
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// Track is a playable file. Two tracks are the same track when their paths are equal.
type Track struct {
	Path       string `json:"path"`
	Title      string `json:"title,omitempty"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	Genre      string `json:"genre,omitempty"`
	Length     int    `json:"length,omitempty"` // Length in seconds
	ArtURL     string `json:"art_url,omitempty"`
	ForeignURL string `json:"foreign_url,omitempty"`
}

// Same reports whether t and other refer to the same file.
func (t Track) Same(other Track) bool {
	return t.Path == other.Path
}

// PlaylistData is the local representation of a playlist.
//
// ID is 0 until the server has assigned one. Key is the local identifier and never changes.
type PlaylistData struct {
	Key    string  `json:"-"`
	ID     uint    `json:"id"`
	Name   string  `json:"name"`
	Owner  uint    `json:"owner"`
	Tracks []Track `json:"songs"`
}

// Contains reports whether the playlist holds a track with the given path.
func (p PlaylistData) Contains(path string) bool {
	return ContainsPath(p.Tracks, path)
}

// Clone returns a copy of p that shares no track storage with it.
func (p PlaylistData) Clone() PlaylistData {
	p.Tracks = slices.Clone(p.Tracks)
	return p
}

// ContainsPath reports whether tracks holds an entry with the given path.
func ContainsPath(tracks []Track, path string) bool {
	return slices.ContainsFunc(tracks, func(t Track) bool { return t.Path == path })
}

// AppendUnique appends every track of add whose path is not already present in dst (or earlier in add).
//
// It returns the extended slice and the tracks that were actually appended.
func AppendUnique(dst []Track, add ...Track) ([]Track, []Track) {
	var appended []Track
	for _, t := range add {
		if t.Path == "" || ContainsPath(dst, t.Path) {
			continue
		}
		dst = append(dst, t)
		appended = append(appended, t)
	}
	return dst, appended
}

// RemovePaths returns tracks without the entries whose path matches one of remove, and the removed entries.
func RemovePaths(tracks []Track, remove ...Track) ([]Track, []Track) {
	var kept, removed []Track
	for _, t := range tracks {
		if ContainsPath(remove, t.Path) {
			removed = append(removed, t)
			continue
		}
		kept = append(kept, t)
	}
	return kept, removed
}

// Difference returns the tracks of a whose path does not appear in b, in the order of a.
func Difference(a, b []Track) []Track {
	var out []Track
	for _, t := range a {
		if !ContainsPath(b, t.Path) && !ContainsPath(out, t.Path) {
			out = append(out, t)
		}
	}
	return out
}
