package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/playsync/internal/formatter"
	"github.com/desertthunder/playsync/internal/models"
)

var (
	_ list.Item = playlistItem{}
)

// playlistItem wraps [models.PlaylistData] to implement [list.Item].
type playlistItem struct {
	playlist models.PlaylistData
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string       { return i.playlist.Name }
func (i playlistItem) Description() string {
	return fmt.Sprintf("%d tracks • %s • %s",
		len(i.playlist.Tracks),
		formatter.FormatDuration(formatter.TotalLength(i.playlist.Tracks)),
		formatter.SyncState(i.playlist),
	)
}

func playlistItems(playlists []models.PlaylistData) []list.Item {
	items := make([]list.Item, len(playlists))
	for i, p := range playlists {
		items[i] = playlistItem{playlist: p}
	}
	return items
}
