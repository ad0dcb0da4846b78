// package formatter renders playlists, linked accounts and engine events as CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/tasks"
	"github.com/dustin/go-humanize"
)

// FormatDuration renders seconds as m:ss, or h:mm:ss from one hour on.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "--:--"
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// TotalLength sums the lengths of tracks in seconds.
func TotalLength(tracks []models.Track) int {
	total := 0
	for _, t := range tracks {
		total += t.Length
	}
	return total
}

// SyncState describes whether a playlist is known to the server.
func SyncState(p models.PlaylistData) string {
	if p.ID == 0 {
		return "local only"
	}
	return fmt.Sprintf("cloud #%d", p.ID)
}

// ExportToCSV converts a playlist to CSV with columns: Path, Title, Artist, Album, Genre, Length
func ExportToCSV(p models.PlaylistData) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Path", "Title", "Artist", "Album", "Genre", "Length"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range p.Tracks {
		record := []string{
			track.Path,
			track.Title,
			track.Artist,
			track.Album,
			track.Genre,
			strconv.Itoa(track.Length),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func trackLine(t models.Track) string {
	switch {
	case t.Artist != "" && t.Title != "":
		return t.Artist + " - " + t.Title
	case t.Title != "":
		return t.Title
	default:
		return t.Path
	}
}

// ExportToMarkdown converts a playlist to Markdown with an optional cover image
func ExportToMarkdown(p models.PlaylistData, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", p.Name)
	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	fmt.Fprintf(&buf, "**Tracks**: %s\n", humanize.Comma(int64(len(p.Tracks))))
	fmt.Fprintf(&buf, "**Length**: %s\n", FormatDuration(TotalLength(p.Tracks)))
	fmt.Fprintf(&buf, "**Sync**: %s\n\n", SyncState(p))

	buf.WriteString("## Tracks\n\n")
	for i, t := range p.Tracks {
		album := ""
		if t.Album != "" {
			album = fmt.Sprintf(" (%s)", t.Album)
		}
		fmt.Fprintf(&buf, "%d. %s%s [%s]\n", i+1, trackLine(t), album, FormatDuration(t.Length))
	}
	return buf.Bytes(), nil
}

// ExportToText converts a playlist to plain text
func ExportToText(p models.PlaylistData) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", p.Name)
	fmt.Fprintf(&buf, "Sync: %s\n", SyncState(p))
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(p.Tracks))
	for i, t := range p.Tracks {
		fmt.Fprintf(&buf, "%d. %s\n", i+1, trackLine(t))
	}
	return buf.Bytes(), nil
}

// ExportToJSON converts a playlist to indented JSON
func ExportToJSON(p models.PlaylistData) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal playlist: %w", err)
	}
	return append(data, '\n'), nil
}

// DownloadImage downloads an image and returns the raw bytes. A nil client uses a 30s timeout client.
func DownloadImage(client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

// CoverURL returns the first track artwork of the playlist, if any.
func CoverURL(p models.PlaylistData) string {
	for _, t := range p.Tracks {
		if t.ArtURL != "" {
			return t.ArtURL
		}
	}
	return ""
}

// Export writes the playlist in format ("csv", "md", "txt" or "json") to path and returns the files written.
//
// Markdown exports go into the directory path as README.md, with cover.jpg next to it when the playlist has
// artwork and client can fetch it.
func Export(client *http.Client, p models.PlaylistData, format, path string) ([]string, error) {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(format) {
	case "csv":
		data, err = ExportToCSV(p)
	case "txt", "text":
		data, err = ExportToText(p)
	case "json":
		data, err = ExportToJSON(p)
	case "md", "markdown":
		return writeMarkdown(client, p, path)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return []string{path}, nil
}

func writeMarkdown(client *http.Client, p models.PlaylistData, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	var files []string
	cover := ""
	if url := CoverURL(p); url != "" {
		if img, err := DownloadImage(client, url); err == nil {
			path := filepath.Join(dir, "cover.jpg")
			if err := os.WriteFile(path, img, 0644); err == nil {
				cover = "cover.jpg"
				files = append(files, path)
			}
		}
	}

	data, err := ExportToMarkdown(p, cover)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "README.md")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return append(files, path), nil
}

// PlaylistTable renders one line per playlist: name, track count, total length and sync state.
func PlaylistTable(playlists []models.PlaylistData) string {
	if len(playlists) == 0 {
		return "No playlists\n"
	}

	width := len("Name")
	for _, p := range playlists {
		width = max(width, len(p.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-*s  %7s  %9s  %s\n", width, "Name", "Tracks", "Length", "Sync")
	for _, p := range playlists {
		fmt.Fprintf(&b, "%-*s  %7s  %9s  %s\n", width, p.Name,
			humanize.Comma(int64(len(p.Tracks))), FormatDuration(TotalLength(p.Tracks)), SyncState(p))
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}

// IdentitySummary renders a linked account with its sync flags.
func IdentitySummary(id models.CloudIdentity) string {
	var b strings.Builder
	name := id.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(&b, "User:          %s (#%d)\n", name, id.UserID)
	fmt.Fprintf(&b, "Device:        #%d\n", id.DeviceID)
	if id.ConfigurationID == 0 {
		b.WriteString("Configuration: not bound\n")
	} else {
		fmt.Fprintf(&b, "Configuration: #%d\n", id.ConfigurationID)
	}
	fmt.Fprintf(&b, "Synchronize:   %s  config %s  playlists %s\n",
		yesNo(id.Flags.Synchronize), yesNo(id.Flags.SynchronizeConfig), yesNo(id.Flags.SynchronizePlaylists))
	return b.String()
}

var linkFlags = []models.LinkFlag{models.LinkShare, models.LinkListen, models.LinkDonate, models.LinkCreatePlaylist}

// LinkTable renders the link registry. Capabilities the provider does not grant are shown as "-".
func LinkTable(links []models.Link) string {
	if len(links) == 0 {
		return "No links\n"
	}

	var b strings.Builder
	for _, l := range links {
		state := "disconnected"
		if l.Connected {
			state = "connected"
		}
		fmt.Fprintf(&b, "#%-4d %-12s %-12s", l.ID, l.Provider, state)
		for _, f := range linkFlags {
			mark := "-"
			if l.Can(f) {
				mark = yesNo(l.Do(f))
			}
			fmt.Fprintf(&b, " %s %s", f, mark)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Event renders an engine update relative to now, e.g. "3 seconds ago  [flush] sent 2 operation(s)".
func Event(u tasks.Update, now time.Time) string {
	return fmt.Sprintf("%-16s %s", humanize.RelTime(u.Time, now, "ago", "from now"), u.String())
}

// Bytes renders a size the way the status output does.
func Bytes(n int64) string {
	return humanize.Bytes(uint64(max(n, 0)))
}
