package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/repositories"
	"github.com/desertthunder/playsync/internal/shared"
	tu "github.com/desertthunder/playsync/internal/testing"
	"github.com/urfave/cli/v3"
)

// newTestRunner returns a runner whose database and token live in a temp dir.
func newTestRunner(t *testing.T, client *tu.RecordingClient) (*Runner, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "playsync.db")
	config.Cloud.TokenPath = filepath.Join(dir, "token.json")
	config.Cloud.DeviceName = "Desk"
	config.Server.Port = 0
	config.Sync.FlushDelayMS = 10
	config.Sync.ListenDelayMS = 10
	config.Sync.RequestTimeoutSeconds = 2
	config.Sync.RequestsPerSecond = -1
	config.Sync.ResyncSchedule = ""
	config.Logging.Path = ""

	output := &bytes.Buffer{}
	opts := RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(&bytes.Buffer{}),
		Output: output,
	}
	if client != nil {
		opts.Client = client
	}
	return NewRunner(opts), output
}

// seed writes identities and playlists straight into the runner's database.
func seed(t *testing.T, r *Runner, ids []models.CloudIdentity, playlists ...models.PlaylistData) {
	t.Helper()
	db, err := shared.OpenMigrated(r.config.Database)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for _, id := range ids {
		if err := repositories.NewIdentityRepository(db).SaveIdentity(ctx, id); err != nil {
			t.Fatalf("failed to seed identity: %v", err)
		}
	}
	for _, p := range playlists {
		if err := repositories.NewPlaylistRepository(db).SavePlaylist(ctx, p); err != nil {
			t.Fatalf("failed to seed playlist: %v", err)
		}
	}
}

// run executes a command the way the CLI would, e.g. run(r, playlistsCommand(r), "list", "--json").
func run(c *cli.Command, args ...string) error {
	return c.Run(context.Background(), append([]string{c.Name}, args...))
}

func linkedIdentity() models.CloudIdentity {
	return models.CloudIdentity{
		UserID:   7,
		Name:     "Ada",
		DeviceID: 11,
		Flags:    models.SyncFlags{Synchronize: true, SynchronizeConfig: true, SynchronizePlaylists: true},
		Links:    []models.Link{{ID: 3, Provider: "lastfm", Connected: true}},
	}
}

func roadTrip() models.PlaylistData {
	return models.PlaylistData{
		Key:  shared.GenerateID(),
		Name: "Road Trip",
		Tracks: []models.Track{
			{Path: "/music/a.mp3", Title: "Highway", Artist: "The Drivers", Length: 200},
			{Path: "/music/b.mp3", Title: "Exit 9", Artist: "Lanes", Length: 180},
		},
	}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			client := tu.NewRecordingClient()

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Client:     client,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.client != client {
				t.Error("expected client to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if result := output.String(); result != expected {
				t.Errorf("expected %q, got %q", expected, result)
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: tu.NewLimitedWriter(1, &bytes.Buffer{})})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "link", "unlink", "status", "playlists", "sync", "tui"} {
			if !names[want] {
				t.Errorf("expected command %q to be registered", want)
			}
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		t.Run("missing file keeps defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{})})
			before := runner.config

			if err := runner.LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if runner.config != before {
				t.Error("expected defaults to be kept")
			}
		})

		t.Run("reads the file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("[cloud]\ndevice_name = \"Kitchen\"\n"), 0644); err != nil {
				t.Fatal(err)
			}

			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{})})
			if err := runner.LoadConfig(path); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if runner.config.Cloud.DeviceName != "Kitchen" {
				t.Errorf("expected device name from file, got %q", runner.config.Cloud.DeviceName)
			}
			if runner.configPath != path {
				t.Errorf("expected configPath %q, got %q", path, runner.configPath)
			}
		})

		t.Run("invalid file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("[cloud\n"), 0644); err != nil {
				t.Fatal(err)
			}

			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{})})
			if err := runner.LoadConfig(path); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})
}

func TestSetup(t *testing.T) {
	t.Run("creates config and database", func(t *testing.T) {
		t.Chdir(t.TempDir())
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{}), Output: &bytes.Buffer{}})

		if err := run(setupCommand(runner)); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		tu.AssertFileExists(t, "config.toml")
		tu.AssertFileExists(t, runner.config.Database.Path)
	})

	t.Run("keeps an existing config", func(t *testing.T) {
		runner, output := newTestRunner(t, nil)
		dir := filepath.Dir(runner.config.Database.Path)
		runner.configPath = filepath.Join(dir, "config.toml")
		if err := os.WriteFile(runner.configPath, []byte("# mine\n"), 0644); err != nil {
			t.Fatal(err)
		}

		if err := run(setupCommand(runner)); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		if got := tu.MustReadFile(t, runner.configPath); got != "# mine\n" {
			t.Errorf("expected config to be untouched, got %q", got)
		}
		if !strings.Contains(output.String(), "Database ready") {
			t.Errorf("unexpected output %q", output.String())
		}
	})
}

func TestLink(t *testing.T) {
	t.Run("registers the device", func(t *testing.T) {
		client := tu.NewRecordingClient()
		client.Respond(http.MethodGet, "/me.json", http.StatusOK, `{"id":7,"name":"Ada"}`)
		client.Respond(http.MethodPost, "/devices.json", http.StatusCreated, `{"id":11}`)
		runner, output := newTestRunner(t, client)

		if err := runner.registerDevice(context.Background(), client); err != nil {
			t.Fatalf("registerDevice failed: %v", err)
		}
		if !strings.Contains(output.String(), "Linked Ada (user #7) as device #11") {
			t.Errorf("unexpected output %q", output.String())
		}

		calls := client.CallsTo(http.MethodPost, "/devices.json")
		if len(calls) != 1 || calls[0].Query.Get("device[name]") != "Desk" {
			t.Errorf("unexpected device registration %+v", calls)
		}

		output.Reset()
		if err := run(statusCommand(runner), "--json"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		var report statusReport
		if err := json.Unmarshal(output.Bytes(), &report); err != nil {
			t.Fatalf("status output is not JSON: %v", err)
		}
		if !report.Linked || report.Identity.DeviceID != 11 {
			t.Errorf("expected stored identity, got %+v", report)
		}
	})

	t.Run("authorization times out", func(t *testing.T) {
		runner, output := newTestRunner(t, nil)
		runner.config.Cloud.ClientID = "client"
		runner.config.Cloud.BaseURL = "https://cloud.test"
		runner.config.Cloud.AuthURL = ""

		err := run(linkCommand(runner), "--no-browser", "--timeout", "50ms")
		if !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
		if out := output.String(); !strings.Contains(out, "https://cloud.test/oauth/authorize") || !strings.Contains(out, "state=") {
			t.Errorf("expected authorization URL, got %q", out)
		}
	})

	t.Run("requires credentials", func(t *testing.T) {
		runner, _ := newTestRunner(t, nil)
		runner.config.Cloud.ClientID = ""

		if err := run(linkCommand(runner), "--no-browser"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestUnlink(t *testing.T) {
	t.Run("deletes the device", func(t *testing.T) {
		client := tu.NewRecordingClient()
		client.Respond(http.MethodDelete, "/devices/11.json", http.StatusNoContent, "")
		runner, output := newTestRunner(t, client)
		seed(t, runner, []models.CloudIdentity{linkedIdentity()})
		if err := os.WriteFile(runner.config.Cloud.TokenPath, []byte(`{"access_token":"x"}`), 0600); err != nil {
			t.Fatal(err)
		}

		if err := run(unlinkCommand(runner)); err != nil {
			t.Fatalf("unlink failed: %v", err)
		}
		if n := len(client.CallsTo(http.MethodDelete, "/devices/11.json")); n != 1 {
			t.Errorf("expected device delete, got %d", n)
		}
		if _, err := os.Stat(runner.config.Cloud.TokenPath); !os.IsNotExist(err) {
			t.Error("expected token to be removed")
		}
		if !strings.Contains(output.String(), "Unlinked user #7") {
			t.Errorf("unexpected output %q", output.String())
		}

		if err := run(unlinkCommand(runner)); !errors.Is(err, shared.ErrNotLinked) {
			t.Errorf("expected ErrNotLinked on second unlink, got %v", err)
		}
	})

	t.Run("local only", func(t *testing.T) {
		client := tu.NewRecordingClient()
		runner, _ := newTestRunner(t, client)
		seed(t, runner, []models.CloudIdentity{linkedIdentity()})

		if err := run(unlinkCommand(runner), "--local"); err != nil {
			t.Fatalf("unlink failed: %v", err)
		}
		if n := client.Count(); n != 0 {
			t.Errorf("expected no requests, got %d", n)
		}
	})
}

func TestStatus(t *testing.T) {
	t.Run("not linked", func(t *testing.T) {
		runner, output := newTestRunner(t, nil)

		if err := run(statusCommand(runner)); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), "Not linked") {
			t.Errorf("unexpected output %q", output.String())
		}
	})

	t.Run("linked", func(t *testing.T) {
		runner, output := newTestRunner(t, nil)
		synced := roadTrip()
		synced.ID = 42
		seed(t, runner, []models.CloudIdentity{linkedIdentity()}, synced)

		if err := run(statusCommand(runner)); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		out := output.String()
		for _, want := range []string{"Ada (#7)", "lastfm", "Playlists: 1 (1 synced)", "Database:"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})
}

func TestPlaylists(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		runner, output := newTestRunner(t, nil)
		seed(t, runner, nil, roadTrip())

		if err := run(playlistsCommand(runner), "list"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if out := output.String(); !strings.Contains(out, "Road Trip") || !strings.Contains(out, "local only") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("list as JSON", func(t *testing.T) {
		runner, output := newTestRunner(t, nil)
		seed(t, runner, nil, roadTrip())

		if err := run(playlistsCommand(runner), "list", "--json"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		var got []models.PlaylistData
		if err := json.Unmarshal(output.Bytes(), &got); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(got) != 1 || len(got[0].Tracks) != 2 {
			t.Errorf("unexpected playlists %+v", got)
		}
	})

	t.Run("export", func(t *testing.T) {
		runner, output := newTestRunner(t, nil)
		seed(t, runner, nil, roadTrip())
		path := filepath.Join(t.TempDir(), "trip.csv")

		if err := run(playlistsCommand(runner), "export", "--format", "csv", "--output", path, "Road Trip"); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		if got := tu.MustReadFile(t, path); !strings.Contains(got, "Highway") {
			t.Errorf("unexpected export %q", got)
		}
		if !strings.Contains(output.String(), path) {
			t.Errorf("expected written path in output, got %q", output.String())
		}
	})

	t.Run("export errors", func(t *testing.T) {
		runner, _ := newTestRunner(t, nil)
		seed(t, runner, nil, roadTrip())

		if err := run(playlistsCommand(runner), "export"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if err := run(playlistsCommand(runner), "export", "Nope"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("pull", func(t *testing.T) {
		client := tu.NewRecordingClient()
		client.Respond(http.MethodGet, "/me/playlists.json", http.StatusOK, `[{"id":42,"name":"Focus","owner":7,"songs":[{"path":"/music/c.mp3","title":"Deep"}]}]`)
		runner, output := newTestRunner(t, client)
		seed(t, runner, []models.CloudIdentity{linkedIdentity()})

		if err := run(playlistsCommand(runner), "pull"); err != nil {
			t.Fatalf("pull failed: %v", err)
		}
		if out := output.String(); !strings.Contains(out, "Merged 1 playlist(s)") || !strings.Contains(out, "cloud #42") {
			t.Errorf("unexpected output %q", out)
		}

		output.Reset()
		if err := run(playlistsCommand(runner), "list"); err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if !strings.Contains(output.String(), "Focus") {
			t.Error("expected pulled playlist to be persisted")
		}
	})

	t.Run("pull requires a linked account", func(t *testing.T) {
		runner, _ := newTestRunner(t, tu.NewRecordingClient())

		if err := run(playlistsCommand(runner), "pull"); !errors.Is(err, shared.ErrNotLinked) {
			t.Errorf("expected ErrNotLinked, got %v", err)
		}
	})
}

func TestExportPath(t *testing.T) {
	tests := []struct {
		name, format, want string
	}{
		{"Road Trip", "csv", "road_trip.csv"},
		{"  Late/Night  ", "json", "late_night.json"},
		{"Focus", "md", "focus"},
		{"???", "txt", "playlist.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exportPath(tt.name, tt.format); got != tt.want {
				t.Errorf("exportPath(%q, %q) = %q, want %q", tt.name, tt.format, got, tt.want)
			}
		})
	}
}

func TestRunEngine(t *testing.T) {
	t.Run("attached session sees the linked account", func(t *testing.T) {
		client := tu.NewRecordingClient()
		runner, _ := newTestRunner(t, client)
		seed(t, runner, []models.CloudIdentity{linkedIdentity()}, roadTrip())

		var userID uint
		var playlists int
		err := runner.runEngine(context.Background(), func(ctx context.Context, s *session) error {
			userID = s.sync.Identity().UserID
			playlists = len(s.library.Playlists())
			return nil
		})
		if err != nil {
			t.Fatalf("runEngine failed: %v", err)
		}
		if userID != 7 || playlists != 1 {
			t.Errorf("unexpected session user=%d playlists=%d", userID, playlists)
		}
		if !tu.Eventually(time.Second, func() bool {
			return len(client.CallsTo(http.MethodPut, "/devices/11.json")) == 1
		}) {
			t.Error("expected the device name to be sent before stopping")
		}
	})

	t.Run("attach error is returned", func(t *testing.T) {
		runner, _ := newTestRunner(t, tu.NewRecordingClient())
		seed(t, runner, []models.CloudIdentity{linkedIdentity()})
		boom := errors.New("boom")

		err := runner.runEngine(context.Background(), func(context.Context, *session) error { return boom })
		if !errors.Is(err, boom) {
			t.Errorf("expected attach error, got %v", err)
		}
	})

	t.Run("session status", func(t *testing.T) {
		runner, _ := newTestRunner(t, tu.NewRecordingClient())
		seed(t, runner, []models.CloudIdentity{linkedIdentity()}, roadTrip())

		s, err := runner.openSession(context.Background(), nil)
		if err != nil {
			t.Fatalf("openSession failed: %v", err)
		}
		defer s.Close()

		st := s.status().(engineStatus)
		if st.Identity.UserID != 7 || st.Playlists != 1 || st.RetryStep != -1 || st.CurrentListen != nil {
			t.Errorf("unexpected status %+v", st)
		}
	})
}
