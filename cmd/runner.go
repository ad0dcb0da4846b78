package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/cloud"
	"github.com/desertthunder/playsync/internal/library"
	"github.com/desertthunder/playsync/internal/repositories"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	client     services.SignedRequestClient
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Client     services.SignedRequestClient // overrides the token-authorized client
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		client:     opts.Client,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, linkCommand, unlinkCommand, statusCommand, playlistsCommand, syncCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// LoadConfig replaces the configuration with the file at path. A missing file keeps the defaults.
func (r *Runner) LoadConfig(path string) error {
	r.configPath = path
	if _, err := os.Stat(path); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return err
	}
	r.config = config
	shared.SetLogLevel(r.logger, shared.ParseLevel(config.Logging.Level))
	return nil
}

// SetLogger swaps the logger, e.g. for a file logger while a full-screen UI runs.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) openDatabase() (*sql.DB, error) {
	db, err := shared.OpenMigrated(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func (r *Runner) loadAccounts(ctx context.Context, db *sql.DB) (*cloud.Accounts, error) {
	accounts := cloud.NewAccounts(repositories.NewIdentityRepository(db), r.logger)
	if err := accounts.Load(ctx); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *Runner) loadLibrary(ctx context.Context, db *sql.DB) (*library.Library, error) {
	lib := library.New(repositories.NewPlaylistRepository(db), r.logger)
	if err := lib.Load(ctx); err != nil {
		return nil, err
	}
	return lib, nil
}

// cloudClient returns the client signing requests for the linked device.
func (r *Runner) cloudClient(ctx context.Context, deviceID uint) (services.SignedRequestClient, error) {
	if r.client != nil {
		return r.client, nil
	}

	conf, err := services.NewOAuthConfig(r.config.Cloud)
	if err != nil {
		return nil, err
	}
	tok, err := services.LoadToken(r.config.Cloud.TokenPath)
	if err != nil {
		return nil, err
	}

	authorized := services.NewAuthorizedClient(ctx, conf, tok, r.config.Cloud.TokenPath)
	svc := services.NewCloudService(r.config.Cloud.BaseURL, authorized, r.config.Sync.RequestTimeout(), r.logger)
	svc.SetDeviceID(deviceID)
	return svc, nil
}

// session is a linked account opened for synchronization.
type session struct {
	db       *sql.DB
	accounts *cloud.Accounts
	identity *cloud.Identity
	library  *library.Library
	sync     *cloud.Synchronizer
}

// openSession opens the database, the primary account and its synchronizer. The caller closes it.
func (r *Runner) openSession(ctx context.Context, onDelink func(userID uint)) (*session, error) {
	db, err := r.openDatabase()
	if err != nil {
		return nil, err
	}

	s := &session{db: db}
	if err := r.fillSession(ctx, s, onDelink); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (r *Runner) fillSession(ctx context.Context, s *session, onDelink func(userID uint)) error {
	var err error
	if s.accounts, err = r.loadAccounts(ctx, s.db); err != nil {
		return err
	}
	if s.identity, err = s.accounts.Primary(); err != nil {
		return fmt.Errorf("%w: run 'playsync link' first", err)
	}
	if s.library, err = r.loadLibrary(ctx, s.db); err != nil {
		return err
	}

	client, err := r.cloudClient(ctx, s.identity.DeviceID())
	if err != nil {
		return err
	}

	s.sync, err = cloud.New(cloud.Options{
		Client:     client,
		Library:    s.library,
		Identity:   s.identity,
		Config:     r.config.Sync,
		DeviceName: r.config.Cloud.DeviceName,
		Logger:     r.logger,
		OnDelink:   onDelink,
	})
	return err
}

func (s *session) Close() error {
	return s.db.Close()
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
