package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/playsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file from the embedded template when it is missing, then initializes the database and
// runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if err := r.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load created config, using defaults", "error", err)
		} else {
			r.writePlain("✓ Config written to %s\n", configPath)
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)

	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set cloud.client_id and cloud.client_secret in %s\n", configPath)
	r.writePlain("2. Run 'playsync link' to link this device\n")
	return nil
}
