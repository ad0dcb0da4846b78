// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// setupCommand writes the config template and prepares the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml when missing, then initialize the database and run migrations",
		Action: r.Setup,
	}
}

// linkCommand links a cloud account through the OAuth2 authorization code flow.
func linkCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "link",
		Usage: "Link this device to a cloud account",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the authorization URL without opening a browser",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the authorization callback",
				Value: 5 * time.Minute,
			},
		},
		Action: r.Link,
	}
}

// unlinkCommand removes the device from the account and forgets it locally.
func unlinkCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "unlink",
		Usage: "Unlink this device from the cloud account",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "local",
				Usage: "Only forget the account locally, without contacting the server",
			},
		},
		Action: r.Unlink,
	}
}

// statusCommand shows the linked account.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the linked account, its links and the local library",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Status,
	}
}

// playlistsCommand handles local playlist operations
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Local playlist operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List local playlists and their sync state",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.PlaylistsList,
			},
			{
				Name:   "pull",
				Usage:  "Merge every cloud playlist into the local library and push local-only tracks",
				Action: r.PlaylistsPull,
			},
			{
				Name:  "export",
				Usage: "Export a local playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "name",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: csv, txt, json or md",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output path (a directory for md)",
					},
				},
				Action: r.PlaylistsExport,
			},
		},
	}
}

// syncCommand runs the synchronization daemon.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run the synchronization engine and the push listener until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "foreground-log",
				Usage: "Log to stderr instead of the configured log file",
			},
		},
		Action: r.Sync,
	}
}

// tuiCommand returns the top-level TUI command for the sync dashboard.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Run the synchronization engine with a live dashboard",
		Action:  r.TUI,
	}
}
