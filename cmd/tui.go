package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/desertthunder/playsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI runs the engine with the interactive dashboard attached.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	path := r.config.Logging.Path
	if path == "" {
		path = filepath.Join("log", "playsync-tui.log")
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(path, r.config.Logging)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	return r.runEngine(ctx, func(ctx context.Context, s *session) error {
		model := ui.NewModel(ctx, s.sync, s.library)
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("error running TUI: %w", err)
		}
		return nil
	})
}
