package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/tth05/code-viewer/internal/companion"
	"github.com/tth05/code-viewer/internal/core"
	"github.com/tth05/code-viewer/internal/db"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorDim   = "\033[2m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorGold  = "\033[33m"
)

// openEvents opens the event database. A database that cannot be opened
// only disables event logging.
func openEvents() *db.DB {
	database, err := db.Open(core.Config.DatabasePath())
	if err != nil {
		slog.Warn("Event logging disabled", "error", err)
		return nil
	}
	return database
}

// openCompanion builds the companion from the loaded configuration. The
// returned companion owns the event database.
func openCompanion(ctx context.Context) (*companion.Companion, error) {
	deps := companion.Deps{}
	if events := openEvents(); events != nil {
		deps.Events = events
	}
	c, err := companion.New(ctx, core.Config, deps)
	if err != nil {
		if closer, ok := deps.Events.(*db.DB); ok {
			closer.Close()
		}
		return nil, err
	}
	return c, nil
}

// newStatusPrinter renders companion status messages on w, download
// progress on a single rewritten line. A repeated percentage is printed once
// so the trailing 100% after extraction does not open a second line.
func newStatusPrinter(w io.Writer) companion.StatusFunc {
	last := -1
	return func(s companion.Status) {
		if s.Progress >= 0 {
			if s.Progress == last {
				return
			}
			fmt.Fprintf(w, "\r%s%s%s", colorGold, s.Message, colorReset)
			if s.Progress == 100 {
				fmt.Fprintln(w)
			}
			last = s.Progress
			return
		}

		// a download that stopped short leaves its line open
		if last >= 0 && last < 100 {
			fmt.Fprintln(w)
		}
		last = -1

		switch {
		case s.IsError:
			fmt.Fprintf(w, "%s%s%s\n", colorRed, s.Message, colorReset)
		case s.Key == companion.KeyConnectionSuccess:
			fmt.Fprintf(w, "%s%s%s\n", colorGreen, s.Message, colorReset)
		default:
			fmt.Fprintf(w, "%s%s%s\n", colorDim, s.Message, colorReset)
		}
	}
}
