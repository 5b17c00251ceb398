package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tth05/code-viewer/internal/core"
	"github.com/tth05/code-viewer/internal/db"
)

func NewEventsCommand() *cobra.Command {
	var limit int
	var navigations bool

	eventsCmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"history"},
		Short:   "Show recent companion app events",
		Long: `Show recent companion app lifecycle events (installs, starts, connections),
or with --navigations the recent navigate requests and their outcome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.Open(core.Config.DatabasePath())
			if err != nil {
				return fmt.Errorf("failed to open event database: %w", err)
			}
			defer database.Close()

			if navigations {
				navs, err := database.GetRecentNavigations(limit)
				if err != nil {
					return fmt.Errorf("failed to read navigations: %w", err)
				}
				for _, n := range navs {
					fmt.Println(formatNavigation(n))
				}
				return nil
			}

			events, err := database.GetRecentBridgeEvents(limit)
			if err != nil {
				return fmt.Errorf("failed to read events: %w", err)
			}
			for _, e := range events {
				fmt.Printf("%s%-16s%s %-18s %s\n", colorDim, humanize.Time(e.Timestamp), colorReset, e.EventType, e.Details)
			}
			return nil
		},
	}
	eventsCmd.Flags().IntVarP(&limit, "lines", "n", 20, "number of events to show")
	eventsCmd.Flags().BoolVar(&navigations, "navigations", false, "show navigate requests instead of lifecycle events")

	return eventsCmd
}

func formatNavigation(n db.Navigation) string {
	when := colorDim + humanize.Time(n.Timestamp) + colorReset
	where := fmt.Sprintf("%s:%d:%d", n.File, n.Row, n.Column)
	if n.Outcome != "resolved" {
		return fmt.Sprintf("%s %s %s%s%s (%dms)", when, where, colorRed, n.Outcome, colorReset, n.DurationMs)
	}
	return fmt.Sprintf("%s %s -> %s%s:%d%s (%dms)", when, where, colorGreen, n.ClassName, n.Line, colorReset, n.DurationMs)
}
