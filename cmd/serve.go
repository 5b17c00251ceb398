package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func NewServeCommand() *cobra.Command {
	var interval time.Duration

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"run"},
		Short:   "Keep the companion app running and answer its requests",
		Long: `Starts and connects to the companion app, then serves its open-class and
navigate requests until interrupted.

Every --check-interval the companion app is checked and restarted or
reconnected when it went away. On SIGINT or SIGTERM the connection is closed
and the companion app is force-killed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := openCompanion(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			printStatus := newStatusPrinter(os.Stderr)
			c.StartAndConnect(ctx, printStatus)

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					slog.Info("Shutting down companion app")
					return nil
				case <-ticker.C:
					if c.IsRunning() && c.IsConnected() {
						continue
					}
					slog.Warn("Companion app went away, restarting", "running", c.IsRunning())
					c.StartAndConnect(ctx, printStatus)
				}
			}
		},
	}
	serveCmd.Flags().DurationVar(&interval, "check-interval", 10*time.Second, "how often to check the companion app")

	return serveCmd
}
