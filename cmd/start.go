package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tth05/code-viewer/internal/companion"
)

var errNotConnected = errors.New("companion app did not connect")

func NewStartCommand() *cobra.Command {
	var timeout time.Duration

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Install, start and connect to the companion app once",
		Long: `Runs one install/start/connect cycle and reports its progress.

The companion app is tied to the lifetime of this process, so it is shut down
again when the command exits, is interrupted or times out. Use 'serve' to keep
it running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context(), timeout)
			defer cancel()

			c, err := openCompanion(ctx)
			if err != nil {
				return err
			}
			return startOnce(ctx, c, newStatusPrinter(os.Stderr))
		},
	}
	startCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up after this long")

	return startCmd
}

// signalContext is cancelled on SIGINT, SIGTERM or after timeout
func signalContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// startOnce runs one cycle and always tears the companion down, also when
// ctx is cancelled halfway or StartAndConnect panics.
func startOnce(ctx context.Context, c *companion.Companion, onStatus companion.StatusFunc) error {
	defer c.Close()

	if !c.StartAndConnect(ctx, onStatus) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errNotConnected
	}
	return nil
}
