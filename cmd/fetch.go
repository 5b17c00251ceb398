package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tth05/code-viewer/internal/companion"
	"github.com/tth05/code-viewer/internal/core"
	"github.com/tth05/code-viewer/internal/keyring"
	"github.com/tth05/code-viewer/internal/release"
)

func NewFetchCommand() *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch [version]",
		Short: "Download and install a companion app release",
		Long: `Downloads a companion app release and extracts it into the install directory.

Without a version the newest release compatible with the host version is
installed. The version record is only updated when the download succeeds.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := core.Config
			index := release.NewIndex(cfg.Release.IndexURL, keyring.TokenOrEmpty)
			store := release.NewStore(filepath.Join(cfg.Helper.InstallDir, companion.MetaFileName), cfg.HostVersion, index)
			store.Load(ctx)
			rec := store.Record()

			version := rec.NewestCompatibleVersion
			size := rec.NewestArtifactSize
			if len(args) == 1 {
				version = core.NormalizeVersion(args[0])
				if version != rec.NewestCompatibleVersion {
					size = 0
				}
			}
			if version == release.VersionUnknown {
				return errors.New(companion.Translate(companion.KeyVersionUnknown))
			}

			printStatus := newStatusPrinter(os.Stderr)
			printStatus(companion.Status{
				Key:      companion.KeyDownloadStart,
				Message:  companion.Translate(companion.KeyDownloadStart, version, humanize.Bytes(size)),
				Progress: -1,
			})
			if err := os.MkdirAll(cfg.Helper.InstallDir, 0755); err != nil {
				return fmt.Errorf("failed to create install directory: %w", err)
			}

			fetcher := release.NewFetcher(cfg.Release.DownloadURLTemplate)
			err := fetcher.Fetch(ctx, version, cfg.Helper.InstallDir, size, func(percent int) {
				printStatus(companion.Status{Message: fmt.Sprintf("%d%%", percent), Progress: percent})
			})
			if err != nil {
				return fmt.Errorf("%s: %w", companion.Translate(companion.KeyDownloadFail, version), err)
			}

			if err := store.MarkInstalled(version); err != nil {
				return fmt.Errorf("failed to write version record: %w", err)
			}
			fmt.Printf("Installed companion app %s into %s\n", version, cfg.Helper.InstallDir)
			return nil
		},
	}

	return fetchCmd
}
