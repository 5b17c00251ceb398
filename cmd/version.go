package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tth05/code-viewer/internal/companion"
	"github.com/tth05/code-viewer/internal/core"
	"github.com/tth05/code-viewer/internal/keyring"
	"github.com/tth05/code-viewer/internal/release"
)

func NewVersionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Long:  `Show the bridge version, the host version companion app releases must match, and the installed and newest compatible companion app versions`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := core.Config
			fmt.Printf("Bridge version:    %s\n", core.FormatVersion(core.Version))
			fmt.Printf("Host version:      %s\n", core.FormatVersion(cfg.HostVersion))

			index := release.NewIndex(cfg.Release.IndexURL, keyring.TokenOrEmpty)
			store := release.NewStore(filepath.Join(cfg.Helper.InstallDir, companion.MetaFileName), cfg.HostVersion, index)
			if _, err := store.Peek(); err != nil {
				slog.Debug("No readable version record", "path", store.Path(), "error", err)
			}
			if err := store.RefreshNewestCompatible(cmd.Context()); err != nil {
				slog.Warn("Could not determine newest companion app version", "error", err)
			}
			rec := store.Record()

			fmt.Printf("Installed version: %s\n", displayVersion(rec.InstalledVersion))
			fmt.Printf("Newest compatible: %s\n", displayVersion(rec.NewestCompatibleVersion))

			if rec.NewestKnown() && rec.InstalledVersion != rec.NewestCompatibleVersion {
				slog.Warn(fmt.Sprintf("Companion app %s is outdated, %s is available. Run 'codeviewer fetch' to update.",
					displayVersion(rec.InstalledVersion), rec.NewestCompatibleVersion))
			}
		},
	}

	return versionCmd
}

func displayVersion(v string) string {
	if v == release.VersionUnknown {
		return "unknown"
	}
	return core.FormatVersion(v)
}
