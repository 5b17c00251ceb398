package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tth05/code-viewer/internal/companion"
	"github.com/tth05/code-viewer/internal/core"
	"github.com/tth05/code-viewer/internal/keyring"
	"github.com/tth05/code-viewer/internal/release"
)

// HelperStatus is what status reports about the companion app installation
type HelperStatus struct {
	Executable       string `json:"executable"`
	Installed        bool   `json:"installed"`
	InstalledVersion string `json:"installed_version"`
	NewestVersion    string `json:"newest_version"`
	HostVersion      string `json:"host_version"`
	Listening        bool   `json:"listening"`
	Port             int    `json:"port"`
	LatestLog        string `json:"latest_log,omitempty"`
	LatestLogAge     string `json:"latest_log_age,omitempty"`
}

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Shows the companion app installation and whether it is listening",
		Long: `Shows the companion app installation and whether it is listening.

The version record is only read, never rewritten. With --check the release
index is queried for the newest compatible version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := core.Config
			var index release.Querier
			if check, _ := cmd.Flags().GetBool("check"); check {
				index = release.NewIndex(cfg.Release.IndexURL, keyring.TokenOrEmpty)
			}
			status := collectStatus(cmd.Context(), cfg, index)

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				printHelperStatus(status)
			case "json":
				jsonBytes, _ := json.Marshal(status)
				fmt.Println(string(jsonBytes))
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return nil
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")
	statusCmd.Flags().Bool("check", false, "query the release index for the newest compatible version")

	return statusCmd
}

// collectStatus never writes the version record. A nil index leaves the
// newest compatible version unknown.
func collectStatus(ctx context.Context, cfg *core.Configuration, index release.Querier) HelperStatus {
	store := release.NewStore(filepath.Join(cfg.Helper.InstallDir, companion.MetaFileName), cfg.HostVersion, index)
	if _, err := store.Peek(); err != nil {
		slog.Debug("No readable version record", "path", store.Path(), "error", err)
	}
	if index != nil {
		if err := store.RefreshNewestCompatible(ctx); err != nil {
			slog.Warn("Could not determine newest companion app version", "error", err)
		}
	}
	rec := store.Record()

	status := HelperStatus{
		Executable:       cfg.ExecutablePath(),
		InstalledVersion: displayVersion(rec.InstalledVersion),
		NewestVersion:    displayVersion(rec.NewestCompatibleVersion),
		HostVersion:      core.FormatVersion(cfg.HostVersion),
		Port:             cfg.Helper.Port,
	}
	if _, err := os.Stat(status.Executable); err == nil {
		status.Installed = true
	}

	// a plain dial, the companion app ignores connections that never send
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Helper.Port)), cfg.Helper.ConnectTimeout)
	if err == nil {
		status.Listening = true
		conn.Close()
	}

	if path, mod, ok := latestLog(filepath.Join(cfg.Helper.InstallDir, "logs")); ok {
		status.LatestLog = path
		status.LatestLogAge = humanize.Time(mod)
	}
	return status
}

// latestLog finds the most recently written companion app log file
func latestLog(dir string) (string, time.Time, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", time.Time{}, false
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	return newest, newestMod, newest != ""
}

func printHelperStatus(s HelperStatus) {
	installed := colorRed + "not installed" + colorReset
	if s.Installed {
		installed = colorGreen + "installed" + colorReset
	}
	listening := colorRed + "not listening" + colorReset
	if s.Listening {
		listening = colorGreen + "listening" + colorReset
	}

	fmt.Println("Companion app:")
	fmt.Printf("  - %s (%s)\n", s.Executable, installed)
	fmt.Printf("  - Version: %s, newest compatible: %s, host: %s\n", s.InstalledVersion, s.NewestVersion, s.HostVersion)
	fmt.Printf("  - Port %d: %s\n", s.Port, listening)
	if s.LatestLog != "" {
		fmt.Printf("  - Log: %s %s(%s)%s\n", s.LatestLog, colorDim, s.LatestLogAge, colorReset)
	}
}
