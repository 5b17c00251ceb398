package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tth05/code-viewer/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "codeviewer",
		Short: "codeviewer - code viewer companion bridge",
		Long: `codeviewer installs, supervises and talks to the code viewer companion app.

It keeps the companion app up to date with the host version, starts it, connects
to it and answers its click-to-navigate requests by decompiling the clicked
method's class and pointing the viewer at the declaration.`,
		SilenceUsage:  true,
		SilenceErrors: true, // main reports the error
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.LoadConfigFromDir(configPath)
			if err != nil {
				return err
			}
			if verbose > cfg.Verbose {
				cfg.Verbose = verbose
			}
			core.Config = cfg
			core.SetupLogging(os.Stderr, cfg.Verbose)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", filepath.Join(homeDir, core.BaseDirName),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewStartCommand(),
		NewServeCommand(),
		NewNavigateCommand(),
		NewFetchCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewEventsCommand(),
		NewTokenCommand(),
	)

	return rootCmd
}

