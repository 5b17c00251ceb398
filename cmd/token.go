package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tth05/code-viewer/internal/keyring"
)

func NewTokenCommand() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the release API token",
		Long:  `Store or delete the API token used to query the release index. The token is stored securely in the system keyring and lifts the anonymous rate limit.`,
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the release API token",
		Long:  `Store the release API token. It is read without echo from the terminal, or from standard input when piped.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := keyring.PromptToken()
			if err != nil {
				return fmt.Errorf("failed to read token: %w", err)
			}
			if err := keyring.SetToken(token); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			slog.Info("Release API token stored securely")
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:     "delete",
		Aliases: []string{"del", "remove", "rm"},
		Short:   "Delete the stored release API token",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := keyring.DeleteToken(); err != nil {
				return fmt.Errorf("failed to delete token: %w", err)
			}
			slog.Info("Release API token deleted")
			return nil
		},
	}

	tokenCmd.AddCommand(setCmd, deleteCmd)
	return tokenCmd
}
