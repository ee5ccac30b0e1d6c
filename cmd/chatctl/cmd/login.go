package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devpool/chatsync/internal/config"
	"github.com/devpool/chatsync/internal/credentials"
)

var loginCmd = &cobra.Command{
	Use:   "login <token>",
	Short: "Save a bearer token to CHAT_TOKEN_FILE",
	Long: `Save a bearer token to the configured token file. A running "chatctl watch"
picks the new token up and reconnects if it was disconnected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		creds := credentials.NewOsStore(cfg.GetTokenFile())
		if err := creds.Save(args[0]); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", creds.Path())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved bearer token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		return credentials.NewOsStore(cfg.GetTokenFile()).Clear()
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
