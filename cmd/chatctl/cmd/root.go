package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devpool/chatsync/internal/logging"
)

var tokenFlag string

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Command-line client for the HR console chat",
	Long: `chatctl drives a chat session from the terminal.

Available commands:
  conversations    List your conversations with unread counts
  send             Send a message to a conversation
  watch            Stream live session changes
  login            Save a bearer token to the token file
  devhub           Run the in-memory development backend

Settings come from the environment (or a .env file): CHAT_API_URL,
CHAT_HUB_URL, CHAT_USER_ID and CHAT_TOKEN_FILE.

Use "chatctl [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.New()
	},
}

// Execute executes the root command. Interrupt and terminate signals cancel
// the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "bearer token (overrides the token file)")
}
