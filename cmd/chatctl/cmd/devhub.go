package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/devpool/chatsync/internal/config"
	"github.com/devpool/chatsync/internal/devhub"
)

var devhubAddr string

var devhubCmd = &cobra.Command{
	Use:   "devhub",
	Short: "Run the in-memory development backend",
	Long: `Run an in-memory chat backend serving the REST API under /api and the
hub endpoint at /hubs/chat. It is seeded with a small team; each user's
token is printed at startup. State is lost on exit.

Examples:
  chatctl devhub
  chatctl devhub --addr :5080`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		addr := devhubAddr
		if addr == "" {
			addr = cfg.GetDevHubAddr()
		}

		seed := devhub.DefaultSeed()
		tokens := make([]string, 0, len(seed.Tokens))
		for token := range seed.Tokens {
			tokens = append(tokens, token)
		}
		sort.Strings(tokens)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Dev hub on http://%s (API /api, hub /hubs/chat)\n", addr)
		for _, token := range tokens {
			fmt.Fprintf(out, "  %-10s token %s\n", seed.Tokens[token], token)
		}

		srv := devhub.New(seed, devhub.WithLogger(slog.Default()))
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(addr) }()

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	devhubCmd.Flags().StringVar(&devhubAddr, "addr", "", "listen address (default DEVHUB_ADDR or 127.0.0.1:5080)")
	rootCmd.AddCommand(devhubCmd)
}
