package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/devpool/chatsync/internal/api"
	"github.com/devpool/chatsync/internal/store"
)

var conversationsFormat string

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List your conversations",
	Long: `List the conversations visible to the current user, default conversations
first and then by most recent activity.

Examples:
  chatctl conversations
  chatctl conversations --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, creds, err := loadClientConfig()
		if err != nil {
			return err
		}

		convs, err := api.NewClient(cfg.GetAPIURL(), creds).ListConversations(cmd.Context())
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		store.SortConversations(convs)

		out := cmd.OutOrStdout()
		if conversationsFormat == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(convs)
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tUNREAD\tLAST ACTIVITY\tPREVIEW")
		for _, c := range convs {
			last := "-"
			if at := c.LastActivity(); !at.IsZero() {
				last = at.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", c.ID, c.DisplayName(cfg.GetUserID()), c.UnreadCount, last, truncate(c.LastMessagePreview, 40))
		}
		return w.Flush()
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	conversationsCmd.Flags().StringVar(&conversationsFormat, "format", "table", "output format: table or json")
	rootCmd.AddCommand(conversationsCmd)
}
