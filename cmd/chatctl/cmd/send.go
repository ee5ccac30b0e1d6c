package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/devpool/chatsync/internal/domain"
)

var (
	sendEntityType string
	sendEntityID   string
	sendWait       time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> [text...]",
	Short: "Send a message to a conversation",
	Long: `Send a message to a conversation. The message goes over the live hub
connection when it comes up within --wait, and through the REST API otherwise.

Examples:
  chatctl send general "Panel moved to 3pm"
  chatctl send general --entity-type candidate --entity-id cand-1001`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		content := strings.TrimSpace(strings.Join(args[1:], " "))

		c, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var linked *domain.LinkedEntity
		if sendEntityID != "" {
			if linked, err = resolveEntity(ctx, c.session, sendEntityType, sendEntityID); err != nil {
				return err
			}
		}

		if !c.waitConnected(ctx, sendWait) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Hub unavailable, sending through the REST API")
		}
		if err := c.session.SelectConversation(ctx, args[0]); err != nil {
			return err
		}
		if err := c.session.SendMessage(ctx, content, linked); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Message sent")
		return nil
	},
}

type entitySearcher interface {
	SearchEntities(ctx context.Context, entityType, query string) ([]domain.EntitySummary, error)
}

// resolveEntity looks the record up by id so the link carries its name.
func resolveEntity(ctx context.Context, s entitySearcher, entityType, id string) (*domain.LinkedEntity, error) {
	found, err := s.SearchEntities(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	for _, e := range found {
		if e.ID == id {
			return e.AsLink(), nil
		}
	}
	return nil, fmt.Errorf("no %s with id %q", entityType, id)
}

func init() {
	sendCmd.Flags().StringVar(&sendEntityType, "entity-type", "candidate", "type of the linked record")
	sendCmd.Flags().StringVar(&sendEntityID, "entity-id", "", "id of a record to link to the message")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 3*time.Second, "how long to wait for the hub connection")
	rootCmd.AddCommand(sendCmd)
}
