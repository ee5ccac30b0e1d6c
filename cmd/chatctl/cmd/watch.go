package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/devpool/chatsync/internal/chat"
	"github.com/devpool/chatsync/internal/pubsub"
)

var (
	watchConversation string
	watchJSON         bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live session changes",
	Long: `Start a chat session and print every change notification until interrupted.
With --conversation the conversation is opened first, so its messages,
typing indicators and read receipts are streamed too.

Examples:
  chatctl watch
  chatctl watch --conversation general
  chatctl watch --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		c, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		p := &changePrinter{out: cmd.OutOrStdout(), session: c.session, json: watchJSON}
		for _, topic := range chat.Topics {
			name := strings.TrimPrefix(topic.Name(), "chat.")
			if err := pubsub.Subscribe(ctx, c.bus, topic, func(_ context.Context, change chat.Change) error {
				p.print(name, change)
				return nil
			}); err != nil {
				return fmt.Errorf("subscribe %s: %w", topic.Name(), err)
			}
		}

		if watchConversation != "" {
			if err := c.session.SelectConversation(ctx, watchConversation); err != nil {
				return err
			}
		}

		<-ctx.Done()
		return nil
	},
}

// changePrinter renders notifications together with the snapshot they refer to.
type changePrinter struct {
	mu      sync.Mutex
	out     io.Writer
	session *chat.Session
	json    bool
}

func (p *changePrinter) print(topic string, change chat.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		raw, _ := json.Marshal(struct {
			Topic string `json:"topic"`
			chat.Change
		}{topic, change})
		fmt.Fprintln(p.out, string(raw))
		return
	}

	switch topic {
	case "connection":
		fmt.Fprintf(p.out, "[connection] %s\n", change.State)
	case "conversations":
		fmt.Fprintf(p.out, "[conversations] %d conversations, %d unread\n", len(p.session.Conversations()), p.session.TotalUnreadCount())
	case "messages":
		msgs := p.session.Messages()
		if len(msgs) == 0 {
			fmt.Fprintf(p.out, "[messages] %s is empty\n", change.ConversationID)
			return
		}
		last := msgs[len(msgs)-1]
		text := last.Content
		if last.LinkedEntity != nil {
			text = strings.TrimSpace(text + " [" + last.LinkedEntity.Type + ": " + last.LinkedEntity.Label() + "]")
		}
		fmt.Fprintf(p.out, "[messages] %s: %s\n", last.SenderName, text)
	case "typing":
		if names := p.session.TypingUsers(change.ConversationID); len(names) > 0 {
			fmt.Fprintf(p.out, "[typing] %s\n", strings.Join(names, ", "))
		} else {
			fmt.Fprintf(p.out, "[typing] nobody in %s\n", change.ConversationID)
		}
	case "presence":
		fmt.Fprintf(p.out, "[presence] online: %s\n", strings.Join(p.session.OnlineUsers(), ", "))
	default:
		fmt.Fprintf(p.out, "[%s] %+v\n", topic, change)
	}
}

func init() {
	watchCmd.Flags().StringVar(&watchConversation, "conversation", "", "conversation to open")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print raw notifications as JSON lines")
	rootCmd.AddCommand(watchCmd)
}
