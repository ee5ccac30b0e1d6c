package devhub

import (
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/devpool/chatsync/internal/api"
	"github.com/devpool/chatsync/internal/domain"
	chatmw "github.com/devpool/chatsync/internal/middleware"
	"github.com/devpool/chatsync/internal/transport"
)

// serveHub upgrades an authenticated request and runs the connection until
// it closes.
func (s *Server) serveHub(c echo.Context) error {
	logger := chatmw.FromContext(c.Request().Context())
	userID := chatmw.UserID(c)

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		logger.Error("WebSocket upgrade failed", "error", err)
		return nil
	}
	defer conn.CloseNow()

	cl := newClient(userID, conn)
	if s.hub.register(cl) {
		s.announce(transport.EventUserOnline, userID)
	}
	defer func() {
		if s.hub.unregister(cl) {
			s.announce(transport.EventUserOffline, userID)
		}
	}()

	go s.hub.writePump(s.ctx, cl)
	s.hub.readPump(s.ctx, cl, s.invoke)
	return nil
}

func (s *Server) announce(target, userID string) {
	f, err := transport.NewEventFrame(target, domain.PresenceEvent{UserID: userID})
	if err != nil {
		s.logger.Error("Failed to encode presence event", "error", err)
		return
	}
	s.hub.broadcast(f, userID)
}

// invoke runs one client invocation. A returned error becomes the
// completion's error text.
func (s *Server) invoke(c *client, f transport.Frame) (any, error) {
	switch f.Target {
	case transport.MethodSendMessage:
		var args transport.SendMessageArgs
		if err := decodeArgs(f, &args); err != nil {
			return nil, err
		}
		req := api.SendMessageRequest{
			ConversationID:   args.ConversationID,
			Content:          args.Content,
			LinkedEntityType: args.LinkedEntityType,
			LinkedEntityID:   args.LinkedEntityID,
		}
		if err := api.Validate(req); err != nil {
			return nil, err
		}
		msg, err := s.postMessage(c.userID, req)
		if err != nil {
			return nil, err
		}
		return msg, nil

	case transport.MethodJoinConversation:
		var args transport.JoinConversationArgs
		if err := decodeArgs(f, &args); err != nil {
			return nil, err
		}
		if !s.state.isParticipant(args.ConversationID, c.userID) {
			return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, args.ConversationID)
		}
		return nil, nil

	case transport.MethodSendTyping:
		var args transport.TypingArgs
		if err := decodeArgs(f, &args); err != nil {
			return nil, err
		}
		if !s.state.isParticipant(args.ConversationID, c.userID) {
			return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, args.ConversationID)
		}
		u, _ := s.state.user(c.userID)
		s.push(s.state.participants(args.ConversationID), transport.EventUserTyping, domain.TypingEvent{
			ConversationID: args.ConversationID,
			UserID:         c.userID,
			UserName:       u.DisplayName,
			IsTyping:       args.IsTyping,
		}, c.userID)
		return nil, nil

	case transport.MethodMarkAsRead:
		var args transport.MarkAsReadArgs
		if err := decodeArgs(f, &args); err != nil {
			return nil, err
		}
		return nil, s.readConversation(c.userID, args.ConversationID, args.LastMessageID)
	}

	return nil, fmt.Errorf("unknown method %q", f.Target)
}

func decodeArgs(f transport.Frame, out any) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("%w: %s requires a payload", domain.ErrInvalidInput, f.Target)
	}
	if err := json.Unmarshal(f.Payload, out); err != nil {
		return fmt.Errorf("%w: %s payload: %v", domain.ErrInvalidInput, f.Target, err)
	}
	return nil
}
