package devhub

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/devpool/chatsync/internal/api"
	"github.com/devpool/chatsync/internal/domain"
	chatmw "github.com/devpool/chatsync/internal/middleware"
	"github.com/devpool/chatsync/internal/transport"
)

func (s *Server) listConversations(c echo.Context) error {
	return c.JSON(http.StatusOK, s.state.conversationsFor(chatmw.UserID(c), s.hub.isOnline))
}

func (s *Server) getConversation(c echo.Context) error {
	conv, err := s.state.conversation(c.Param("id"), chatmw.UserID(c), s.hub.isOnline)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) listMessages(c echo.Context) error {
	page := api.DefaultMessagePage
	var err error
	if v := c.QueryParam("page"); v != "" {
		if page.Page, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%w: page must be a number", domain.ErrInvalidInput)
		}
	}
	if v := c.QueryParam("pageSize"); v != "" {
		if page.PageSize, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("%w: pageSize must be a number", domain.ErrInvalidInput)
		}
	}
	if err := c.Validate(page); err != nil {
		return err
	}

	msgs, err := s.state.messagesPage(c.Param("id"), chatmw.UserID(c), page.Page, page.PageSize)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) startDirect(c echo.Context) error {
	userID := chatmw.UserID(c)
	r, created, err := s.state.directConversation(userID, c.Param("userId"))
	if err != nil {
		return err
	}
	conv, err := s.state.conversation(r.id, userID, s.hub.isOnline)
	if err != nil {
		return err
	}
	if created {
		chatmw.FromContext(c.Request().Context()).Info("Direct conversation created", "conversation_id", r.id)
		return c.JSON(http.StatusCreated, conv)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) createGroup(c echo.Context) error {
	var req api.CreateGroupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format.")
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	userID := chatmw.UserID(c)
	r, err := s.state.createGroup(userID, strings.TrimSpace(req.Name), req.ParticipantIDs)
	if err != nil {
		return err
	}
	conv, err := s.state.conversation(r.id, userID, s.hub.isOnline)
	if err != nil {
		return err
	}
	chatmw.FromContext(c.Request().Context()).Info("Group conversation created", "conversation_id", r.id, "participants", len(conv.Participants))
	return c.JSON(http.StatusCreated, conv)
}

func (s *Server) sendMessage(c echo.Context) error {
	var req api.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format.")
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	msg, err := s.postMessage(chatmw.UserID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) markRead(c echo.Context) error {
	var req api.MarkReadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format.")
	}
	if err := s.readConversation(chatmw.UserID(c), c.Param("id"), req.LastMessageID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) searchUsers(c echo.Context) error {
	return c.JSON(http.StatusOK, s.state.searchUsers(c.QueryParam("query"), s.hub.isOnline))
}

func (s *Server) onlineUsers(c echo.Context) error {
	return c.JSON(http.StatusOK, s.state.usersByID(s.hub.online(), s.hub.isOnline))
}

func (s *Server) searchEntities(c echo.Context) error {
	search := api.EntitySearch{Type: c.QueryParam("type"), Query: c.QueryParam("query")}
	if err := c.Validate(search); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.state.searchEntities(search.Type, search.Query))
}

// postMessage stores a message and pushes it to every participant,
// including the sender's own connections.
func (s *Server) postMessage(senderID string, req api.SendMessageRequest) (domain.Message, error) {
	var linked *domain.LinkedEntity
	if req.LinkedEntityID != "" {
		linked = &domain.LinkedEntity{Type: req.LinkedEntityType, ID: req.LinkedEntityID}
	}

	msg, err := s.state.appendMessage(senderID, req.ConversationID, req.Content, linked)
	if err != nil {
		return domain.Message{}, err
	}
	s.push(s.state.participants(msg.ConversationID), transport.EventReceiveMessage, msg, "")
	return msg, nil
}

// readConversation advances the user's read position and tells the other
// participants which messages were read.
func (s *Server) readConversation(userID, conversationID, lastMessageID string) error {
	ids, err := s.state.markRead(conversationID, userID, lastMessageID)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		s.push(s.state.participants(conversationID), transport.EventMessagesRead, domain.ReadReceiptEvent{
			ConversationID: conversationID,
			UserID:         userID,
			MessageIDs:     ids,
		}, userID)
	}
	return nil
}

func (s *Server) push(userIDs []string, target string, payload any, skip string) {
	f, err := transport.NewEventFrame(target, payload)
	if err != nil {
		s.logger.Error("Failed to encode hub event", "target", target, "error", err)
		return
	}
	s.hub.sendToUsers(userIDs, f, skip)
}
