package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/devpool/chatsync/internal/domain"
)

// SendMessageRequest is the body of POST messages.
type SendMessageRequest struct {
	ConversationID   string `json:"conversationId" validate:"required"`
	Content          string `json:"content" validate:"required_without=LinkedEntityID,max=4000"`
	LinkedEntityType string `json:"linkedEntityType,omitempty" validate:"required_with=LinkedEntityID"`
	LinkedEntityID   string `json:"linkedEntityId,omitempty"`
}

// CreateGroupRequest is the body of POST conversations/group.
type CreateGroupRequest struct {
	Name           string   `json:"name" validate:"required,max=200"`
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1,dive,required"`
}

// MarkReadRequest is the body of POST conversations/{id}/read.
type MarkReadRequest struct {
	LastMessageID string `json:"lastMessageId,omitempty"`
}

// MessagePage selects a page of a conversation's history.
type MessagePage struct {
	Page     int `validate:"gte=1"`
	PageSize int `validate:"gte=1,lte=200"`
}

// DefaultMessagePage is the first page of fifty messages.
var DefaultMessagePage = MessagePage{Page: 1, PageSize: 50}

// EntitySearch is the query for GET entities/search.
type EntitySearch struct {
	Type  string `validate:"required"`
	Query string `validate:"required"`
}

var validate = validator.New()

// Validate checks a request DTO and maps failures to domain.ErrInvalidInput.
func Validate(req any) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
