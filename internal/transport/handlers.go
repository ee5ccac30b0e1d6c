package transport

import "github.com/devpool/chatsync/internal/domain"

// Handlers receives inbound hub events and connection state transitions.
// Any nil field is skipped. Handlers are invoked from the connection's read
// loop, one at a time and in delivery order.
//
// OnStateChange must not call Connect or Disconnect synchronously.
type Handlers struct {
	OnMessage      func(domain.Message)
	OnTyping       func(domain.TypingEvent)
	OnReadReceipts func(domain.ReadReceiptEvent)
	OnUserOnline   func(domain.PresenceEvent)
	OnUserOffline  func(domain.PresenceEvent)
	OnStateChange  func(domain.ConnectionState)
}

// SetHandlers replaces the handler set. The read loop always loads the
// latest set, so callers can swap handlers at any time without resubscribing.
func (c *Connection) SetHandlers(h Handlers) {
	c.handlers.Store(&h)
}

func (c *Connection) currentHandlers() *Handlers {
	if h := c.handlers.Load(); h != nil {
		return h
	}
	return &Handlers{}
}
