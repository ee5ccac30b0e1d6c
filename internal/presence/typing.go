package presence

import (
	"sync"
	"time"
)

// DefaultTypingIdle is how long after the last keystroke a "stopped typing"
// notification is sent.
const DefaultTypingIdle = 3 * time.Second

// TypingSender delivers an outbound typing notification. Delivery is advisory;
// implementations log and drop failures.
type TypingSender func(conversationID string, typing bool)

// TypingNotifier turns keystrokes into typing notifications: every keystroke
// sends typing=true and re-arms an idle timer that sends a single typing=false.
type TypingNotifier struct {
	mu             sync.Mutex
	send           TypingSender
	idle           time.Duration
	timer          *time.Timer
	conversationID string
	seq            uint64
	stopped        bool
}

// NewTypingNotifier creates a notifier. A non-positive idle uses DefaultTypingIdle.
func NewTypingNotifier(send TypingSender, idle time.Duration) *TypingNotifier {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingNotifier{send: send, idle: idle}
}

// Keystroke reports typing activity in conversationID. Switching conversation
// while the idle timer is armed sends typing=false for the previous one first.
func (n *TypingNotifier) Keystroke(conversationID string) {
	n.mu.Lock()
	if n.stopped || conversationID == "" {
		n.mu.Unlock()
		return
	}

	previous := ""
	if n.timer != nil {
		n.timer.Stop()
		if n.conversationID != conversationID {
			previous = n.conversationID
		}
	}

	n.seq++
	seq := n.seq
	n.conversationID = conversationID
	n.timer = time.AfterFunc(n.idle, func() { n.idleFired(seq) })
	n.mu.Unlock()

	if previous != "" {
		n.send(previous, false)
	}
	n.send(conversationID, true)
}

func (n *TypingNotifier) idleFired(seq uint64) {
	n.mu.Lock()
	if n.stopped || n.seq != seq || n.timer == nil {
		n.mu.Unlock()
		return
	}
	conversationID := n.conversationID
	n.timer = nil
	n.conversationID = ""
	n.mu.Unlock()

	n.send(conversationID, false)
}

// Stop cancels the idle timer without sending. Later keystrokes are ignored.
func (n *TypingNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}
