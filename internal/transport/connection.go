package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/devpool/chatsync/internal/domain"
)

const (
	defaultRetryDelay    = 5 * time.Second
	defaultDialTimeout   = 15 * time.Second
	defaultInvokeTimeout = 10 * time.Second
	defaultPingInterval  = 15 * time.Second
	defaultReadLimit     = 1 << 20
)

// TokenSource supplies the bearer token used at connect time.
type TokenSource interface {
	Token() (string, bool)
}

// Options configures a Connection.
type Options struct {
	// URL is the hub websocket endpoint, e.g. ws://host/hubs/chat.
	URL string

	// Tokens supplies the bearer token. Without a token Connect is a no-op.
	Tokens TokenSource

	// RetryDelay is the wait before retrying a failed initial connect.
	RetryDelay time.Duration

	// ReconnectSchedule is the delay before each reconnect attempt after a
	// live connection drops. nil uses DefaultReconnectSchedule; an empty
	// non-nil slice disables automatic reconnection.
	ReconnectSchedule []time.Duration

	DialTimeout   time.Duration
	InvokeTimeout time.Duration

	// PingInterval is the keepalive period. Zero uses the default, negative disables.
	PingInterval time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// DefaultReconnectSchedule mirrors the hub client's usual retry policy.
var DefaultReconnectSchedule = []time.Duration{0, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second}

type completion struct {
	result json.RawMessage
	err    error
}

// Connection owns the single live websocket to the chat hub. It is the only
// component that opens or closes the socket.
type Connection struct {
	opts     Options
	logger   *slog.Logger
	handlers atomic.Pointer[Handlers]

	mu         sync.Mutex
	state      domain.ConnectionState
	conn       *websocket.Conn
	connecting bool
	retryTimer *time.Timer
	generation uint64
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	pending    map[string]chan completion
	stateQueue []domain.ConnectionState

	// emitMu serialises state callbacks so transitions are reported in order.
	emitMu sync.Mutex
}

// New creates a Connection. It does not connect.
func New(opts Options) *Connection {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.ReconnectSchedule == nil {
		opts.ReconnectSchedule = DefaultReconnectSchedule
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.InvokeTimeout <= 0 {
		opts.InvokeTimeout = defaultInvokeTimeout
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = defaultPingInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		opts:    opts,
		logger:  logger.With("component", "transport"),
		state:   domain.Disconnected,
		pending: make(map[string]chan completion),
	}
	c.lifeCtx, c.lifeCancel = context.WithCancel(context.Background())
	c.handlers.Store(&Handlers{})
	return c
}

// State returns the current connection state.
func (c *Connection) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether invocations are currently allowed.
func (c *Connection) IsConnected() bool {
	return c.State() == domain.Connected
}

// Connect starts a connection attempt. It is idempotent: while an attempt is
// in flight, a reconnect is running, or a connection is live, it returns
// immediately. Without a token it does nothing. A failed attempt leaves the
// state Disconnected and schedules a single retry after RetryDelay; the error
// is logged, never returned.
func (c *Connection) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.connecting || c.conn != nil || c.state == domain.Reconnecting {
		c.mu.Unlock()
		return
	}
	token, ok := c.opts.Tokens.Token()
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("No bearer token available, not connecting")
		return
	}
	c.connecting = true
	c.stopRetryLocked()
	gen := c.generation
	lifeCtx := c.lifeCtx
	c.setStateLocked(domain.Connecting)
	c.mu.Unlock()
	c.flushState()

	dialCtx, cancel := mergeCancel(ctx, lifeCtx)
	conn, err := c.dial(dialCtx, token)
	cancel()

	c.mu.Lock()
	if gen != c.generation {
		// Torn down while dialling.
		c.mu.Unlock()
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "client disconnected")
		}
		return
	}
	c.connecting = false
	if err != nil {
		c.logger.Warn("Failed to connect to chat hub, scheduling retry",
			"url", c.opts.URL,
			"retry_in", c.opts.RetryDelay,
			"error", err)
		c.setStateLocked(domain.Disconnected)
		c.retryTimer = time.AfterFunc(c.opts.RetryDelay, func() {
			c.retry(gen)
		})
		c.mu.Unlock()
		c.flushState()
		return
	}
	c.attachLocked(conn, gen)
	c.mu.Unlock()
	c.flushState()
	c.logger.Info("Connected to chat hub", "url", c.opts.URL)
}

// Disconnect cancels any pending retry, stops reconnection, closes the live
// connection and fails pending invocations. Safe to call repeatedly.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.stopRetryLocked()
	c.generation++
	c.lifeCancel()
	c.lifeCtx, c.lifeCancel = context.WithCancel(context.Background())
	conn := c.conn
	c.conn = nil
	c.connecting = false
	c.failPendingLocked(domain.ErrNotConnected)
	c.setStateLocked(domain.Disconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnected")
		c.logger.Info("Disconnected from chat hub")
	}
	c.flushState()
}

// Invoke sends an invocation and waits for the hub's acknowledgement.
func (c *Connection) Invoke(ctx context.Context, target string, payload any) error {
	return c.InvokeResult(ctx, target, payload, nil)
}

// InvokeResult is Invoke that also decodes the completion's result into out
// when out is non-nil.
func (c *Connection) InvokeResult(ctx context.Context, target string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", target, err)
	}

	c.mu.Lock()
	if c.state != domain.Connected || c.conn == nil {
		c.mu.Unlock()
		return domain.ErrNotConnected
	}
	conn := c.conn
	id := uuid.NewString()
	done := make(chan completion, 1)
	c.pending[id] = done
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.opts.InvokeTimeout)
	defer cancel()

	frame := Frame{Type: FrameInvocation, InvocationID: id, Target: target, Payload: raw}
	if err := writeFrame(ctx, conn, frame); err != nil {
		return fmt.Errorf("invoke %s: %w", target, err)
	}

	select {
	case res := <-done:
		if res.err != nil {
			var invErr *InvocationError
			if errors.As(res.err, &invErr) && invErr.Target == "" {
				invErr.Target = target
			}
			return res.err
		}
		if out != nil && len(res.result) > 0 {
			if err := json.Unmarshal(res.result, out); err != nil {
				return fmt.Errorf("decode %s result: %w", target, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("invoke %s: %w", target, ctx.Err())
	}
}

// SendMessage invokes MethodSendMessage. The hub echoes the stored message
// back through EventReceiveMessage.
func (c *Connection) SendMessage(ctx context.Context, args SendMessageArgs) error {
	return c.Invoke(ctx, MethodSendMessage, args)
}

// JoinConversation invokes MethodJoinConversation.
func (c *Connection) JoinConversation(ctx context.Context, conversationID string) error {
	return c.Invoke(ctx, MethodJoinConversation, JoinConversationArgs{ConversationID: conversationID})
}

// SendTyping invokes MethodSendTyping.
func (c *Connection) SendTyping(ctx context.Context, conversationID string, typing bool) error {
	return c.Invoke(ctx, MethodSendTyping, TypingArgs{ConversationID: conversationID, IsTyping: typing})
}

// MarkAsRead invokes MethodMarkAsRead.
func (c *Connection) MarkAsRead(ctx context.Context, conversationID, lastMessageID string) error {
	return c.Invoke(ctx, MethodMarkAsRead, MarkAsReadArgs{ConversationID: conversationID, LastMessageID: lastMessageID})
}

func (c *Connection) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{
		HTTPClient: c.opts.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(defaultReadLimit)
	return conn, nil
}

// attachLocked installs conn as the live connection. c.mu must be held.
func (c *Connection) attachLocked(conn *websocket.Conn, gen uint64) {
	c.conn = conn
	c.setStateLocked(domain.Connected)
	ctx := c.lifeCtx
	go c.readLoop(ctx, conn, gen)
	if c.opts.PingInterval > 0 {
		go c.keepalive(ctx, conn)
	}
}

func (c *Connection) retry(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	ctx := c.lifeCtx
	c.mu.Unlock()

	c.logger.Debug("Retrying chat hub connection")
	c.Connect(ctx)
}

func (c *Connection) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// readLoop pumps frames from the socket. Events are dispatched synchronously
// so handlers observe them in delivery order.
func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.handleDrop(conn, gen, err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Connection) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.opts.PingInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.logger.Debug("Keepalive ping failed, closing connection", "error", err)
				conn.CloseNow()
				return
			}
		}
	}
}

func (c *Connection) handleDrop(conn *websocket.Conn, gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.generation || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.failPendingLocked(ErrConnectionLost)
	c.setStateLocked(domain.Reconnecting)
	ctx := c.lifeCtx
	c.mu.Unlock()
	c.flushState()

	c.logger.Warn("Chat hub connection dropped, reconnecting", "error", cause)
	conn.CloseNow()
	go c.reconnect(ctx, gen)
}

// reconnect redials along the reconnect schedule. The first delay is waited
// before the first attempt.
func (c *Connection) reconnect(ctx context.Context, gen uint64) {
	schedule := c.opts.ReconnectSchedule
	if len(schedule) == 0 {
		c.finishReconnect(gen, nil, fmt.Errorf("automatic reconnection disabled"))
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(schedule[0]):
	}

	var conn *websocket.Conn
	attempt := 0
	operation := func() error {
		attempt++
		token, ok := c.opts.Tokens.Token()
		if !ok {
			return backoff.Permanent(errNoToken)
		}
		cn, err := c.dial(ctx, token)
		if err != nil {
			return err
		}
		conn = cn
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Info("Reconnect attempt failed",
			"attempt", attempt,
			"next_in", next,
			"error", err)
	}

	b := backoff.WithContext(NewScheduleBackOff(schedule[1:]), ctx)
	err := backoff.RetryNotify(operation, b, notify)
	if ctx.Err() != nil {
		if conn != nil {
			conn.CloseNow()
		}
		return
	}
	c.finishReconnect(gen, conn, err)
}

func (c *Connection) finishReconnect(gen uint64, conn *websocket.Conn, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "client disconnected")
		}
		return
	}
	if err != nil || conn == nil {
		c.setStateLocked(domain.Disconnected)
		c.mu.Unlock()
		c.flushState()
		c.logger.Error("Gave up reconnecting to chat hub", "error", err)
		return
	}
	c.attachLocked(conn, gen)
	c.mu.Unlock()
	c.flushState()
	c.logger.Info("Reconnected to chat hub")
}

func (c *Connection) failPendingLocked(err error) {
	for id, ch := range c.pending {
		select {
		case ch <- completion{err: err}:
		default:
		}
		delete(c.pending, id)
	}
}

// setStateLocked records a transition for flushState. c.mu must be held.
func (c *Connection) setStateLocked(s domain.ConnectionState) {
	if c.state == s {
		return
	}
	c.state = s
	c.stateQueue = append(c.stateQueue, s)
}

// flushState reports queued transitions to OnStateChange in order. It must be
// called without holding c.mu.
func (c *Connection) flushState() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	for {
		c.mu.Lock()
		if len(c.stateQueue) == 0 {
			c.mu.Unlock()
			return
		}
		s := c.stateQueue[0]
		c.stateQueue = c.stateQueue[1:]
		c.mu.Unlock()

		if fn := c.currentHandlers().OnStateChange; fn != nil {
			fn(s)
		}
	}
}

func (c *Connection) dispatch(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn("Dropping malformed hub frame", "error", err)
		return
	}

	switch f.Type {
	case FrameCompletion:
		c.complete(f)
	case FrameEvent:
		c.dispatchEvent(f)
	default:
		c.logger.Debug("Ignoring hub frame", "type", f.Type)
	}
}

func (c *Connection) complete(f Frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.InvocationID]
	if ok {
		delete(c.pending, f.InvocationID)
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("Completion for unknown invocation", "invocation_id", f.InvocationID)
		return
	}

	res := completion{result: f.Result}
	if f.Error != "" {
		res.err = &InvocationError{Target: f.Target, Message: f.Error}
	}
	ch <- res
}

func (c *Connection) dispatchEvent(f Frame) {
	h := c.currentHandlers()
	switch f.Target {
	case EventReceiveMessage:
		deliver(c, f, h.OnMessage)
	case EventUserTyping:
		deliver(c, f, h.OnTyping)
	case EventMessagesRead:
		deliver(c, f, h.OnReadReceipts)
	case EventUserOnline:
		deliver(c, f, h.OnUserOnline)
	case EventUserOffline:
		deliver(c, f, h.OnUserOffline)
	default:
		c.logger.Debug("Ignoring unknown hub event", "event", f.Target)
	}
}

func deliver[T any](c *Connection, f Frame, fn func(T)) {
	if fn == nil {
		return
	}
	var v T
	if err := json.Unmarshal(f.Payload, &v); err != nil {
		c.logger.Warn("Dropping malformed hub event", "event", f.Target, "error", err)
		return
	}
	fn(v)
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// WriteFrame encodes f and writes it to conn as a text message.
func WriteFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	return writeFrame(ctx, conn, f)
}

// mergeCancel returns a context that is cancelled when either parent is.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
