package multiplayer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nfrund/lernsino/internal/domain"
	"github.com/nfrund/lernsino/internal/protocol"
	"github.com/nfrund/lernsino/internal/pubsub"
)

// Client is the transport-agnostic realtime channel used by the UI.
//
// All connection state is owned by a single event-loop goroutine; socket
// reads, dial results, reconnect ticks and local-channel deliveries are posted
// to it as events. Listeners run on that goroutine, one at a time, in
// registration order. Listeners must not call Shutdown.
type Client struct {
	cfg    Config
	id     string
	dialer Dialer
	bus    pubsub.Bus
	logger *slog.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	inbox        *mailbox
	shutdownOnce sync.Once

	// Owned by the event loop.
	state        State
	link         *link
	pendingLogin string
	fallback     *localChannel
	retry        *retryTimer
	attempts     int
	warnedNoBus  bool

	// statusMu orders connection-status changes against subscribe-time replay.
	statusMu  sync.Mutex
	connected bool
	statusGen uint64

	stateView      atomic.Int32
	fallbackActive atomic.Bool
	armedTimers    atomic.Int32
	timersStarted  atomic.Int64

	messages   *registry[domain.ChatMessage]
	connection *registry[bool]
	states     *registry[domain.UserStats]
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer, e.g. with a fake hub in tests.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithLocalBus sets the same-device broadcast bus used in local mode.
// Without one, local mode is unavailable and chat is dropped while disconnected.
func WithLocalBus(bus pubsub.Bus) Option {
	return func(c *Client) {
		c.bus = bus
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithInstanceID overrides the generated client id used to recognise the
// client's own broadcasts on the local bus.
func WithInstanceID(id string) Option {
	return func(c *Client) {
		c.id = id
	}
}

// New creates a client and immediately starts connecting to cfg.URL in the background.
func New(cfg Config, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:    cfg.withDefaults(),
		id:     uuid.NewString(),
		dialer: WebSocketDialer{},
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
		inbox:  newMailbox(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("client_id", c.id)

	c.messages = newRegistry[domain.ChatMessage]("messages", c.logger)
	c.connection = newRegistry[bool]("connection", c.logger)
	c.states = newRegistry[domain.UserStats]("state", c.logger)

	c.wg.Add(1)
	go c.run()
	c.post(connectRequested{})
	return c
}

// ID returns the client's instance id.
func (c *Client) ID() string {
	return c.id
}

// Login records username as the player's identity. It is sent right away when
// the hub is connected, and again automatically after every (re)connect.
func (c *Client) Login(username string) {
	if username == "" {
		c.logger.Warn("Ignoring login with empty username")
		return
	}
	c.post(loginRequested{username: username})
}

// SendMessage sends msg over the hub when connected, otherwise over the local
// channel if one is active. Nothing is queued or retried.
func (c *Client) SendMessage(msg domain.ChatMessage) {
	c.post(sendRequested{msg: msg})
}

// UpdateState pushes a stats snapshot to the hub. It is a no-op while disconnected.
func (c *Client) UpdateState(stats domain.UserStats) {
	c.post(updateRequested{stats: stats})
}

// SubscribeToMessages registers a listener for chat messages from either transport.
func (c *Client) SubscribeToMessages(listener func(domain.ChatMessage)) Unsubscribe {
	_, unsubscribe := c.messages.add(listener)
	return unsubscribe
}

// SubscribeToConnection registers a listener for connection status changes.
// The listener is invoked once with the current status before this returns.
func (c *Client) SubscribeToConnection(listener func(bool)) Unsubscribe {
	c.statusMu.Lock()
	sub, unsubscribe := c.connection.add(listener)
	sub.mu.Lock()
	connected := c.connected
	sub.seen = c.statusGen
	c.statusMu.Unlock()

	c.connection.invoke(sub, connected)
	sub.mu.Unlock()
	return unsubscribe
}

// SubscribeToState registers a listener for the snapshot the hub sends after a
// login. There is no replay of earlier snapshots.
func (c *Client) SubscribeToState(listener func(domain.UserStats)) Unsubscribe {
	_, unsubscribe := c.states.add(listener)
	return unsubscribe
}

// IsConnected reports whether the remote hub is currently connected.
func (c *Client) IsConnected() bool {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.connected
}

// State returns the remote connection state.
func (c *Client) State() State {
	return State(c.stateView.Load())
}

// FallbackActive reports whether the local channel has been created.
func (c *Client) FallbackActive() bool {
	return c.fallbackActive.Load()
}

// Shutdown closes the remote connection, stops the reconnect timer and the
// local subscription, and waits for every background goroutine to exit.
// It is safe to call more than once.
func (c *Client) Shutdown() error {
	c.shutdownOnce.Do(func() {
		c.logger.Info("Shutting down transport client")
		c.cancel()
		c.wg.Wait()
	})
	return nil
}

func (c *Client) post(ev event) bool {
	if !c.inbox.post(ev) {
		c.logger.Debug("Dropping event", "event", fmt.Sprintf("%T", ev), "error", domain.ErrClientClosed)
		return false
	}
	return true
}

func (c *Client) run() {
	defer c.wg.Done()
	defer c.teardown()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.inbox.notify:
			for _, ev := range c.inbox.drain() {
				if c.ctx.Err() != nil {
					return
				}
				c.handle(ev)
			}
		}
	}
}

func (c *Client) handle(ev event) {
	switch e := ev.(type) {
	case connectRequested:
		c.connect()
	case loginRequested:
		c.onLogin(e.username)
	case sendRequested:
		c.onSend(e.msg)
	case updateRequested:
		c.onUpdate(e.stats)
	case dialed:
		c.onDialed(e.conn, e.err)
	case frameReceived:
		c.onFrame(e.link, e.data)
	case linkClosed:
		c.onLinkClosed(e.link, e.err)
	case reconnectTick:
		c.onTick(e.timer)
	case localReceived:
		c.messages.emit(e.msg)
	default:
		c.logger.Error("Unhandled event", "event", ev)
	}
}

func (c *Client) teardown() {
	c.disarmRetry()
	if c.link != nil {
		if err := c.link.close(); err != nil {
			c.logger.Debug("Error closing hub connection", "error", err)
		}
		c.link = nil
	}
	for _, ev := range c.inbox.close() {
		if d, ok := ev.(dialed); ok && d.conn != nil {
			d.conn.Close()
		}
	}

	c.setState(StateDisconnected)
	c.statusMu.Lock()
	c.connected = false
	c.statusMu.Unlock()
}

func (c *Client) setState(s State) {
	c.state = s
	c.stateView.Store(int32(s))
}

// setConnected records the connected flag and notifies listeners when it changes.
func (c *Client) setConnected(connected bool) {
	c.statusMu.Lock()
	if c.connected == connected {
		c.statusMu.Unlock()
		return
	}
	c.connected = connected
	c.statusGen++
	gen := c.statusGen
	c.statusMu.Unlock()

	c.connection.emitGen(connected, gen)
}

// connect starts one connection attempt unless one is already running.
func (c *Client) connect() {
	if c.state != StateDisconnected {
		return
	}
	c.setState(StateConnecting)
	c.logger.Info("Connecting to hub", "url", c.cfg.URL)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.DialTimeout)
		defer cancel()

		conn, err := c.dialer.Dial(ctx, c.cfg.URL)
		if !c.inbox.post(dialed{conn: conn, err: err}) && conn != nil {
			conn.Close()
		}
	}()
}

func (c *Client) onDialed(conn Conn, err error) {
	if err != nil {
		c.logger.Warn("Hub connection failed", "url", c.cfg.URL, "error", err)
		c.onDisconnected()
		return
	}

	l := newLink(conn)
	c.link = l
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		l.readPump(c.ctx, c.post)
	}()
	go func() {
		defer c.wg.Done()
		l.writePump(c.ctx, c.post)
	}()

	c.logger.Info("Connected to hub", "url", c.cfg.URL)
	c.setState(StateConnected)
	c.attempts = 0
	c.disarmRetry()
	c.setConnected(true)

	if c.pendingLogin != "" {
		c.transmit(protocol.Login{Username: c.pendingLogin})
	}
}

func (c *Client) onLinkClosed(l *link, err error) {
	if l != c.link {
		return
	}
	c.logger.Warn("Hub connection closed", "error", err)
	if cerr := l.close(); cerr != nil {
		c.logger.Debug("Error closing hub connection", "error", cerr)
	}
	c.link = nil
	c.onDisconnected()
}

// onDisconnected switches to local mode and makes sure a reconnect timer is running.
func (c *Client) onDisconnected() {
	c.setState(StateDisconnected)
	c.setConnected(false)
	c.activateFallback()
	c.armRetry()
}

// activateFallback creates the local channel once per client lifetime.
func (c *Client) activateFallback() {
	if c.fallback != nil {
		return
	}
	if c.bus == nil {
		if !c.warnedNoBus {
			c.logger.Warn("No local bus configured, chat is unavailable while disconnected")
			c.warnedNoBus = true
		}
		return
	}

	lc, err := openLocalChannel(c.ctx, c.bus, c.cfg.FallbackChannel, c.id, func(msg domain.ChatMessage) {
		c.post(localReceived{msg: msg})
	})
	if err != nil {
		c.logger.Error("Failed to open local channel", "channel", c.cfg.FallbackChannel, "error", err)
		return
	}

	c.fallback = lc
	c.fallbackActive.Store(true)
	c.logger.Warn("Using local mode (no persistence)", "channel", c.cfg.FallbackChannel)
	c.messages.emit(domain.NewSystemMessage(localModeNotice))
}

func (c *Client) onLogin(username string) {
	c.pendingLogin = username
	if c.state == StateConnected {
		c.transmit(protocol.Login{Username: username})
	}
}

func (c *Client) onSend(msg domain.ChatMessage) {
	switch {
	case c.state == StateConnected:
		c.transmit(protocol.Chat{Message: msg})
	case c.fallback != nil:
		if err := c.fallback.publish(c.ctx, msg); err != nil {
			c.logger.Warn("Failed to publish on local channel", "msg_id", msg.ID, "error", err)
		}
	default:
		c.logger.Debug("No transport available, dropping message", "msg_id", msg.ID)
	}
}

func (c *Client) onUpdate(stats domain.UserStats) {
	if c.state != StateConnected {
		c.logger.Debug("Not connected, skipping state update")
		return
	}
	c.transmit(protocol.StateUpdate{Stats: stats})
}

// transmit encodes f and queues it on the open link.
func (c *Client) transmit(f protocol.Frame) {
	if c.link == nil {
		return
	}
	data, err := protocol.Encode(f)
	if err != nil {
		c.logger.Error("Failed to encode frame", "kind", f.Kind(), "error", err)
		return
	}
	if err := c.link.enqueue(data); err != nil {
		c.logger.Warn("Dropping outbound frame", "kind", f.Kind(), "error", err)
	}
}

func (c *Client) onFrame(l *link, data []byte) {
	if l != c.link {
		return
	}

	switch f := protocol.Decode(data).(type) {
	case protocol.InitState:
		c.logger.Debug("Received state from hub")
		c.states.emit(f.Stats)
	case protocol.Chat:
		c.messages.emit(f.Message)
	case protocol.Unknown:
		c.logger.Warn("Dropping unrecognised frame", "bytes", len(data), "error", f.Err)
	default:
		c.logger.Debug("Ignoring unexpected frame from hub", "kind", f.Kind())
	}
}
