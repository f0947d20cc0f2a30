package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/umar/roomsync/internal/models"
)

// State is the lifecycle state of the realtime connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler receives everything the connection produces. Calls are made from
// the connection's own goroutine, in delivery order.
type Handler interface {
	HandleState(State)
	HandleMessage(models.MessageEvent)
}

type Settings struct {
	HandshakeTimeout time.Duration
	// Time allowed to write a frame to the server.
	WriteWait time.Duration
	// Time allowed between frames (or pongs) from the server.
	PongWait time.Duration
	// Must be less than PongWait.
	PingPeriod     time.Duration
	MaxMessageSize int64
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	// join_room frames per second and burst.
	JoinRate   float64
	JoinBurst  int
	SendBuffer int
}

func DefaultSettings() Settings {
	return Settings{
		HandshakeTimeout: 10 * time.Second,
		WriteWait:        10 * time.Second,
		PongWait:         60 * time.Second,
		PingPeriod:       54 * time.Second,
		MaxMessageSize:   64 * 1024,
		ReconnectMin:     500 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
		JoinRate:         200,
		JoinBurst:        100,
		SendBuffer:       256,
	}
}

// Conn owns the single realtime connection to the chat server. It dials,
// keeps the link alive with pings, redials with exponential backoff after a
// drop and reports every state transition to its Handler. Server-side room
// joins do not survive a drop; rejoining is the Handler's job on Connected.
type Conn struct {
	url      string
	logURL   string
	header   http.Header
	settings Settings
	handler  Handler
	logger   *slog.Logger
	dialer   *websocket.Dialer
	joins    *rate.Limiter

	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	link   *link
}

// link is one established websocket session.
type link struct {
	ws   *websocket.Conn
	send chan []byte
	// closed once the writer has stopped
	done chan struct{}
}

func NewConn(rawURL string, header http.Header, handler Handler, settings Settings, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.SendBuffer <= 0 {
		settings.SendBuffer = DefaultSettings().SendBuffer
	}
	if settings.ReconnectMin <= 0 {
		settings.ReconnectMin = DefaultSettings().ReconnectMin
	}
	if settings.ReconnectMax < settings.ReconnectMin {
		settings.ReconnectMax = settings.ReconnectMin
	}
	joinLimit := rate.Inf
	if settings.JoinRate > 0 {
		joinLimit = rate.Limit(settings.JoinRate)
	}
	if settings.JoinBurst <= 0 {
		settings.JoinBurst = 1
	}

	return &Conn{
		url:      rawURL,
		logURL:   redact(rawURL),
		header:   header.Clone(),
		settings: settings,
		handler:  handler,
		logger:   logger.With("component", "conn"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: settings.HandshakeTimeout,
		},
		joins: rate.NewLimiter(joinLimit, settings.JoinBurst),
	}
}

// State returns the current connection state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Connect starts the connection loop unless it is already running. The loop
// lives until Disconnect is called or ctx is cancelled.
func (c *Conn) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
}

// Disconnect closes the connection and waits for the loop to exit.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Subscribe asks the server to deliver events for roomID. It is
// fire-and-forget: when no link is up the request is dropped, and the next
// Connected transition is expected to rejoin.
func (c *Conn) Subscribe(roomID string) {
	frame, err := JoinRoomFrame(roomID)
	if err != nil {
		c.logger.Error("failed to encode join_room", "room_id", roomID, "error", err)
		return
	}

	c.mu.Lock()
	l := c.link
	c.mu.Unlock()

	if l == nil {
		c.logger.Debug("join_room dropped, not connected", "room_id", roomID)
		return
	}

	select {
	case l.send <- frame:
	case <-l.done:
		c.logger.Debug("join_room dropped, link closed", "room_id", roomID)
	}
}

func (c *Conn) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.logger.Info("connection state changed", "state", s.String())
	c.handler.HandleState(s)
}

func (c *Conn) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.setState(StateDisconnected)

	backoff := c.settings.ReconnectMin
	for {
		c.setState(StateConnecting)
		ws, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.setState(StateDisconnected)
			c.logger.Warn("websocket dial failed", "url", c.logURL, "error", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.settings.ReconnectMax)
			continue
		}

		backoff = c.settings.ReconnectMin
		c.serve(ctx, ws)
		if ctx.Err() != nil {
			return
		}
		if !sleepCtx(ctx, backoff) {
			return
		}
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake rejected with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial websocket: %w", err)
	}
	return ws, nil
}

// serve runs one established link until it fails or ctx is cancelled.
func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) {
	l := &link{
		ws:   ws,
		send: make(chan []byte, c.settings.SendBuffer),
		done: make(chan struct{}),
	}
	linkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.settings.MaxMessageSize > 0 {
		ws.SetReadLimit(c.settings.MaxMessageSize)
	}
	c.extendReadDeadline(ws)
	ws.SetPongHandler(func(string) error {
		c.extendReadDeadline(ws)
		return nil
	})

	c.mu.Lock()
	c.link = l
	c.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(l.done)
		defer cancel()
		c.writePump(linkCtx, l)
	}()

	c.setState(StateConnected)
	c.readPump(linkCtx, l)
	cancel()
	wg.Wait()

	c.mu.Lock()
	if c.link == l {
		c.link = nil
	}
	c.mu.Unlock()

	c.setState(StateDisconnected)
}

func (c *Conn) extendReadDeadline(ws *websocket.Conn) {
	if c.settings.PongWait <= 0 {
		return
	}
	if err := ws.SetReadDeadline(time.Now().Add(c.settings.PongWait)); err != nil {
		c.logger.Debug("failed to set read deadline", "error", err)
	}
}

func (c *Conn) readPump(ctx context.Context, l *link) {
	for {
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !isExpectedClose(err) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.extendReadDeadline(l.ws)
		c.dispatch(data)
	}
}

// dispatch decodes one frame. A frame may hold several newline separated
// messages.
func (c *Conn) dispatch(data []byte) {
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var msg WSMessage
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("malformed frame", "error", err)
			}
			return
		}

		switch msg.Type {
		case TypeReceiveMessage:
			ev, err := DecodeMessageEvent(msg.Payload)
			if err != nil {
				c.logger.Warn("dropping message event", "error", err)
				continue
			}
			c.handler.HandleMessage(ev)
		default:
			c.logger.Debug("ignoring frame", "type", msg.Type)
		}
	}
}

func (c *Conn) writePump(ctx context.Context, l *link) {
	var ticker *time.Ticker
	var tick <-chan time.Time
	if c.settings.PingPeriod > 0 {
		ticker = time.NewTicker(c.settings.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer l.ws.Close()

	for {
		select {
		case <-ctx.Done():
			c.setWriteDeadline(l.ws)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = l.ws.WriteMessage(websocket.CloseMessage, msg)
			return

		case frame := <-l.send:
			if err := c.joins.Wait(ctx); err != nil {
				return
			}
			c.setWriteDeadline(l.ws)
			if err := l.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-tick:
			c.setWriteDeadline(l.ws)
			if err := l.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("websocket ping error", "error", err)
				return
			}
		}
	}
}

func (c *Conn) setWriteDeadline(ws *websocket.Conn) {
	if c.settings.WriteWait <= 0 {
		return
	}
	_ = ws.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
}

// WithToken returns rawURL with the bearer token set as the token query
// parameter, which is how the chat server authenticates websocket upgrades.
func WithToken(rawURL, token string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid websocket url: %w", err)
	}
	if token == "" {
		return u.String(), nil
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed)
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
