package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/credential"
	"github.com/mahaj/taskchat/pkg/metrics"
	"github.com/mahaj/taskchat/pkg/model"
	"github.com/mahaj/taskchat/pkg/protocol"
)

const (
	defaultHandshakeTimeout = 10 * time.Second

	// Time allowed to write a command to the server.
	defaultWriteTimeout = 10 * time.Second

	// Maximum frame size accepted from the server.
	maxFrameSize = 1 << 20
)

var newline = []byte{'\n'}

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

type Options struct {
	// URL is the websocket base, e.g. ws://localhost:3000.
	URL string
	// Namespace is appended to URL as a path segment. Defaults to "chat".
	Namespace        string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Logger           *zap.Logger
	Dialer           *websocket.Dialer
}

// ServerError is an error the server reported on the realtime channel.
type ServerError struct {
	Event   string
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "chat server reported an error"
	}
	return e.Message
}

// Conn owns one realtime session: the socket handle, the connection state
// and the subscribers. One Conn per logged-in session; it is safe to use
// from several goroutines.
type Conn struct {
	*Events

	opts   Options
	tokens credential.Store
	log    *zap.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	state   State
	ws      *websocket.Conn
	cancel  context.CancelFunc
	session uint64

	// announcing is the session whose connected handlers are running.
	// A Disconnect in that window leaves the disconnected event to the
	// announcing goroutine (pendingDown) so it never precedes connected.
	announcing  uint64
	pendingDown uint64

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex
}

func New(opts Options, tokens credential.Store) *Conn {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Namespace == "" {
		opts.Namespace = protocol.DefaultNamespace
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = opts.HandshakeTimeout
		dialer = &d
	}
	log := opts.Logger.With(zap.String("component", "realtime"))
	return &Conn{
		Events: NewEvents(log),
		opts:   opts,
		tokens: tokens,
		log:    log,
		dialer: dialer,
	}
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect starts one connection attempt and returns without waiting for the
// handshake; OnConnected or OnDisconnected report how it went. ctx only
// bounds the credential lookup. A Conn that is connecting or connected
// rejects the call with ErrAlreadyConnected; call Disconnect first.
func (c *Conn) Connect(ctx context.Context) error {
	token, err := credential.Require(ctx, c.tokens)
	if err != nil {
		metrics.ConnectAttempts.WithLabelValues("rejected").Inc()
		return err
	}
	endpoint, err := c.endpoint(token)
	if err != nil {
		metrics.ConnectAttempts.WithLabelValues("rejected").Inc()
		return apierr.New(apierr.KindNetwork, err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		metrics.ConnectAttempts.WithLabelValues("rejected").Inc()
		return apierr.New(apierr.KindAlreadyConnected, nil)
	}
	c.session++
	id := c.session
	dialCtx, cancel := context.WithTimeout(context.Background(), c.opts.HandshakeTimeout)
	c.cancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	c.log.Info("connecting", zap.String("url", redact(endpoint)))
	go c.dial(dialCtx, cancel, id, endpoint, header)
	return nil
}

func (c *Conn) endpoint(token string) (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("realtime url must be ws:// or wss://")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Trim(c.opts.Namespace, "/")
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Conn) dial(ctx context.Context, cancel context.CancelFunc, id uint64, endpoint string, header http.Header) {
	ws, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	cancel()
	if err != nil {
		var reason error
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			reason = apierr.FromStatus(resp.StatusCode, body)
		} else {
			reason = apierr.FromTransport(err)
		}
		metrics.ConnectAttempts.WithLabelValues("failed").Inc()
		c.log.Warn("connect failed", zap.Error(err))
		if c.teardown(id, reason) {
			c.emitError(reason)
		}
		return
	}

	c.mu.Lock()
	if c.session != id || c.state != StateConnecting {
		// Disconnect won the race; this socket was never handed out.
		c.mu.Unlock()
		ws.Close()
		return
	}
	ws.SetReadLimit(maxFrameSize)
	c.ws = ws
	c.state = StateConnected
	c.cancel = nil
	c.announcing = id
	c.mu.Unlock()

	metrics.ConnectAttempts.WithLabelValues("ok").Inc()
	metrics.Connected.Set(1)
	c.log.Info("connected")
	c.emitConnected()

	c.mu.Lock()
	if c.announcing == id {
		c.announcing = 0
	}
	down := c.pendingDown == id
	if down {
		c.pendingDown = 0
	}
	c.mu.Unlock()
	if down {
		c.emitDisconnected(nil)
		return
	}

	c.readLoop(id, ws)
}

// live reports whether session id is still the connected one.
func (c *Conn) live(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session == id && c.state == StateConnected
}

// readLoop delivers inbound events on this goroutine, in receipt order,
// until the socket fails or is closed.
func (c *Conn) readLoop(id uint64, ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			var reason error
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				reason = apierr.FromTransport(err)
			}
			if c.teardown(id, reason) {
				c.log.Info("connection lost", zap.Error(err))
			}
			return
		}
		for _, frame := range bytes.Split(data, newline) {
			if !c.live(id) {
				return
			}
			if frame = bytes.TrimSpace(frame); len(frame) > 0 {
				c.handleFrame(frame)
			}
		}
	}
}

// teardown moves session id to Disconnected. It reports false, and fires
// nothing, when the session already ended or was replaced.
func (c *Conn) teardown(id uint64, reason error) bool {
	c.mu.Lock()
	if c.session != id || c.state == StateDisconnected {
		c.mu.Unlock()
		return false
	}
	ws, cancel := c.ws, c.cancel
	c.ws, c.cancel = nil, nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		ws.Close()
	}
	metrics.Connected.Set(0)
	c.emitDisconnected(reason)
	return true
}

// Disconnect closes the session if there is one. Calling it again, or on a
// Conn that never connected, does nothing. While connecting it cancels the
// dial. Called from an OnConnected handler, the disconnected event fires
// once the remaining connected handlers have run. In-flight REST calls are
// not affected.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	ws, cancel := c.ws, c.cancel
	c.ws, c.cancel = nil, nil
	c.state = StateDisconnected
	deferred := c.announcing != 0 && c.announcing == c.session
	if deferred {
		c.pendingDown = c.session
		c.announcing = 0
	}
	c.session++
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteTimeout))
		c.writeMu.Unlock()
		ws.Close()
	}
	metrics.Connected.Set(0)
	c.log.Info("disconnected")
	if !deferred {
		c.emitDisconnected(nil)
	}
	return nil
}

func (c *Conn) handleFrame(frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil || env.Event == "" {
		metrics.EventsDropped.Inc()
		c.log.Debug("dropping undecodable frame", zap.ByteString("frame", frame))
		return
	}
	metrics.EventsReceived.WithLabelValues(env.Event).Inc()

	switch env.Event {
	case protocol.EventNewMessage, protocol.EventMessageSent:
		msg, err := model.DecodeMessage(env.Data)
		if err != nil {
			c.drop(env, err)
			return
		}
		c.emitMessage(msg)

	case protocol.EventTyping:
		var t model.TypingEvent
		if err := json.Unmarshal(env.Data, &t); err != nil {
			c.drop(env, err)
			return
		}
		if t.Kind == "" {
			t.Kind = model.KindDirect
		}
		c.emitTyping(t)

	case protocol.EventUserOnline, protocol.EventUserOffline:
		var p protocol.Presence
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.drop(env, err)
			return
		}
		c.emitPresence(model.PresenceEvent{UserID: p.UserID, Online: env.Event == protocol.EventUserOnline})

	case protocol.EventJoinedProject:
		var j protocol.JoinedProject
		if err := json.Unmarshal(env.Data, &j); err != nil {
			c.drop(env, err)
			return
		}
		c.emitJoinedProject(j.ProjectID)

	case protocol.EventOnlineUsers:
		var o protocol.OnlineUsers
		if err := json.Unmarshal(env.Data, &o); err != nil {
			c.drop(env, err)
			return
		}
		c.emitOnlineUsers(o.UserIDs)

	case protocol.EventError, protocol.EventMessageError:
		var p protocol.ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			// some server paths emit the bare message string
			_ = json.Unmarshal(env.Data, &p.Message)
		}
		c.log.Warn("server reported error", zap.String("event", env.Event), zap.String("message", p.Message))
		c.emitError(&ServerError{Event: env.Event, Message: p.Message})

	default:
		c.log.Debug("ignoring unknown event", zap.String("event", env.Event))
	}
}

func (c *Conn) drop(env protocol.Envelope, err error) {
	metrics.EventsDropped.Inc()
	c.log.Warn("dropping malformed event", zap.String("event", env.Event), zap.Error(err))
}

func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
