package backendtest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/taskchat/pkg/auth"
	"github.com/mahaj/taskchat/pkg/model"
	"github.com/mahaj/taskchat/pkg/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is a middleman between one websocket connection and the hub.
type client struct {
	hub  *hub
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	userID string
}

type inbound struct {
	from *client
	env  protocol.Envelope
}

type hub struct {
	srv *Server

	mu    sync.RWMutex
	users map[string]map[*client]bool // user id -> live connections
	rooms map[string]map[string]bool  // project id -> member user ids

	register   chan *client
	unregister chan *client
	commands   chan inbound
	done       chan struct{}
	closeOnce  sync.Once
}

func newHub(srv *Server) *hub {
	return &hub{
		srv:        srv,
		users:      make(map[string]map[*client]bool),
		rooms:      make(map[string]map[string]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		commands:   make(chan inbound, 64),
		done:       make(chan struct{}),
	}
}

func (h *hub) run() {
	for {
		select {
		case <-h.done:
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.users[c.userID] == nil {
				h.users[c.userID] = make(map[*client]bool)
			}
			first := len(h.users[c.userID]) == 0
			h.users[c.userID][c] = true
			h.mu.Unlock()
			if first {
				h.broadcastExcept(c.userID, protocol.EventUserOnline, protocol.Presence{UserID: model.ID(c.userID)})
			}

		case c := <-h.unregister:
			h.mu.Lock()
			last := false
			if conns, ok := h.users[c.userID]; ok && conns[c] {
				delete(conns, c)
				close(c.send)
				if len(conns) == 0 {
					delete(h.users, c.userID)
					last = true
				}
			}
			h.mu.Unlock()
			if last {
				h.broadcastExcept(c.userID, protocol.EventUserOffline, protocol.Presence{UserID: model.ID(c.userID)})
			}

		case in := <-h.commands:
			h.srv.recordCommand(in.from.userID, in.env)
			h.handle(in.from, in.env)
		}
	}
}

func (h *hub) close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for _, conns := range h.users {
			for c := range conns {
				c.conn.Close()
			}
		}
		h.mu.Unlock()
	})
}

func (h *hub) handle(from *client, env protocol.Envelope) {
	switch env.Event {
	case protocol.CmdSendMessage:
		var p protocol.SendMessage
		if err := json.Unmarshal(env.Data, &p); err != nil || strings.TrimSpace(p.Content) == "" {
			h.toClient(from, protocol.EventMessageError, protocol.ErrorPayload{Message: "content-empty"})
			return
		}
		route := p.Route()
		if pid, ok := route.ProjectID(); ok && !h.isMember(pid, from.userID) {
			h.toClient(from, protocol.EventMessageError, protocol.ErrorPayload{Message: "not-project-member"})
			return
		}
		msg := h.srv.store.add(from.userID, route, p.Content)
		push := h.srv.pushShape(msg)
		h.toClient(from, protocol.EventMessageSent, push)
		for _, uid := range h.audience(route, from.userID) {
			h.toUser(uid, protocol.EventNewMessage, push)
		}

	case protocol.CmdJoinProject:
		var p protocol.JoinProject
		if err := json.Unmarshal(env.Data, &p); err != nil || p.ProjectID == "" {
			h.toClient(from, protocol.EventError, protocol.ErrorPayload{Message: "project-not-found"})
			return
		}
		h.join(p.ProjectID, from.userID)
		h.toClient(from, protocol.EventJoinedProject, protocol.JoinedProject{ProjectID: model.ID(p.ProjectID)})

	case protocol.CmdTyping:
		var p protocol.Typing
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		var route model.Route
		if p.Type == model.KindProject {
			route = model.Project(p.ProjectID)
		} else {
			route = model.Direct(p.RecipientID)
		}
		ev := model.TypingEvent{
			UserID:    model.ID(from.userID),
			Typing:    p.Typing,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Kind:      route.Kind(),
		}
		for _, uid := range h.audience(route, from.userID) {
			h.toUser(uid, protocol.EventTyping, ev)
		}

	case protocol.CmdGetOnlineUsers:
		h.toClient(from, protocol.EventOnlineUsers, protocol.OnlineUsers{UserIDs: h.online()})

	default:
		h.toClient(from, protocol.EventError, protocol.ErrorPayload{Message: "unknown-command"})
	}
}

// audience lists the users that should see traffic on route, sender excluded.
func (h *hub) audience(route model.Route, sender string) []string {
	if pid, ok := route.ProjectID(); ok {
		h.mu.RLock()
		defer h.mu.RUnlock()
		var out []string
		for uid := range h.rooms[pid] {
			if uid != sender {
				out = append(out, uid)
			}
		}
		return out
	}
	if route.ID() == "" || route.ID() == sender {
		return nil
	}
	return []string{route.ID()}
}

func (h *hub) join(projectID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[projectID] == nil {
		h.rooms[projectID] = make(map[string]bool)
	}
	h.rooms[projectID][userID] = true
}

func (h *hub) isMember(projectID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[projectID][userID]
}

func (h *hub) online() []model.ID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.ID, 0, len(h.users))
	for uid := range h.users {
		out = append(out, model.ID(uid))
	}
	return out
}

func (h *hub) connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func (h *hub) toClient(c *client, event string, data any) {
	b, err := protocol.Encode(event, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.users[c.userID][c] {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (h *hub) toUser(userID, event string, data any) {
	h.sendRaw(userID, event, data)
}

func (h *hub) sendRaw(userID, event string, data any) {
	b, err := protocol.Encode(event, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		select {
		case c.send <- b:
		default:
		}
	}
}

func (h *hub) broadcastExcept(userID, event string, data any) {
	h.mu.RLock()
	others := make([]string, 0, len(h.users))
	for uid := range h.users {
		if uid != userID {
			others = append(others, uid)
		}
	}
	h.mu.RUnlock()
	for _, uid := range others {
		h.sendRaw(uid, event, data)
	}
}

// kick closes every connection of userID from the server side.
func (h *hub) kick(userID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "kicked"),
			time.Now().Add(writeWait))
		c.conn.Close()
	}
}

// readPump pumps commands from the websocket connection to the hub.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(bytes.TrimSpace(message))
		if err != nil || env.Event == "" {
			continue
		}
		select {
		case c.hub.commands <- inbound{from: c, env: env}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued frames to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.hub.done:
			return
		}
	}
}

// serveWs authenticates the handshake and hands the connection to the hub.
func (h *hub) serveWs(w http.ResponseWriter, r *http.Request) {
	tokenString := auth.BearerToken(r.Header.Get("Authorization"))
	if tokenString == "" {
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	claims, err := h.srv.Signer.Validate(tokenString)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 256), userID: claims.Subject()}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
