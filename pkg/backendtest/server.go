// Package backendtest runs an in-process stand-in for the chat backend: the
// REST endpoints the client calls and the realtime "chat" namespace. It is
// meant for tests, in the spirit of net/http/httptest.
package backendtest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/mahaj/taskchat/pkg/auth"
	"github.com/mahaj/taskchat/pkg/model"
	"github.com/mahaj/taskchat/pkg/protocol"
	"github.com/mahaj/taskchat/pkg/snowflake"
)

type contextKey string

const userKey contextKey = "user"

type User struct {
	ID        string
	Nombre    string
	Apellidos string
	Email     string
	Password  string
}

// Request is one REST call as the server saw it.
type Request struct {
	Method        string
	Path          string
	Query         string
	Body          []byte
	Authorization string
}

// Command is one realtime command as the server saw it.
type Command struct {
	UserID string
	Event  string
	Data   json.RawMessage
}

type failure struct {
	status int
	body   string
}

type Server struct {
	*httptest.Server
	Signer auth.Signer

	router *mux.Router
	api    *mux.Router
	hub    *hub
	store  *store

	mu       sync.Mutex
	users    map[string]User
	failures map[string]failure
	requests []Request
	commands []Command
}

func New() *Server {
	ids, _ := snowflake.NewNode(1)
	s := &Server{
		Signer:   auth.Signer{Key: []byte("backendtest-secret")},
		router:   mux.NewRouter(),
		users:    make(map[string]User),
		failures: make(map[string]failure),
	}
	s.store = newStore(ids)
	s.hub = newHub(s)
	go s.hub.run()

	s.router.HandleFunc("/"+protocol.DefaultNamespace, s.hub.serveWs)
	s.router.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)

	s.api = s.router.NewRoute().Subrouter()
	s.api.Use(s.authenticate)
	s.api.HandleFunc("/chat/conversations", s.conversations).Methods(http.MethodGet)
	s.api.HandleFunc("/chat/unread-count", s.unreadCount).Methods(http.MethodGet)
	s.api.HandleFunc("/chat/direct/{userId}", s.directHistory).Methods(http.MethodGet)
	s.api.HandleFunc("/chat/project/{projectId}", s.projectHistory).Methods(http.MethodGet)
	s.api.HandleFunc("/chat/direct/{userId}/read", s.markRead).Methods(http.MethodPost)
	s.api.HandleFunc("/chat/messages", s.sendMessage).Methods(http.MethodPost)

	// record wraps the whole router so Fail also covers paths with no route.
	s.Server = httptest.NewServer(s.record(s.router))
	return s
}

// WSURL is the websocket base URL, without the namespace.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *Server) Close() {
	s.hub.close()
	s.Server.Close()
}

func (s *Server) AddUser(u User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

func (s *Server) userSummary(id string) model.UserSummary {
	s.mu.Lock()
	u, ok := s.users[id]
	s.mu.Unlock()
	if !ok {
		return model.UserSummary{ID: model.ID(id)}
	}
	return model.UserSummary{ID: model.ID(u.ID), Nombre: u.Nombre, Apellidos: u.Apellidos, Email: u.Email}
}

// Token mints a valid access token for userID.
func (s *Server) Token(userID string) string {
	tok, err := s.Signer.Generate(userID, time.Hour)
	if err != nil {
		panic(err)
	}
	return tok
}

// Seed stores a message as if it had been sent earlier.
func (s *Server) Seed(m model.Message) model.Message {
	return s.store.put(m)
}

// Handle registers an authenticated REST handler. Tests use it for the
// resource endpoints the fake does not implement itself.
func (s *Server) Handle(method, path string, h http.HandlerFunc) {
	s.api.HandleFunc(path, h).Methods(method)
}

// Fail makes every request to method+path answer status with body.
func (s *Server) Fail(method, path string, status int, body string) {
	s.mu.Lock()
	s.failures[method+" "+path] = failure{status: status, body: body}
	s.mu.Unlock()
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

func (s *Server) recordCommand(userID string, env protocol.Envelope) {
	s.mu.Lock()
	s.commands = append(s.commands, Command{UserID: userID, Event: env.Event, Data: env.Data})
	s.mu.Unlock()
}

// Push sends event to every live connection of userID.
func (s *Server) Push(userID, event string, data any) {
	s.hub.sendRaw(userID, event, data)
}

// PushRaw sends an arbitrary frame, for malformed-input tests.
func (s *Server) PushRaw(userID string, frame []byte) {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	for c := range s.hub.users[userID] {
		select {
		case c.send <- frame:
		default:
		}
	}
}

// Kick closes userID's connections from the server side.
func (s *Server) Kick(userID string) {
	s.hub.kick(userID)
}

// Connections counts userID's registered websocket connections.
func (s *Server) Connections(userID string) int {
	return s.hub.connections(userID)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Body:          body,
			Authorization: r.Header.Get("Authorization"),
		})
		f, failing := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()

		if failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			io.WriteString(w, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := auth.BearerToken(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := s.Signer.Validate(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userKey, claims.Subject())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the authenticated user of a request passed through Handle.
func UserID(r *http.Request) string {
	id, _ := r.Context().Value(userKey).(string)
	return id
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-body")
		return
	}

	s.mu.Lock()
	var found *User
	for _, u := range s.users {
		if strings.EqualFold(u.Email, req.Email) && u.Password == req.Password {
			u := u
			found = &u
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		writeError(w, http.StatusUnauthorized, "invalid-credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": s.Token(found.ID),
		"user":         s.userSummary(found.ID),
	})
}

func (s *Server) conversations(w http.ResponseWriter, r *http.Request) {
	me := UserID(r)
	s.hub.mu.RLock()
	projects := make(map[string]bool)
	for pid, members := range s.hub.rooms {
		if members[me] {
			projects[pid] = true
		}
	}
	s.hub.mu.RUnlock()
	writeJSON(w, http.StatusOK, s.store.conversations(me, projects, s.userSummary))
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": s.store.unread(UserID(r))})
}

func (s *Server) directHistory(w http.ResponseWriter, r *http.Request) {
	other := mux.Vars(r)["userId"]
	s.writePage(w, r, s.store.direct(UserID(r), other))
}

func (s *Server) projectHistory(w http.ResponseWriter, r *http.Request) {
	s.writePage(w, r, s.store.project(mux.Vars(r)["projectId"]))
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, all []model.Message) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	out := make([]restMessage, 0, end-start)
	for _, m := range all[start:end] {
		out = append(out, s.restShape(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	n := s.store.markRead(UserID(r), mux.Vars(r)["userId"])
	writeJSON(w, http.StatusOK, map[string]int{"markedCount": n})
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req protocol.SendMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid-body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content-empty")
		return
	}
	me := UserID(r)
	route := req.Route()
	msg := s.store.add(me, route, req.Content)
	for _, uid := range s.hub.audience(route, me) {
		s.hub.toUser(uid, protocol.EventNewMessage, s.pushShape(msg))
	}
	writeJSON(w, http.StatusCreated, s.restShape(msg))
}

type pushMessage struct {
	ID          model.ID        `json:"id"`
	Content     string          `json:"content"`
	SenderID    model.ID        `json:"senderId"`
	SenderName  string          `json:"senderName"`
	CreatedAt   string          `json:"createdAt"`
	Type        model.RouteKind `json:"type"`
	RecipientID string          `json:"recipientId,omitempty"`
	ProjectID   string          `json:"projectId,omitempty"`
}

type restSender struct {
	ID        model.ID `json:"id"`
	Nombre    string   `json:"nombre"`
	Apellidos string   `json:"apellidos"`
}

type restMessage struct {
	ID          model.ID        `json:"id"`
	Content     string          `json:"content"`
	Sender      restSender      `json:"sender"`
	CreatedAt   string          `json:"createdAt"`
	Type        model.RouteKind `json:"type"`
	RecipientID string          `json:"recipientId,omitempty"`
	ProjectID   string          `json:"projectId,omitempty"`
	IsRead      bool            `json:"isRead"`
	IsEdited    bool            `json:"isEdited"`
}

// pushShape renders m the way socket events carry it: flat sender fields,
// no read flags.
func (s *Server) pushShape(m model.Message) pushMessage {
	u := s.userSummary(m.SenderID.String())
	p := pushMessage{
		ID:         m.ID,
		Content:    m.Content,
		SenderID:   m.SenderID,
		SenderName: u.DisplayName(),
		CreatedAt:  m.CreatedAt,
		Type:       m.Route.Kind(),
	}
	if pid, ok := m.Route.ProjectID(); ok {
		p.ProjectID = pid
	} else {
		p.RecipientID = m.Route.ID()
	}
	return p
}

// restShape renders m the way history endpoints return it: nested sender.
func (s *Server) restShape(m model.Message) restMessage {
	u := s.userSummary(m.SenderID.String())
	out := restMessage{
		ID:        m.ID,
		Content:   m.Content,
		Sender:    restSender{ID: m.SenderID, Nombre: u.Nombre, Apellidos: u.Apellidos},
		CreatedAt: m.CreatedAt,
		Type:      m.Route.Kind(),
		IsRead:    m.IsRead,
		IsEdited:  m.IsEdited,
	}
	if pid, ok := m.Route.ProjectID(); ok {
		out.ProjectID = pid
	} else {
		out.RecipientID = m.Route.ID()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"message": code, "statusCode": status})
}

// WriteJSON and WriteError are exported for handlers registered via Handle.
func WriteJSON(w http.ResponseWriter, status int, v any) { writeJSON(w, status, v) }

func WriteError(w http.ResponseWriter, status int, code string) { writeError(w, status, code) }
