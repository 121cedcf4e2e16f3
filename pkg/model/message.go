package model

import (
	"encoding/json"
	"fmt"
)

type RouteKind string

const (
	KindDirect  RouteKind = "direct"
	KindProject RouteKind = "project"
)

// Route says where a message belongs: a direct thread with one user or a
// project room. Exactly one of the two ids is ever set.
type Route struct {
	kind RouteKind
	id   string
}

func Direct(recipientID string) Route {
	return Route{kind: KindDirect, id: recipientID}
}

func Project(projectID string) Route {
	return Route{kind: KindProject, id: projectID}
}

// Kind defaults to direct for the zero Route.
func (r Route) Kind() RouteKind {
	if r.kind == "" {
		return KindDirect
	}
	return r.kind
}

func (r Route) ID() string { return r.id }

func (r Route) RecipientID() (string, bool) {
	if r.Kind() != KindDirect {
		return "", false
	}
	return r.id, true
}

func (r Route) ProjectID() (string, bool) {
	if r.kind != KindProject {
		return "", false
	}
	return r.id, true
}

func (r Route) String() string {
	return fmt.Sprintf("%s:%s", r.Kind(), r.id)
}

type Message struct {
	ID         ID
	Content    string
	SenderID   ID
	SenderName string
	CreatedAt  string
	Route      Route
	IsRead     bool
	IsEdited   bool
}

type messageJSON struct {
	ID          ID        `json:"id"`
	Content     string    `json:"content"`
	SenderID    ID        `json:"senderId"`
	SenderName  string    `json:"senderName"`
	CreatedAt   string    `json:"createdAt"`
	Type        RouteKind `json:"type"`
	RecipientID ID        `json:"recipientId,omitempty"`
	ProjectID   ID        `json:"projectId,omitempty"`
	IsRead      bool      `json:"isRead"`
	IsEdited    bool      `json:"isEdited"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		ID:         m.ID,
		Content:    m.Content,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		CreatedAt:  m.CreatedAt,
		Type:       m.Route.Kind(),
		IsRead:     m.IsRead,
		IsEdited:   m.IsEdited,
	}
	if id, ok := m.Route.ProjectID(); ok {
		out.ProjectID = ID(id)
	} else {
		out.RecipientID = ID(m.Route.ID())
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts any shape Normalize accepts.
func (m *Message) UnmarshalJSON(b []byte) error {
	var raw RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Normalize(raw)
	return nil
}

type TypingEvent struct {
	UserID    ID        `json:"userId"`
	Typing    bool      `json:"typing"`
	Timestamp string    `json:"timestamp"`
	Kind      RouteKind `json:"type"`
}

type PresenceEvent struct {
	UserID ID   `json:"userId"`
	Online bool `json:"online"`
}

type UserSummary struct {
	ID        ID     `json:"id"`
	Nombre    string `json:"nombre"`
	Apellidos string `json:"apellidos"`
	Email     string `json:"email,omitempty"`
}

func (u UserSummary) DisplayName() string {
	return joinName(u.Nombre, u.Apellidos)
}

type ProjectSummary struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

type LastMessage struct {
	ID        ID     `json:"id"`
	Content   string `json:"content"`
	SenderID  ID     `json:"senderId"`
	CreatedAt string `json:"createdAt"`
	IsRead    bool   `json:"isRead"`
}

// Conversation is a read-only thread summary, refreshed wholesale from REST.
type Conversation struct {
	Kind        RouteKind       `json:"type"`
	Partner     *UserSummary    `json:"user,omitempty"`
	Project     *ProjectSummary `json:"project,omitempty"`
	LastMessage *LastMessage    `json:"lastMessage,omitempty"`
	UnreadCount int64           `json:"unreadCount"`
}

// Route of the thread; the zero Route when the descriptor is missing.
func (c Conversation) Route() Route {
	switch {
	case c.Kind == KindProject && c.Project != nil:
		return Project(c.Project.ID.String())
	case c.Partner != nil:
		return Direct(c.Partner.ID.String())
	}
	return Route{}
}
