// Package protocol defines the frames exchanged on the realtime chat
// namespace. Every frame is one JSON envelope per websocket text message.
package protocol

import (
	"encoding/json"

	"github.com/mahaj/taskchat/pkg/model"
)

const DefaultNamespace = "chat"

// Server -> client events.
const (
	EventNewMessage    = "newMessage"
	EventMessageSent   = "messageSent"
	EventTyping        = "typing"
	EventUserOnline    = "userOnline"
	EventUserOffline   = "userOffline"
	EventJoinedProject = "joinedProject"
	EventError         = "error"
	EventMessageError  = "messageError"
	EventOnlineUsers   = "onlineUsers"
)

// Client -> server commands.
const (
	CmdSendMessage    = "sendMessage"
	CmdJoinProject    = "joinProject"
	CmdTyping         = "typing"
	CmdGetOnlineUsers = "getOnlineUsers"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func Encode(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = b
	}
	return json.Marshal(env)
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(b, &env)
	return env, err
}

type SendMessage struct {
	Content     string          `json:"content"`
	Type        model.RouteKind `json:"type"`
	RecipientID string          `json:"recipientId,omitempty"`
	ProjectID   string          `json:"projectId,omitempty"`
}

func NewSendMessage(route model.Route, content string) SendMessage {
	p := SendMessage{Content: content, Type: route.Kind()}
	if id, ok := route.ProjectID(); ok {
		p.ProjectID = id
	} else {
		p.RecipientID = route.ID()
	}
	return p
}

// Route rebuilds the target of a send command.
func (s SendMessage) Route() model.Route {
	if s.Type == model.KindProject {
		return model.Project(s.ProjectID)
	}
	return model.Direct(s.RecipientID)
}

type JoinProject struct {
	ProjectID string `json:"projectId"`
}

type Typing struct {
	Type        model.RouteKind `json:"type"`
	RecipientID string          `json:"recipientId,omitempty"`
	ProjectID   string          `json:"projectId,omitempty"`
	Typing      bool            `json:"typing"`
}

func NewTyping(route model.Route, typing bool) Typing {
	p := Typing{Type: route.Kind(), Typing: typing}
	if id, ok := route.ProjectID(); ok {
		p.ProjectID = id
	} else {
		p.RecipientID = route.ID()
	}
	return p
}

type Presence struct {
	UserID model.ID `json:"userId"`
}

type JoinedProject struct {
	ProjectID model.ID `json:"projectId"`
}

type OnlineUsers struct {
	UserIDs []model.ID `json:"userIds"`
}

// ErrorPayload is sent with both "error" and "messageError".
type ErrorPayload struct {
	Message string `json:"message"`
}
