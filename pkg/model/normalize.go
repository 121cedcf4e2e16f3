package model

import (
	"encoding/json"
	"strings"
)

// RawSender is the nested author object of REST history rows.
type RawSender struct {
	ID        ID     `json:"id"`
	Nombre    string `json:"nombre"`
	Apellidos string `json:"apellidos"`
}

// RawMessage is the loose wire record. Socket pushes carry flat senderId and
// senderName; REST history carries a nested sender object instead.
type RawMessage struct {
	ID          ID         `json:"id"`
	Content     string     `json:"content"`
	SenderID    ID         `json:"senderId"`
	SenderName  string     `json:"senderName"`
	Sender      *RawSender `json:"sender"`
	CreatedAt   string     `json:"createdAt"`
	Type        RouteKind  `json:"type"`
	RecipientID ID         `json:"recipientId"`
	ProjectID   ID         `json:"projectId"`
	IsRead      *bool      `json:"isRead"`
	IsEdited    *bool      `json:"isEdited"`
}

// Normalize maps either wire shape to a Message. It never fails.
func Normalize(raw RawMessage) Message {
	m := Message{
		ID:         raw.ID,
		Content:    raw.Content,
		SenderID:   raw.SenderID,
		SenderName: raw.SenderName,
		CreatedAt:  raw.CreatedAt,
		IsRead:     raw.IsRead != nil && *raw.IsRead,
		IsEdited:   raw.IsEdited != nil && *raw.IsEdited,
	}
	if raw.Sender != nil {
		if m.SenderID == "" {
			m.SenderID = raw.Sender.ID
		}
		if m.SenderName == "" {
			m.SenderName = joinName(raw.Sender.Nombre, raw.Sender.Apellidos)
		}
	}

	switch {
	case raw.Type == KindProject:
		m.Route = Project(raw.ProjectID.String())
	case raw.Type == "" && raw.ProjectID != "" && raw.RecipientID == "":
		m.Route = Project(raw.ProjectID.String())
	default:
		m.Route = Direct(raw.RecipientID.String())
	}
	return m
}

// NormalizeAll keeps the input order. The result is never nil.
func NormalizeAll(raws []RawMessage) []Message {
	out := make([]Message, 0, len(raws))
	for _, r := range raws {
		out = append(out, Normalize(r))
	}
	return out
}

func DecodeMessage(b []byte) (Message, error) {
	var raw RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return Message{}, err
	}
	return Normalize(raw), nil
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
