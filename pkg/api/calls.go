package api

import (
	"context"
	"net/http"

	"github.com/mahaj/taskchat/pkg/model"
)

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

type Call struct {
	ID          model.ID        `json:"id"`
	Kind        CallKind        `json:"callType"`
	Type        model.RouteKind `json:"type"`
	RecipientID model.ID        `json:"recipientId,omitempty"`
	ProjectID   model.ID        `json:"projectId,omitempty"`
	Status      string          `json:"status"`
	RoomURL     string          `json:"roomUrl,omitempty"`
	StartedAt   string          `json:"startedAt"`
}

type CallService struct {
	c *Client
}

func (s *CallService) Start(ctx context.Context, route model.Route, kind CallKind) (*Call, error) {
	if kind == "" {
		kind = CallAudio
	}
	in := map[string]string{"type": string(route.Kind()), "callType": string(kind)}
	if pid, ok := route.ProjectID(); ok {
		in["projectId"] = pid
	} else {
		in["recipientId"] = route.ID()
	}
	var out Call
	if err := s.c.do(ctx, http.MethodPost, "/calls", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *CallService) End(ctx context.Context, callID string) error {
	return s.c.do(ctx, http.MethodPost, "/calls/"+seg(callID)+"/end", nil, nil, nil)
}

// Active lists calls the user can still join.
func (s *CallService) Active(ctx context.Context) ([]Call, error) {
	var out []Call
	if err := s.c.do(ctx, http.MethodGet, "/calls/active", nil, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}
