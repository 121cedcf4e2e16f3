package api

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/model"
	"github.com/mahaj/taskchat/pkg/protocol"
)

// ChatService reads conversation and message history over REST. It works
// whether or not a realtime connection is up.
type ChatService struct {
	c *Client
}

type ReadResult struct {
	MarkedCount int `json:"markedCount"`
}

func (s *ChatService) GetConversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	if err := s.c.do(ctx, http.MethodGet, "/chat/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// GetDirectMessageHistory returns one page of the thread with userID in the
// order the backend sends it (newest first).
func (s *ChatService) GetDirectMessageHistory(ctx context.Context, userID string, page, limit int) ([]model.Message, error) {
	return s.history(ctx, "/chat/direct/"+seg(userID), page, limit)
}

func (s *ChatService) GetProjectMessageHistory(ctx context.Context, projectID string, page, limit int) ([]model.Message, error) {
	return s.history(ctx, "/chat/project/"+seg(projectID), page, limit)
}

func (s *ChatService) history(ctx context.Context, path string, page, limit int) ([]model.Message, error) {
	var raws []model.RawMessage
	if err := s.c.do(ctx, http.MethodGet, path, pageQuery(page, limit), nil, &raws); err != nil {
		return nil, err
	}
	return model.NormalizeAll(raws), nil
}

// MarkMessagesAsRead never fails: errors are logged and reported as zero
// messages marked.
func (s *ChatService) MarkMessagesAsRead(ctx context.Context, userID string) ReadResult {
	var out ReadResult
	if err := s.c.do(ctx, http.MethodPost, "/chat/direct/"+seg(userID)+"/read", nil, nil, &out); err != nil {
		s.c.log.Warn("mark as read failed", zap.String("user_id", userID), zap.Error(err))
		return ReadResult{}
	}
	return out
}

// SendMessage posts a message over REST, for use when the realtime
// connection is down.
func (s *ChatService) SendMessage(ctx context.Context, route model.Route, content string) (model.Message, error) {
	if strings.TrimSpace(content) == "" {
		return model.Message{}, apierr.Validation(apierr.CodeContentEmpty)
	}
	var raw model.RawMessage
	if err := s.c.do(ctx, http.MethodPost, "/chat/messages", nil, protocol.NewSendMessage(route, content), &raw); err != nil {
		return model.Message{}, err
	}
	msg := model.Normalize(raw)
	if raw.Type == "" && raw.RecipientID == "" && raw.ProjectID == "" {
		msg.Route = route
	}
	return msg, nil
}

func (s *ChatService) GetUnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/chat/unread-count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
