package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/mahaj/taskchat/pkg/model"
)

func TestDirectHistoryNormalized(t *testing.T) {
	srv := newBackend(t)
	srv.Seed(model.Message{ID: "1", SenderID: "u-42", Route: model.Direct("u-1"), Content: "hola", CreatedAt: "2024-05-01T10:00:00.000Z"})
	srv.Seed(model.Message{ID: "2", SenderID: "u-1", Route: model.Direct("u-42"), Content: "qué tal", CreatedAt: "2024-05-01T10:01:00.000Z"})
	srv.Seed(model.Message{ID: "3", SenderID: "u-1", Route: model.Direct("u-7"), Content: "other thread"})
	c := newClient(srv, "u-1")

	msgs, err := c.Chat.GetDirectMessageHistory(context.Background(), "u-42", 1, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].ID != "2" || msgs[1].ID != "1" {
		t.Errorf("order = %s, %s", msgs[0].ID, msgs[1].ID)
	}
	if msgs[1].SenderName != "Luis Pérez" || msgs[1].SenderID != "u-42" {
		t.Errorf("sender = %q %q", msgs[1].SenderID, msgs[1].SenderName)
	}
	if rid, ok := msgs[1].Route.RecipientID(); !ok || rid != "u-1" {
		t.Errorf("route = %s", msgs[1].Route)
	}

	req := lastRequest(t, srv)
	if req.Path != "/chat/direct/u-42" || req.Query != "limit=50&page=1" {
		t.Errorf("request = %s?%s", req.Path, req.Query)
	}
}

func TestHistoryPaging(t *testing.T) {
	srv := newBackend(t)
	for _, id := range []model.ID{"1", "2", "3"} {
		srv.Seed(model.Message{ID: id, SenderID: "u-1", Route: model.Project("p-9"), Content: "m" + id.String()})
	}
	c := newClient(srv, "u-1")

	msgs, err := c.Chat.GetProjectMessageHistory(context.Background(), "p-9", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != "1" {
		t.Fatalf("page 2 = %+v", msgs)
	}
	if pid, ok := msgs[0].Route.ProjectID(); !ok || pid != "p-9" {
		t.Errorf("route = %s", msgs[0].Route)
	}
}

func TestEmptyHistoryIsEmptySlice(t *testing.T) {
	srv := newBackend(t)
	c := newClient(srv, "u-1")

	msgs, err := c.Chat.GetDirectMessageHistory(context.Background(), "u-42", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", msgs)
	}
}

func TestMarkAsRead(t *testing.T) {
	srv := newBackend(t)
	srv.Seed(model.Message{SenderID: "u-42", Route: model.Direct("u-1"), Content: "a"})
	srv.Seed(model.Message{SenderID: "u-42", Route: model.Direct("u-1"), Content: "b"})
	c := newClient(srv, "u-1")

	if n, _ := c.Chat.GetUnreadCount(context.Background()); n != 2 {
		t.Fatalf("unread = %d", n)
	}
	if got := c.Chat.MarkMessagesAsRead(context.Background(), "u-42"); got.MarkedCount != 2 {
		t.Fatalf("marked = %d", got.MarkedCount)
	}
	if n, _ := c.Chat.GetUnreadCount(context.Background()); n != 0 {
		t.Fatalf("unread after mark = %d", n)
	}
}

func TestMarkAsReadSwallowsErrors(t *testing.T) {
	srv := newBackend(t)
	srv.Fail(http.MethodPost, "/chat/direct/u-42/read", http.StatusInternalServerError, `{"message":"boom","statusCode":500}`)
	c := newClient(srv, "u-1")

	if got := c.Chat.MarkMessagesAsRead(context.Background(), "u-42"); got.MarkedCount != 0 {
		t.Fatalf("marked = %d", got.MarkedCount)
	}

	anon := newClient(srv, "")
	if got := anon.Chat.MarkMessagesAsRead(context.Background(), "u-42"); got.MarkedCount != 0 {
		t.Fatalf("marked without token = %d", got.MarkedCount)
	}
}

func TestConversations(t *testing.T) {
	srv := newBackend(t)
	srv.Seed(model.Message{SenderID: "u-42", Route: model.Direct("u-1"), Content: "first", CreatedAt: "2024-05-01T10:00:00.000Z"})
	srv.Seed(model.Message{SenderID: "u-1", Route: model.Direct("u-42"), Content: "reply", CreatedAt: "2024-05-01T10:05:00.000Z"})
	c := newClient(srv, "u-1")

	convs, err := c.Chat.GetConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 1 {
		t.Fatalf("got %d conversations", len(convs))
	}
	conv := convs[0]
	if rid, ok := conv.Route().RecipientID(); !ok || rid != "u-42" {
		t.Errorf("route = %s", conv.Route())
	}
	if conv.LastMessage == nil || conv.LastMessage.Content != "reply" {
		t.Errorf("last message = %+v", conv.LastMessage)
	}
	if conv.UnreadCount != 1 {
		t.Errorf("unread = %d", conv.UnreadCount)
	}
}

func TestSendMessageOverREST(t *testing.T) {
	srv := newBackend(t)
	c := newClient(srv, "u-1")

	msg, err := c.Chat.SendMessage(context.Background(), model.Project("p-3"), "deploy done")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID == "" || msg.SenderID != "u-1" || msg.SenderName != "Ana García" {
		t.Errorf("message = %+v", msg)
	}
	if pid, ok := msg.Route.ProjectID(); !ok || pid != "p-3" {
		t.Errorf("route = %s", msg.Route)
	}

	body := decodeBody(t, lastRequest(t, srv))
	if body["type"] != "project" || body["projectId"] != "p-3" || body["content"] != "deploy done" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["recipientId"]; ok {
		t.Error("project message carried recipientId")
	}
}

func TestSendEmptyMessageOverREST(t *testing.T) {
	srv := newBackend(t)
	c := newClient(srv, "u-1")

	if _, err := c.Chat.SendMessage(context.Background(), model.Direct("u-42"), "  "); err == nil {
		t.Fatal("expected validation error")
	}
	if n := len(srv.Requests()); n != 0 {
		t.Errorf("%d requests reached the backend", n)
	}
}
