package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/backendtest"
	"github.com/mahaj/taskchat/pkg/credential"
	"github.com/mahaj/taskchat/pkg/model"
)

func newBackend(t *testing.T) *backendtest.Server {
	t.Helper()
	srv := backendtest.New()
	srv.AddUser(backendtest.User{ID: "u-1", Nombre: "Ana", Apellidos: "García", Email: "ana@example.com", Password: "pw"})
	srv.AddUser(backendtest.User{ID: "u-42", Nombre: "Luis", Apellidos: "Pérez", Email: "luis@example.com", Password: "pw"})
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *backendtest.Server, userID string) *Client {
	token := ""
	if userID != "" {
		token = srv.Token(userID)
	}
	return NewClient(Options{BaseURL: srv.URL, Timeout: 2 * time.Second}, credential.NewMemoryStore(token))
}

func TestLoginStoresToken(t *testing.T) {
	srv := newBackend(t)
	tokens := credential.NewMemoryStore("")
	c := NewClient(Options{BaseURL: srv.URL}, tokens)

	res, err := c.Login(context.Background(), "ana@example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.User.DisplayName() != "Ana García" {
		t.Errorf("user = %q", res.User.DisplayName())
	}
	got, err := tokens.Token(context.Background())
	if err != nil || got != res.AccessToken {
		t.Fatalf("token not cached: %q %v", got, err)
	}

	if _, err := c.Chat.GetConversations(context.Background()); err != nil {
		t.Fatalf("authenticated call after login: %v", err)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := newBackend(t)
	c := newClient(srv, "")

	_, err := c.Login(context.Background(), "ana@example.com", "wrong")
	if !errors.Is(err, apierr.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	var e *apierr.Error
	if !errors.As(err, &e) || !e.HasCode(apierr.CodeInvalidCredentials) {
		t.Fatalf("expected invalid-credentials code, got %#v", err)
	}
}

func TestLoginValidatesLocally(t *testing.T) {
	srv := newBackend(t)
	c := newClient(srv, "")

	_, err := c.Login(context.Background(), "not-an-email", "")
	var e *apierr.Error
	if !errors.As(err, &e) || e.Kind != apierr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !e.HasCode(apierr.CodeInvalidEmail) || !e.HasCode(apierr.CodeInvalidCredentials) {
		t.Errorf("codes = %v", e.Codes)
	}
	if n := len(srv.Requests()); n != 0 {
		t.Errorf("%d requests reached the backend", n)
	}
}

func TestCallWithoutTokenFailsBeforeNetwork(t *testing.T) {
	srv := newBackend(t)
	c := newClient(srv, "")

	_, err := c.Chat.GetDirectMessageHistory(context.Background(), "u-42", 1, 50)
	if !errors.Is(err, apierr.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if n := len(srv.Requests()); n != 0 {
		t.Errorf("%d requests reached the backend", n)
	}
}

func TestExpiredTokenRejectedLocally(t *testing.T) {
	srv := newBackend(t)
	expired, err := srv.Signer.Generate("u-1", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient(Options{BaseURL: srv.URL}, credential.NewMemoryStore(expired))

	_, err = c.Chat.GetUnreadCount(context.Background())
	if !errors.Is(err, apierr.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestBearerHeaderAndRequestID(t *testing.T) {
	srv := newBackend(t)
	c := newClient(srv, "u-1")

	var requestID string
	srv.Handle(http.MethodGet, "/users/search", func(w http.ResponseWriter, r *http.Request) {
		requestID = r.Header.Get("X-Request-ID")
		backendtest.WriteJSON(w, http.StatusOK, []model.UserSummary{})
	})
	if _, err := c.Users.Search(context.Background(), "lu"); err != nil {
		t.Fatal(err)
	}
	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d", len(reqs))
	}
	if reqs[0].Authorization != "Bearer "+srv.Token("u-1") {
		t.Errorf("authorization = %q", reqs[0].Authorization)
	}
	if requestID == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestTimeout(t *testing.T) {
	srv := newBackend(t)
	srv.Handle(http.MethodGet, "/calls/active", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c := NewClient(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, credential.NewMemoryStore(srv.Token("u-1")))

	_, err := c.Calls.Active(context.Background())
	if !errors.Is(err, apierr.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestNetworkError(t *testing.T) {
	srv := newBackend(t)
	url := srv.URL
	token := srv.Token("u-1")
	srv.Close()

	c := NewClient(Options{BaseURL: url}, credential.NewMemoryStore(token))
	_, err := c.Chat.GetConversations(context.Background())
	if !errors.Is(err, apierr.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestStatusTranslation(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
		code   apierr.Code
	}{
		{http.StatusForbidden, `{"message":"not-project-member","statusCode":403}`, apierr.ErrPermission, apierr.CodeNotProjectMember},
		{http.StatusNotFound, `{"message":"user-not-found","statusCode":404}`, apierr.ErrNotFound, apierr.CodeUserNotFound},
		{http.StatusConflict, `{"message":["section-name-taken"],"statusCode":409}`, apierr.ErrConflict, apierr.CodeSectionNameTaken},
		{http.StatusInternalServerError, `oops`, apierr.ErrServer, ""},
	}
	for _, tc := range cases {
		srv := newBackend(t)
		srv.Fail(http.MethodGet, "/chat/unread-count", tc.status, tc.body)
		c := newClient(srv, "u-1")

		_, err := c.Chat.GetUnreadCount(context.Background())
		if !errors.Is(err, tc.want) {
			t.Errorf("%d: got %v, want %v", tc.status, err, tc.want)
			continue
		}
		var e *apierr.Error
		errors.As(err, &e)
		if e.Status != tc.status {
			t.Errorf("%d: status = %d", tc.status, e.Status)
		}
		if tc.code != "" && !e.HasCode(tc.code) {
			t.Errorf("%d: codes = %v", tc.status, e.Codes)
		}
	}
}

func TestMalformedBodyIsServerError(t *testing.T) {
	srv := newBackend(t)
	srv.Handle(http.MethodGet, "/invitations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"not":"a list"`))
	})
	c := newClient(srv, "u-1")

	_, err := c.Invitations.Pending(context.Background())
	if !errors.Is(err, apierr.ErrServer) {
		t.Fatalf("expected server error, got %v", err)
	}
}

func decodeBody(t *testing.T, r backendtest.Request) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(r.Body, &m); err != nil {
		t.Fatalf("request body %q: %v", r.Body, err)
	}
	return m
}

func lastRequest(t *testing.T, srv *backendtest.Server) backendtest.Request {
	t.Helper()
	reqs := srv.Requests()
	if len(reqs) == 0 {
		t.Fatal("no request recorded")
	}
	return reqs[len(reqs)-1]
}

