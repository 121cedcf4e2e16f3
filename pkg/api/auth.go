package api

import (
	"context"
	"net/http"
	"net/mail"
	"strings"

	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/model"
)

type LoginResult struct {
	AccessToken string            `json:"access_token"`
	User        model.UserSummary `json:"user"`
}

// Login exchanges credentials for an access token and caches it.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var codes []apierr.Code
	if !validEmail(email) {
		codes = append(codes, apierr.CodeInvalidEmail)
	}
	if password == "" {
		codes = append(codes, apierr.CodeInvalidCredentials)
	}
	if len(codes) > 0 {
		return nil, apierr.Validation(codes...)
	}

	in := map[string]string{"email": strings.TrimSpace(email), "password": password}
	var out LoginResult
	if err := c.send(ctx, http.MethodPost, "/auth/login", nil, in, &out, ""); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, apierr.New(apierr.KindServer, nil)
	}
	if err := c.tokens.SetToken(ctx, out.AccessToken); err != nil {
		return nil, apierr.New(apierr.KindServer, err)
	}
	return &out, nil
}

// Logout forgets the cached token. The backend keeps no session to end.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.tokens.Clear(ctx); err != nil {
		return apierr.New(apierr.KindServer, err)
	}
	return nil
}

func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
