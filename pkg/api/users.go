package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/model"
)

type UserService struct {
	c *Client
}

func (s *UserService) Search(ctx context.Context, query string) ([]model.UserSummary, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minQueryLen {
		return nil, apierr.Validation(apierr.CodeQueryTooShort)
	}
	var out []model.UserSummary
	if err := s.c.do(ctx, http.MethodGet, "/users/search", url.Values{"q": {query}}, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}
