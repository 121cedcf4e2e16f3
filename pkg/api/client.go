package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/credential"
	"github.com/mahaj/taskchat/pkg/metrics"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodySize    = 4 << 20
)

type Options struct {
	BaseURL string
	// Timeout bounds every request; expiry surfaces as apierr.ErrTimeout.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the REST side of the backend. Every method reads the
// cached token first and never retries.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  credential.Store
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time

	Chat          *ChatService
	Announcements *AnnouncementService
	Sections      *SectionService
	Meetings      *MeetingService
	Calls         *CallService
	Invitations   *InvitationService
	Users         *UserService
}

func NewClient(opts Options, tokens credential.Store) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    opts.HTTPClient,
		tokens:  tokens,
		timeout: opts.Timeout,
		log:     opts.Logger.With(zap.String("component", "api")),
		now:     time.Now,
	}
	c.Chat = &ChatService{c: c}
	c.Announcements = &AnnouncementService{c: c}
	c.Sections = &SectionService{c: c}
	c.Meetings = &MeetingService{c: c}
	c.Calls = &CallService{c: c}
	c.Invitations = &InvitationService{c: c}
	c.Users = &UserService{c: c}
	return c
}

// do performs an authenticated JSON call. in and out may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	token, err := credential.Require(ctx, c.tokens)
	if err != nil {
		metrics.RequestErrors.WithLabelValues(apierr.KindOf(err).String()).Inc()
		return err
	}
	return c.send(ctx, method, path, query, in, out, token)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, in, out any, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return apierr.New(apierr.KindValidation, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return apierr.New(apierr.KindNetwork, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		return c.fail(method, path, requestID, apierr.FromTransport(err))
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return c.fail(method, path, requestID, apierr.FromTransport(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.fail(method, path, requestID, apierr.FromStatus(resp.StatusCode, b))
	}

	if out != nil && len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, out); err != nil {
			return c.fail(method, path, requestID, apierr.New(apierr.KindServer, fmt.Errorf("decode %s: %w", path, err)))
		}
	}
	return nil
}

func (c *Client) fail(method, path, requestID string, e *apierr.Error) error {
	metrics.RequestErrors.WithLabelValues(e.Kind.String()).Inc()
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Stringer("kind", e.Kind),
	}
	if e.Status != 0 {
		fields = append(fields, zap.Int("status", e.Status))
	}
	if e.Err != nil {
		fields = append(fields, zap.NamedError("cause", e.Err))
	}
	c.log.Warn("request failed", fields...)
	return e
}

func pageQuery(page, limit int) url.Values {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("limit", fmt.Sprint(limit))
	return q
}

func seg(id string) string {
	return url.PathEscape(id)
}
