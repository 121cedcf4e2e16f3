package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/model"
)

type Meeting struct {
	ID              model.ID           `json:"id"`
	ProjectID       model.ID           `json:"projectId"`
	Title           string             `json:"title"`
	Description     string             `json:"description,omitempty"`
	StartsAt        time.Time          `json:"startTime"`
	DurationMinutes int                `json:"duration"`
	CreatedBy       *model.UserSummary `json:"createdBy,omitempty"`
}

type NewMeeting struct {
	Title       string
	Description string
	StartsAt    time.Time
	Duration    time.Duration
}

type MeetingService struct {
	c *Client
}

func meetingsPath(projectID string) string {
	return "/projects/" + seg(projectID) + "/meetings"
}

func (s *MeetingService) List(ctx context.Context, projectID string) ([]Meeting, error) {
	var out []Meeting
	if err := s.c.do(ctx, http.MethodGet, meetingsPath(projectID), nil, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (s *MeetingService) Create(ctx context.Context, projectID string, m NewMeeting) (*Meeting, error) {
	var codes []apierr.Code
	switch {
	case m.StartsAt.IsZero():
		codes = append(codes, apierr.CodeInvalidDate)
	case m.StartsAt.Before(s.c.now()):
		codes = append(codes, apierr.CodeMeetingInPast)
	}
	if m.Duration <= 0 {
		codes = append(codes, apierr.CodeInvalidDuration)
	}
	if err := invalid(checkTitle(m.Title), codes, checkContent(m.Description, false)); err != nil {
		return nil, err
	}

	in := map[string]any{
		"title":     strings.TrimSpace(m.Title),
		"startTime": m.StartsAt.UTC().Format(time.RFC3339),
		"duration":  int(m.Duration.Round(time.Minute) / time.Minute),
	}
	if m.Description != "" {
		in["description"] = m.Description
	}
	var out Meeting
	if err := s.c.do(ctx, http.MethodPost, meetingsPath(projectID), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MeetingService) Cancel(ctx context.Context, projectID, meetingID string) error {
	return s.c.do(ctx, http.MethodDelete, meetingsPath(projectID)+"/"+seg(meetingID), nil, nil, nil)
}
