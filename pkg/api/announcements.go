package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/mahaj/taskchat/pkg/model"
)

type Announcement struct {
	ID        model.ID           `json:"id"`
	ProjectID model.ID           `json:"projectId"`
	Title     string             `json:"title"`
	Content   string             `json:"content"`
	Pinned    bool               `json:"isPinned"`
	Author    *model.UserSummary `json:"author,omitempty"`
	CreatedAt string             `json:"createdAt"`
}

type NewAnnouncement struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Pinned  bool   `json:"isPinned"`
}

type AnnouncementService struct {
	c *Client
}

func announcementsPath(projectID string) string {
	return "/projects/" + seg(projectID) + "/announcements"
}

func (s *AnnouncementService) List(ctx context.Context, projectID string) ([]Announcement, error) {
	var out []Announcement
	if err := s.c.do(ctx, http.MethodGet, announcementsPath(projectID), nil, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// Create checks title and content locally; an invalid announcement never
// reaches the backend.
func (s *AnnouncementService) Create(ctx context.Context, projectID string, a NewAnnouncement) (*Announcement, error) {
	if err := invalid(checkTitle(a.Title), checkContent(a.Content, true)); err != nil {
		return nil, err
	}
	a.Title = strings.TrimSpace(a.Title)
	var out Announcement
	if err := s.c.do(ctx, http.MethodPost, announcementsPath(projectID), nil, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AnnouncementService) Delete(ctx context.Context, projectID, announcementID string) error {
	return s.c.do(ctx, http.MethodDelete, announcementsPath(projectID)+"/"+seg(announcementID), nil, nil, nil)
}
