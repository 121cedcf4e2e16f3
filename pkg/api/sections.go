package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/model"
)

// Section is a column of a project board.
type Section struct {
	ID        model.ID `json:"id"`
	ProjectID model.ID `json:"projectId"`
	Name      string   `json:"name"`
	Position  int      `json:"position"`
}

type SectionService struct {
	c *Client
}

func sectionsPath(projectID string) string {
	return "/projects/" + seg(projectID) + "/sections"
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apierr.Validation(apierr.CodeNameEmpty)
	}
	return nil
}

func (s *SectionService) List(ctx context.Context, projectID string) ([]Section, error) {
	var out []Section
	if err := s.c.do(ctx, http.MethodGet, sectionsPath(projectID), nil, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (s *SectionService) Create(ctx context.Context, projectID, name string) (*Section, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	var out Section
	in := map[string]string{"name": strings.TrimSpace(name)}
	if err := s.c.do(ctx, http.MethodPost, sectionsPath(projectID), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SectionService) Rename(ctx context.Context, projectID, sectionID, name string) (*Section, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	var out Section
	in := map[string]string{"name": strings.TrimSpace(name)}
	if err := s.c.do(ctx, http.MethodPatch, sectionsPath(projectID)+"/"+seg(sectionID), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *SectionService) Delete(ctx context.Context, projectID, sectionID string) error {
	return s.c.do(ctx, http.MethodDelete, sectionsPath(projectID)+"/"+seg(sectionID), nil, nil, nil)
}
