package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/mahaj/taskchat/pkg/apierr"
	"github.com/mahaj/taskchat/pkg/model"
)

type Invitation struct {
	ID        model.ID              `json:"id"`
	Project   *model.ProjectSummary `json:"project,omitempty"`
	Email     string                `json:"email"`
	InvitedBy *model.UserSummary    `json:"invitedBy,omitempty"`
	Status    string                `json:"status"`
	CreatedAt string                `json:"createdAt"`
}

type InvitationService struct {
	c *Client
}

func (s *InvitationService) Pending(ctx context.Context) ([]Invitation, error) {
	var out []Invitation
	if err := s.c.do(ctx, http.MethodGet, "/invitations", nil, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (s *InvitationService) Invite(ctx context.Context, projectID, email string) (*Invitation, error) {
	if !validEmail(email) {
		return nil, apierr.Validation(apierr.CodeInvalidEmail)
	}
	var out Invitation
	in := map[string]string{"email": strings.TrimSpace(email)}
	if err := s.c.do(ctx, http.MethodPost, "/projects/"+seg(projectID)+"/invitations", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *InvitationService) Accept(ctx context.Context, invitationID string) error {
	return s.c.do(ctx, http.MethodPost, "/invitations/"+seg(invitationID)+"/accept", nil, nil, nil)
}

func (s *InvitationService) Reject(ctx context.Context, invitationID string) error {
	return s.c.do(ctx, http.MethodPost, "/invitations/"+seg(invitationID)+"/reject", nil, nil, nil)
}
