package handler

import (
	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/ports"
)

// --- Domain → Response ---

func toUserResponse(u domain.User) userResponse {
	resp := userResponse{
		Username:        u.Username,
		Email:           u.Email,
		Status:          string(u.Status),
		IsAdmin:         u.IsAdmin,
		MustRotate:      u.MustRotate,
		TermsAcceptedAt: u.TermsAcceptedAt,
	}
	if !u.PasswordSetAt.IsZero() {
		ts := u.PasswordSetAt
		resp.PasswordSetAt = &ts
	}
	return resp
}

func toUserResponses(users []domain.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out
}

// --- Request → Service input ---

func toCreateUserInput(req createUserRequest) ports.CreateUserInput {
	return ports.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		IsAdmin:  req.IsAdmin,
		Activate: req.Activate,
	}
}
