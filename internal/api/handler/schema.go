package handler

import "time"

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error   string   `json:"error"`
	Reasons []string `json:"reasons,omitempty"`
}

// --- Request types ---

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
	Email    string `json:"email"    validate:"omitempty,email"`
}

type resetRequest struct {
	Username string `json:"username" validate:"required"`
}

type completeResetRequest struct {
	Username    string `json:"username"     validate:"required"`
	Token       string `json:"token"        validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password"     validate:"required"`
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password"`
	Email    string `json:"email"    validate:"omitempty,email"`
	IsAdmin  bool   `json:"is_admin"`
	Activate bool   `json:"activate"`
}

type setAdminRequest struct {
	IsAdmin *bool `json:"is_admin" validate:"required"`
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active disabled"`
}

// --- Response types ---

type userResponse struct {
	Username        string     `json:"username"`
	Email           string     `json:"email,omitempty"`
	Status          string     `json:"status"`
	IsAdmin         bool       `json:"is_admin"`
	MustRotate      bool       `json:"must_rotate"`
	PasswordSetAt   *time.Time `json:"password_set_at,omitempty"`
	TermsAcceptedAt *time.Time `json:"terms_accepted_at,omitempty"`
}

// sessionResponse carries a session token and the login state it grants.
type sessionResponse struct {
	Token string        `json:"token"`
	State string        `json:"state"`
	User  *userResponse `json:"user,omitempty"`
}

type registerResponse struct {
	User     userResponse `json:"user"`
	Message  string       `json:"message"`
	Warnings []string     `json:"warnings,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type listUsersResponse struct {
	Users []userResponse `json:"users"`
	Total int            `json:"total"`
}
