package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vamosfrotas/fleet-access/internal/core/domain"
	"github.com/vamosfrotas/fleet-access/internal/core/token"
)

func link(baseURL, path string, q url.Values) string {
	l := strings.TrimRight(baseURL, "/") + path
	if len(q) > 0 {
		l += "?" + q.Encode()
	}
	return l
}

func resetMessage(baseURL, username string, issued token.Issued) (string, string) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("token", issued.Value)

	body := fmt.Sprintf(
		"Hello %s,\n\nA password reset was requested for your account.\n"+
			"Use the link below to choose a new password. It expires at %s.\n\n%s\n\n"+
			"If you did not request this, you can ignore this message.\n",
		username,
		issued.Record.ExpiresAt.Format("2006-01-02 15:04 MST"),
		link(baseURL, "/reset-password", q),
	)
	return "Password reset", body
}

func approvedMessage(baseURL string, u domain.User) (string, string) {
	body := fmt.Sprintf(
		"Hello %s,\n\nYour account has been approved. You can now sign in at %s.\n",
		u.Username,
		link(baseURL, "/login", nil),
	)
	return "Account approved", body
}

func registrationMessage(baseURL string, u domain.User) (string, string) {
	body := fmt.Sprintf(
		"A new account is waiting for approval.\n\nUsername: %s\nEmail: %s\n\nReview pending accounts at %s.\n",
		u.Username,
		u.Email,
		link(baseURL, "/admin/users", url.Values{"status": {string(domain.StatusPending)}}),
	)
	return "New registration: " + u.Username, body
}

func inviteMessage(baseURL, username string, issued token.Issued) (string, string) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("token", issued.Value)

	body := fmt.Sprintf(
		"Hello %s,\n\nAn account has been created for you.\n"+
			"Use the link below to set your password. It expires at %s.\n\n%s\n",
		username,
		issued.Record.ExpiresAt.Format("2006-01-02 15:04 MST"),
		link(baseURL, "/reset-password", q),
	)
	return "Set your password", body
}
