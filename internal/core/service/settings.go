package service

import "time"

// Settings is the process-wide configuration the access controller and the
// seeder need. It is built once at startup and passed by pointer.
type Settings struct {
	SuperadminUsername string
	SuperadminEmail    string
	DefaultPassword    string

	PasswordMaxAge time.Duration
	ResetTokenTTL  time.Duration
	BcryptCost     int

	// BaseURL prefixes links placed in outgoing mail.
	BaseURL string
}
