package ports

import "context"

// Notifier delivers a plain-text message to a single address.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}
