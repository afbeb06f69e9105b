// Package mail implements the notification gateway: direct SMTP delivery, an
// AMQP outbox with its consumer, and a log-only fallback.
package mail

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the outbox wire form.
type Message struct {
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (m Message) validate() error {
	if m.To == "" {
		return fmt.Errorf("message has no recipient")
	}
	return nil
}

func decodeMessage(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return m, fmt.Errorf("unmarshal: %w", err)
	}
	return m, m.validate()
}
