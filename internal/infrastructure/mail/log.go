package mail

import (
	"context"

	"github.com/rs/zerolog"
)

// LogGateway is used when no mail transport is configured. It records what
// would have been sent, without the body, and always succeeds.
type LogGateway struct {
	log zerolog.Logger
}

func NewLogGateway(log zerolog.Logger) *LogGateway {
	return &LogGateway{log: log}
}

func (g *LogGateway) Send(_ context.Context, to, subject, _ string) error {
	g.log.Warn().Str("to", to).Str("subject", subject).Msg("mail transport disabled, message dropped")
	return nil
}
