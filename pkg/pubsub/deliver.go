package pubsub

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// subscriberBuffer is the capacity of every channel returned by Subscribe.
const subscriberBuffer = 100

func driverLogger(driver string) zerolog.Logger {
	return log.Component("pubsub").With().Str("driver", driver).Logger()
}

// deliver decodes one raw message and hands it to out without blocking.
// Undecodable messages and messages for a full subscriber are dropped. It
// reports false once ctx is done.
func deliver(ctx context.Context, l *zerolog.Logger, source string, data []byte, out chan<- *Event) bool {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		l.Warn().Err(err).Str("source", source).Msg("failed to unmarshal event")
		return ctx.Err() == nil
	}

	select {
	case out <- &event:
		return true
	case <-ctx.Done():
		return false
	default:
		l.Warn().Str("source", source).Str("type", event.Type).Msg("subscriber full, dropping event")
		return true
	}
}
