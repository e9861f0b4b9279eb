package pubsub

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// subscriberBuffer is the capacity of every channel returned by Subscribe.
const subscriberBuffer = 100

// forward decodes one raw bus payload and hands it to out. Undecodable
// payloads are logged and skipped. It reports false once ctx is done.
func forward(ctx context.Context, l zerolog.Logger, channel string, raw []byte, out chan<- *Event) bool {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		l.Warn().Err(err).Str("channel", channel).Msg("dropping undecodable event")
		return ctx.Err() == nil
	}
	select {
	case out <- &event:
		return true
	case <-ctx.Done():
		return false
	}
}
