package notify

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
	"github.com/segmentio/kafka-go"
)

type Deduper interface {
	// First reports whether key is seen for the first time.
	First(ctx context.Context, key string) (bool, error)
}

// Handler consumes notification envelopes on the notifier side.
type Handler struct {
	Sender      *Sender
	Dedup       Deduper
	ServiceName string
	Log         *logger.Logger
}

// HandleMessage always returns nil: a broken or failed notification is
// logged and committed, never redelivered.
func (h *Handler) HandleMessage(ctx context.Context, m kafka.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		h.Log.Error("bad envelope", "offset", m.Offset, "error", err)
		return nil
	}
	ev, err := kafkax.UnwrapPayload[Event](env.Payload)
	if err != nil {
		h.Log.Error("bad payload", "event_id", env.EventID, "error", err)
		return nil
	}

	if h.Dedup != nil {
		first, err := h.Dedup.First(ctx, fmt.Sprintf(redisx.KeyDedup, h.ServiceName, env.EventID))
		if err != nil {
			h.Log.Warn("dedup unavailable, sending anyway", "event_id", env.EventID, "error", err)
		} else if !first {
			h.Log.Debug("duplicate notification skipped", "event_id", env.EventID)
			return nil
		}
	}

	h.Sender.Send(ctx, ev)
	return nil
}
