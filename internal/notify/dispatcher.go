package notify

import (
	"context"
	"time"

	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher is best-effort: it never reports failure to the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event)
}

func stamp(e *Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
}

type publisher interface {
	Publish(key, value []byte, headers ...kafka.Header) error
}

// Publisher hands events to the notifier over Kafka.
type Publisher struct {
	producer publisher
	service  string
	log      *logger.Logger
}

func NewPublisher(p *kafkax.Producer, service string, log *logger.Logger) *Publisher {
	return &Publisher{producer: p, service: service, log: log.With("component", "notify_publisher")}
}

func (p *Publisher) Dispatch(ctx context.Context, e Event) {
	stamp(&e)
	env := Envelope{
		EventID:       e.ID,
		EventType:     string(e.Kind),
		EventVersion:  1,
		OccurredAt:    e.OccurredAt,
		Producer:      p.service,
		CorrelationID: e.CorrelationID(),
		Payload:       kafkax.MustMarshal(e),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	if err := p.producer.Publish([]byte(env.CorrelationID), kafkax.MustMarshal(env)); err != nil {
		metrics.RecordNotification(string(e.Kind), "dropped")
		p.log.Warn("notification dropped", "kind", e.Kind, "event_id", e.ID, "error", err)
		return
	}
	metrics.RecordNotification(string(e.Kind), "queued")
}

// Sender renders an event and mails it to the purchaser and the operator.
type Sender struct {
	Renderer *Renderer
	Mailer   Mailer
	Operator EmailAddress
	Log      *logger.Logger
}

// Send swallows every failure after logging it.
func (s *Sender) Send(ctx context.Context, e Event) {
	subject, html, err := s.Renderer.Render(e)
	if err != nil {
		metrics.RecordNotification(string(e.Kind), "render_failed")
		s.Log.Error("render notification", "kind", e.Kind, "event_id", e.ID, "error", err)
		return
	}
	to := []EmailAddress{s.Operator}
	if e.Recipient.Email != "" {
		to = []EmailAddress{e.Recipient, s.Operator}
	}
	for _, rcpt := range to {
		if rcpt.Email == "" {
			continue
		}
		if err := s.Mailer.Send(ctx, Email{To: []EmailAddress{rcpt}, Subject: subject, HTML: html}); err != nil {
			metrics.RecordNotification(string(e.Kind), "failed")
			s.Log.Warn("send notification", "kind", e.Kind, "event_id", e.ID, "error", err)
			continue
		}
		metrics.RecordNotification(string(e.Kind), "sent")
	}
}

// Direct sends inline, for deployments without Kafka.
type Direct struct {
	Sender  *Sender
	Timeout time.Duration
}

func (d *Direct) Dispatch(ctx context.Context, e Event) {
	stamp(&e)
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// request ctx bisa sudah cancel setelah response dikirim
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	d.Sender.Send(sendCtx, e)
}
