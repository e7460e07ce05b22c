package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/notify"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
)

var (
	ErrNotFound             = errors.New("order not found")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrForbidden            = errors.New("operator role required")
	ErrTransitionNotAllowed = errors.New("order status does not allow this action")
	ErrReturnWindowClosed   = fmt.Errorf("%w: return window has closed", ErrTransitionNotAllowed)
)

type Store interface {
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	Transition(ctx context.Context, id string, t Transition) (*Order, error)
}

type Service struct {
	Store    Store
	Notifier notify.Dispatcher
	Log      *logger.Logger
	Now      func() time.Time
}

type View struct {
	*Order
	Actions []Action `json:"actions"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) List(ctx context.Context, sess *session.Session) ([]View, error) {
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	list, err := s.Store.ListByUser(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]View, 0, len(list))
	for i := range list {
		out = append(out, View{Order: &list[i], Actions: AvailableActions(&list[i], now)})
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, sess *session.Session, id string) (*View, error) {
	o, err := s.load(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	return &View{Order: o, Actions: AvailableActions(o, s.now())}, nil
}

// load returns the order if sess owns it; operators see every order.
func (s *Service) load(ctx context.Context, sess *session.Session, id string) (*Order, error) {
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != sess.UserID && !sess.IsOperator() {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Service) Cancel(ctx context.Context, sess *session.Session, id string) (*Order, error) {
	o, err := s.load(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if !CanCancel(o) {
		return nil, ErrTransitionNotAllowed
	}
	return s.apply(ctx, o, Transition{From: DeliveryPlaced, To: DeliveryCancelled, ReleaseStock: true}, notify.KindOrderCancelled)
}

func (s *Service) RequestReturn(ctx context.Context, sess *session.Session, id, reason string) (*Order, error) {
	o, err := s.load(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if o.DeliveryStatus != DeliveryDelivered {
		return nil, ErrTransitionNotAllowed
	}
	if !CanReturn(o, s.now()) {
		return nil, ErrReturnWindowClosed
	}
	t := Transition{From: DeliveryDelivered, To: DeliveryReturnInitiated, ReturnReason: strings.TrimSpace(reason)}
	return s.apply(ctx, o, t, notify.KindReturnRequested)
}

func (s *Service) CancelReturn(ctx context.Context, sess *session.Session, id string) (*Order, error) {
	o, err := s.load(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if !CanCancelReturn(o) {
		return nil, ErrTransitionNotAllowed
	}
	return s.apply(ctx, o, Transition{From: DeliveryReturnInitiated, To: DeliveryDelivered, ClearReturn: true}, notify.KindReturnCancelled)
}

func (s *Service) MarkDelivered(ctx context.Context, sess *session.Session, id string) (*Order, error) {
	if !sess.IsOperator() {
		return nil, ErrForbidden
	}
	o, err := s.load(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, o, Transition{From: DeliveryPlaced, To: DeliveryDelivered}, notify.KindOrderDelivered)
}

func (s *Service) Refund(ctx context.Context, sess *session.Session, id string) (*Order, error) {
	if !sess.IsOperator() {
		return nil, ErrForbidden
	}
	o, err := s.load(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, o, Transition{From: DeliveryReturnInitiated, To: DeliveryRefunded, ReleaseStock: true}, notify.KindRefundIssued)
}

func (s *Service) apply(ctx context.Context, o *Order, t Transition, kind notify.Kind) (*Order, error) {
	if o.DeliveryStatus != t.From || !CanTransition(t.From, t.To) {
		return nil, ErrTransitionNotAllowed
	}
	t.At = s.now()
	updated, err := s.Store.Transition(ctx, o.ID, t)
	if err != nil {
		return nil, err
	}
	s.Log.Info("order transition", "order_id", o.ID, "from", t.From, "to", t.To)
	s.Notifier.Dispatch(ctx, updated.Event(kind))
	return updated, nil
}
