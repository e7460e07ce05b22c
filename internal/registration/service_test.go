package registration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/discount"
	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/notify"
	"github.com/ariefcatur/go-storefront-checkout/internal/payment"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memStore struct {
	mu     sync.Mutex
	rows   map[Kind]map[string]*Registration
	claims map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		rows:   map[Kind]map[string]*Registration{KindProgram: {}, KindEvent: {}, KindClass: {}},
		claims: map[string]string{},
	}
}

func (m *memStore) Create(_ context.Context, r *Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.SlotStart != nil {
		for _, x := range m.rows[r.Kind] {
			if x.TargetID == r.TargetID && x.SlotStart != nil && x.SlotStart.Equal(*r.SlotStart) && x.Status != StatusCancelled {
				return ErrSlotTaken
			}
		}
	}
	cp := *r
	m.rows[r.Kind][r.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, k Kind, id string) (*Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[k][id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) MarkPaid(_ context.Context, k Kind, id, ref, claim string, at time.Time) (*Registration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[k][id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if r.Paid() || r.Status == StatusCancelled {
		cp := *r
		return &cp, false, paidConflict(r, ref)
	}
	if claim != "" {
		if owner, ok := m.claims[claim]; ok && owner != r.owner() {
			return nil, false, payment.ErrAlreadyClaimed
		}
		m.claims[claim] = r.owner()
	}
	r.Status = PaidStatus(k)
	r.PaymentStatus = StatusCompleted
	r.PaymentIntentID = ref
	r.UpdatedAt = at
	cp := *r
	return &cp, true, nil
}

func (m *memStore) Cancel(_ context.Context, k Kind, id string, at time.Time) (*Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[k][id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != StatusPending || r.PaymentStatus != StatusPending {
		return nil, ErrNotPending
	}
	r.Status = StatusCancelled
	r.UpdatedAt = at
	cp := *r
	return &cp, nil
}

type priceList map[string]decimal.Decimal

func (p priceList) Price(_ context.Context, _ Kind, targetID string) (decimal.Decimal, error) {
	price, ok := p[targetID]
	if !ok {
		return decimal.Zero, ErrTargetNotFound
	}
	return price, nil
}

type fixedDiscounts struct{ rule *discount.Rule }

func (f fixedDiscounts) Quote(_ context.Context, code string, subtotal decimal.Decimal) (*discount.Quote, error) {
	if f.rule == nil || code != f.rule.Code {
		return nil, discount.ErrNotFound
	}
	amount, total := f.rule.Apply(subtotal)
	return &discount.Quote{Rule: f.rule, Subtotal: subtotal, Discount: amount, Total: total}, nil
}

type MockPayments struct{ mock.Mock }

func (m *MockPayments) Confirm(ctx context.Context, c payment.Confirmation) (*payment.Receipt, error) {
	args := m.Called(ctx, c)
	r, _ := args.Get(0).(*payment.Receipt)
	return r, args.Error(1)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e notify.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
}

var (
	now    = time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)
	member = &session.Session{UserID: "u1", Email: "rio@example.com", Name: "Rio"}
	other  = &session.Session{UserID: "u2"}
)

func newService(t *testing.T) (*Service, *memStore, *MockPayments, *recordingDispatcher) {
	st := newMemStore()
	p := &MockPayments{}
	d := &recordingDispatcher{}
	ten := decimal.NewFromInt(10)
	svc := &Service{
		Store: st,
		Offerings: priceList{
			"camp":     decimal.NewFromInt(1000),
			"yoga":     decimal.RequireFromString("1250.50"),
			"gala":     decimal.NewFromInt(300),
			"open-day": decimal.Zero,
			"court-1":  decimal.Zero,
			"court-3":  decimal.NewFromInt(400),
		},
		Discounts: fixedDiscounts{rule: &discount.Rule{Code: "SPRING10", Status: discount.StatusActive, Type: discount.TypePercentage, Value: ten}},
		Payments:  p,
		Notifier:  d,
		Log:       logger.FromZap(zaptest.NewLogger(t)),
		Currency:  "INR",
		Now:       func() time.Time { return now },
	}
	return svc, st, p, d
}

// paidFor is a processor receipt stamped for registration r.
func paidFor(r *Registration, provider payment.Provider, txID string, minor int64) *payment.Receipt {
	return &payment.Receipt{
		Provider: provider, TransactionID: txID, AmountMinor: minor, Currency: "INR",
		Metadata: map[string]string{
			payment.MetaUserID:           r.UserID,
			payment.MetaRegistrationID:   r.ID,
			payment.MetaRegistrationType: string(r.Kind),
		},
	}
}

func stripeTx(id string) payment.Receipt {
	return payment.Receipt{Provider: payment.ProviderStripe, TransactionID: id}
}

func TestReserve_WritesPending(t *testing.T) {
	svc, st, _, _ := newService(t)
	slot := now.Add(48 * time.Hour)

	r, err := svc.Reserve(context.Background(), member, ReserveRequest{Kind: KindClass, TargetID: "court-3", SlotStart: &slot})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(400).Equal(r.Amount), r.Amount.String())
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, StatusPending, r.PaymentStatus)
	assert.Equal(t, "u1", r.UserID)

	stored, err := st.Get(context.Background(), KindClass, r.ID)
	require.NoError(t, err)
	assert.Equal(t, slot, *stored.SlotStart)
}

func TestReserve_AppliesDiscount(t *testing.T) {
	svc, _, _, _ := newService(t)

	r, err := svc.Reserve(context.Background(), member, ReserveRequest{Kind: KindProgram, TargetID: "camp", DiscountCode: "SPRING10"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(900).Equal(r.Amount), r.Amount.String())
	assert.Equal(t, "SPRING10", r.DiscountCode)

	_, err = svc.Reserve(context.Background(), member, ReserveRequest{Kind: KindProgram, TargetID: "camp", DiscountCode: "NOPE"})
	assert.ErrorIs(t, err, discount.ErrNotFound)
}

func TestReserve_Validation(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, nil, ReserveRequest{Kind: KindEvent, TargetID: "x"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = svc.Reserve(ctx, member, ReserveRequest{Kind: "party", TargetID: "x"})
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = svc.Reserve(ctx, member, ReserveRequest{Kind: KindEvent})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Reserve(ctx, member, ReserveRequest{Kind: KindClass, TargetID: "court-3"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReserve_PricedFromCatalog(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	// amount in the request body is not part of the contract; only the catalog counts
	var req ReserveRequest
	require.NoError(t, json.Unmarshal([]byte(`{"registration_type":"program","target_id":"camp","amount":1}`), &req))
	r, err := svc.Reserve(ctx, member, req)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(r.Amount), r.Amount.String())

	_, err = svc.Reserve(ctx, member, ReserveRequest{Kind: KindEvent, TargetID: "unknown"})
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestReserve_SlotTaken(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	slot := now.Add(24 * time.Hour)

	first, err := svc.Reserve(ctx, member, ReserveRequest{Kind: KindClass, TargetID: "court-3", SlotStart: &slot})
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, other, ReserveRequest{Kind: KindClass, TargetID: "court-3", SlotStart: &slot})
	assert.ErrorIs(t, err, ErrSlotTaken)

	later := slot.Add(time.Hour)
	_, err = svc.Reserve(ctx, other, ReserveRequest{Kind: KindClass, TargetID: "court-3", SlotStart: &later})
	require.NoError(t, err)

	// slot dibebaskan setelah cancel
	_, err = svc.Cancel(ctx, member, KindClass, first.ID)
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, other, ReserveRequest{Kind: KindClass, TargetID: "court-3", SlotStart: &slot})
	require.NoError(t, err)
}

func TestMarkPaid_AtMostOnce(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, &Registration{ID: "r1", Kind: KindEvent, UserID: "u1", Status: StatusPending, PaymentStatus: StatusPending}))

	r, changed, err := svc.MarkPaid(ctx, KindEvent, "r1", stripeTx("pay_1"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, StatusCompleted, r.PaymentStatus)
	assert.Equal(t, "pay_1", r.PaymentIntentID)
	assert.Equal(t, now, r.UpdatedAt)

	_, changed, err = svc.MarkPaid(ctx, KindEvent, "r1", stripeTx("pay_1"))
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = svc.MarkPaid(ctx, KindEvent, "r1", stripeTx("pay_2"))
	assert.ErrorIs(t, err, ErrAlreadyPaid)

	_, _, err = svc.MarkPaid(ctx, KindEvent, "missing", stripeTx("pay_1"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = svc.MarkPaid(ctx, "party", "r1", stripeTx("pay_1"))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, _, err = svc.MarkPaid(ctx, KindEvent, "r1", payment.Receipt{Provider: payment.ProviderStripe})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMarkPaid_TransactionSpentOnce(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, &Registration{ID: "r1", Kind: KindEvent, UserID: "u1", Status: StatusPending, PaymentStatus: StatusPending}))
	require.NoError(t, st.Create(ctx, &Registration{ID: "r2", Kind: KindProgram, UserID: "u1", Status: StatusPending, PaymentStatus: StatusPending}))

	_, _, err := svc.MarkPaid(ctx, KindEvent, "r1", stripeTx("pi_1"))
	require.NoError(t, err)

	_, _, err = svc.MarkPaid(ctx, KindProgram, "r2", stripeTx("pi_1"))
	assert.ErrorIs(t, err, payment.ErrAlreadyClaimed)
	got, err := st.Get(ctx, KindProgram, "r2")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.PaymentStatus)

	// the free marker is never claimed
	_, _, err = svc.MarkPaid(ctx, KindProgram, "r2", payment.FreeReceipt())
	require.NoError(t, err)
}

func TestMarkPaid_ClassBookingIsConfirmed(t *testing.T) {
	svc, st, _, _ := newService(t)
	ctx := context.Background()
	require.NoError(t, st.Create(ctx, &Registration{ID: "c1", Kind: KindClass, UserID: "u1", Status: StatusPending, PaymentStatus: StatusPending}))

	r, _, err := svc.MarkPaid(ctx, KindClass, "c1", stripeTx("pay_1"))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, r.Status)
	assert.Equal(t, StatusCompleted, r.PaymentStatus)
}

func TestConfirm_FreePath(t *testing.T) {
	svc, _, p, d := newService(t)
	ctx := context.Background()
	r, err := svc.Reserve(ctx, member, ReserveRequest{Kind: KindEvent, TargetID: "open-day"})
	require.NoError(t, err)

	got, err := svc.Confirm(ctx, member, KindEvent, r.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, payment.FreePaymentID, got.PaymentIntentID)
	assert.Equal(t, StatusCompleted, got.Status)
	p.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything)

	require.Len(t, d.events, 1)
	assert.Equal(t, notify.KindRegistrationConfirmed, d.events[0].Kind)
	assert.Equal(t, "rio@example.com", d.events[0].Recipient.Email)
}

func TestConfirm_WithProcessor(t *testing.T) {
	svc, _, p, d := newService(t)
	ctx := context.Background()
	r, err := svc.Reserve(ctx, member, ReserveRequest{Kind: KindProgram, TargetID: "yoga"})
	require.NoError(t, err)

	conf := payment.Confirmation{Provider: payment.ProviderStripe, IntentID: "pi_9"}
	p.On("Confirm", mock.Anything, conf).Return(paidFor(r, payment.ProviderStripe, "pi_9", 125050), nil).Once()

	got, err := svc.Confirm(ctx, member, KindProgram, r.ID, &conf)
	require.NoError(t, err)
	assert.Equal(t, "pi_9", got.PaymentIntentID)

	// replayed confirmation short-circuits without a second processor call
	again, err := svc.Confirm(ctx, member, KindProgram, r.ID, &conf)
	require.NoError(t, err)
	assert.Equal(t, "pi_9", again.PaymentIntentID)
	assert.Len(t, d.events, 1)
	p.AssertExpectations(t)
}

func TestConfirm_Failures(t *testing.T) {
	svc, _, p, d := newService(t)
	ctx := context.Background()
	r, err := svc.Reserve(ctx, member, ReserveRequest{Kind: KindEvent, TargetID: "gala"})
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, other, KindEvent, r.ID, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Confirm(ctx, member, KindEvent, r.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	declined := payment.Confirmation{Provider: payment.ProviderStripe, IntentID: "pi_bad"}
	p.On("Confirm", mock.Anything, declined).Return(nil, payment.ErrNotConfirmed)
	_, err = svc.Confirm(ctx, member, KindEvent, r.ID, &declined)
	assert.ErrorIs(t, err, payment.ErrNotConfirmed)

	short := payment.Confirmation{Provider: payment.ProviderRazorpay, IntentID: "order_1", TransactionID: "pay_1", Signature: "s"}
	p.On("Confirm", mock.Anything, short).Return(paidFor(r, payment.ProviderRazorpay, "pay_1", 100), nil)
	_, err = svc.Confirm(ctx, member, KindEvent, r.ID, &short)
	assert.ErrorIs(t, err, payment.ErrNotConfirmed)

	// captured amount missing from the receipt never covers a priced booking
	blank := payment.Confirmation{Provider: payment.ProviderRazorpay, IntentID: "order_2", TransactionID: "pay_2", Signature: "s"}
	p.On("Confirm", mock.Anything, blank).Return(paidFor(r, payment.ProviderRazorpay, "pay_2", 0), nil)
	_, err = svc.Confirm(ctx, member, KindEvent, r.ID, &blank)
	assert.ErrorIs(t, err, payment.ErrNotConfirmed)

	dollars := payment.Confirmation{Provider: payment.ProviderStripe, IntentID: "pi_usd"}
	usd := paidFor(r, payment.ProviderStripe, "pi_usd", 30000)
	usd.Currency = "USD"
	p.On("Confirm", mock.Anything, dollars).Return(usd, nil)
	_, err = svc.Confirm(ctx, member, KindEvent, r.ID, &dollars)
	assert.ErrorIs(t, err, payment.ErrNotConfirmed)

	got, err := svc.Get(ctx, member, KindEvent, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.PaymentStatus)
	assert.Empty(t, d.events)
}

func TestConfirm_PaymentForAnotherBookingRejected(t *testing.T) {
	svc, _, p, d := newService(t)
	ctx := context.Background()
	first, err := svc.Reserve(ctx, member, ReserveRequest{Kind: KindEvent, TargetID: "gala"})
	require.NoError(t, err)
	second, err := svc.Reserve(ctx, member, ReserveRequest{Kind: KindEvent, TargetID: "gala"})
	require.NoError(t, err)

	conf := payment.Confirmation{Provider: payment.ProviderStripe, IntentID: "pi_1"}
	p.On("Confirm", mock.Anything, conf).Return(paidFor(first, payment.ProviderStripe, "pi_1", 30000), nil)

	_, err = svc.Confirm(ctx, member, KindEvent, first.ID, &conf)
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, member, KindEvent, second.ID, &conf)
	assert.ErrorIs(t, err, payment.ErrMismatch)
	got, err := svc.Get(ctx, member, KindEvent, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.PaymentStatus)
	assert.Len(t, d.events, 1)
}

func TestConfirm_PaymentOpenedByAnotherUserRejected(t *testing.T) {
	svc, _, p, _ := newService(t)
	ctx := context.Background()
	r, err := svc.Reserve(ctx, member, ReserveRequest{Kind: KindProgram, TargetID: "camp"})
	require.NoError(t, err)

	conf := payment.Confirmation{Provider: payment.ProviderStripe, IntentID: "pi_x"}
	rc := paidFor(r, payment.ProviderStripe, "pi_x", 100000)
	rc.Metadata[payment.MetaUserID] = "u2"
	p.On("Confirm", mock.Anything, conf).Return(rc, nil)

	_, err = svc.Confirm(ctx, member, KindProgram, r.ID, &conf)
	assert.ErrorIs(t, err, payment.ErrMismatch)
}

func TestCancel(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	slot := now.Add(72 * time.Hour)
	r, err := svc.Reserve(ctx, member, ReserveRequest{Kind: KindClass, TargetID: "court-1", SlotStart: &slot})
	require.NoError(t, err)

	got, err := svc.Cancel(ctx, member, KindClass, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	_, err = svc.Cancel(ctx, member, KindClass, r.ID)
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = svc.Confirm(ctx, member, KindClass, r.ID, nil)
	assert.ErrorIs(t, err, ErrCancelled)
}
