package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

type razorpayOrder struct {
	ID         string            `json:"id"`
	Amount     int64             `json:"amount"`
	AmountPaid int64             `json:"amount_paid"`
	Currency   string            `json:"currency"`
	Receipt    string            `json:"receipt"`
	Notes      map[string]string `json:"notes"`
	Status     string            `json:"status"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// RazorpayGateway backs the legacy order/key checkout flow.
type RazorpayGateway struct {
	client    *resty.Client
	keyID     string
	keySecret string
}

func NewRazorpayGateway(baseURL, keyID, keySecret string) *RazorpayGateway {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetBasicAuth(keyID, keySecret).
		SetRetryCount(0)
	return &RazorpayGateway{client: c, keyID: keyID, keySecret: keySecret}
}

func (g *RazorpayGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	body := map[string]any{
		"amount":   ToMinor(req.Amount),
		"currency": strings.ToUpper(req.Currency),
		"receipt":  req.Receipt,
	}
	if notes := req.Metadata(); len(notes) > 0 {
		body["notes"] = notes
	}

	var out razorpayOrder
	var apiErr razorpayError
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/orders")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &ProviderError{Provider: ProviderRazorpay, StatusCode: resp.StatusCode(), Message: apiErr.Error.Description}
	}
	return &Intent{
		Provider:    ProviderRazorpay,
		ID:          out.ID,
		AmountMinor: out.Amount,
		Currency:    out.Currency,
		Key:         g.keyID,
		Notes:       out.Notes,
		State:       StateIntentCreated,
	}, nil
}

// Confirm verifies the checkout signature, hex(HMAC-SHA256(order_id|payment_id)),
// then reads the order back; only a fully paid order counts.
func (g *RazorpayGateway) Confirm(ctx context.Context, c Confirmation) (*Receipt, error) {
	if c.IntentID == "" || c.TransactionID == "" || c.Signature == "" {
		return nil, ErrNotConfirmed
	}
	mac := hmac.New(sha256.New, []byte(g.keySecret))
	mac.Write([]byte(c.IntentID + "|" + c.TransactionID))
	expected := mac.Sum(nil)
	got, err := hex.DecodeString(c.Signature)
	if err != nil || !hmac.Equal(expected, got) {
		return nil, ErrNotConfirmed
	}

	var out razorpayOrder
	var apiErr razorpayError
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("id", c.IntentID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/orders/{id}")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotConfirmed
	}
	if resp.IsError() {
		return nil, &ProviderError{Provider: ProviderRazorpay, StatusCode: resp.StatusCode(), Message: apiErr.Error.Description}
	}
	if out.Status != "paid" {
		return nil, ErrNotConfirmed
	}
	return &Receipt{
		Provider:      ProviderRazorpay,
		TransactionID: c.TransactionID,
		AmountMinor:   out.AmountPaid,
		Currency:      strings.ToUpper(out.Currency),
		Metadata:      out.Notes,
	}, nil
}

// Refund refunds the whole captured amount of a payment.
func (g *RazorpayGateway) Refund(ctx context.Context, transactionID string) error {
	var apiErr razorpayError
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("id", transactionID).
		SetBody(map[string]any{}).
		SetError(&apiErr).
		Post("/v1/payments/{id}/refund")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &ProviderError{Provider: ProviderRazorpay, StatusCode: resp.StatusCode(), Message: apiErr.Error.Description}
	}
	return nil
}

// Sign is the counterpart of Confirm, exposed for callback tooling and tests.
func (g *RazorpayGateway) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(g.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
