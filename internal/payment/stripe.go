package payment

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

type stripeIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type StripeGateway struct {
	client *resty.Client
}

func NewStripeGateway(baseURL, secretKey string) *StripeGateway {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(secretKey).
		SetRetryCount(0)
	return &StripeGateway{client: c}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	form := map[string]string{
		"amount":                             strconv.FormatInt(ToMinor(req.Amount), 10),
		"currency":                           strings.ToLower(req.Currency),
		"automatic_payment_methods[enabled]": "true",
	}
	for k, v := range req.Metadata() {
		form["metadata["+k+"]"] = v
	}

	var out stripeIntent
	var apiErr stripeError
	resp, err := g.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/payment_intents")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &ProviderError{Provider: ProviderStripe, StatusCode: resp.StatusCode(), Message: apiErr.Error.Message}
	}
	return &Intent{
		Provider:     ProviderStripe,
		ID:           out.ID,
		ClientSecret: out.ClientSecret,
		AmountMinor:  out.Amount,
		Currency:     strings.ToUpper(out.Currency),
		Notes:        out.Metadata,
		State:        StateIntentCreated,
	}, nil
}

// Confirm retrieves the intent; only "succeeded" counts as paid.
func (g *StripeGateway) Confirm(ctx context.Context, c Confirmation) (*Receipt, error) {
	var out stripeIntent
	var apiErr stripeError
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("id", c.IntentID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/payment_intents/{id}")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotConfirmed
	}
	if resp.IsError() {
		return nil, &ProviderError{Provider: ProviderStripe, StatusCode: resp.StatusCode(), Message: apiErr.Error.Message}
	}
	if out.Status != "succeeded" {
		return nil, ErrNotConfirmed
	}
	return &Receipt{
		Provider:      ProviderStripe,
		TransactionID: out.ID,
		AmountMinor:   out.Amount,
		Currency:      strings.ToUpper(out.Currency),
		Metadata:      out.Metadata,
	}, nil
}

// Refund refunds the whole captured amount of a payment intent.
func (g *StripeGateway) Refund(ctx context.Context, transactionID string) error {
	var apiErr stripeError
	resp, err := g.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"payment_intent": transactionID}).
		SetError(&apiErr).
		Post("/v1/refunds")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &ProviderError{Provider: ProviderStripe, StatusCode: resp.StatusCode(), Message: apiErr.Error.Message}
	}
	return nil
}
