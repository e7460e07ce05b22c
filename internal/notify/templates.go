package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

var subjects = map[Kind]string{
	KindOrderConfirmation:     "Your order %s is confirmed",
	KindOrderCancelled:        "Your order %s has been cancelled",
	KindReturnRequested:       "Return requested for order %s",
	KindReturnCancelled:       "Return cancelled for order %s",
	KindOrderDelivered:        "Your order %s has been delivered",
	KindRefundIssued:          "Refund issued for order %s",
	KindRegistrationConfirmed: "Booking %s confirmed",
	KindCheckoutRefunded:      "Checkout %s could not be completed",
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
<p>Hi {{if .Recipient.Name}}{{.Recipient.Name}}{{else}}there{{end}},</p>
{{template "body" .}}
<p style="color:#888;font-size:12px">Reference {{.ID}}</p>
</body></html>{{end}}`

const orderTable = `{{define "order"}}{{with .Order}}
<table cellpadding="6" style="border-collapse:collapse">
<tr><td>Order</td><td>{{.OrderID}}</td></tr>
<tr><td>Item</td><td>{{.ProductName}} × {{.Quantity}}</td></tr>
<tr><td>Price</td><td>{{.Price.StringFixed 2}}</td></tr>
<tr><td>Total</td><td><b>{{.Total.StringFixed 2}}</b></td></tr>
<tr><td>Payment</td><td>{{.PaymentMethod}} ({{.Status}})</td></tr>
<tr><td>Ship to</td><td>{{.ShippingInfo.FullName}}, {{.ShippingInfo.Line1}}, {{.ShippingInfo.City}} {{.ShippingInfo.PostalCode}}</td></tr>
</table>{{end}}{{end}}`

var bodies = map[Kind]string{
	KindOrderConfirmation: `<p>Thanks for your purchase. Here is your invoice.</p>{{template "order" .}}`,
	KindOrderCancelled:    `<p>Your order was cancelled.</p>{{template "order" .}}`,
	KindReturnRequested:   `<p>We received your return request{{if .Reason}}: <i>{{.Reason}}</i>{{end}}.</p>{{template "order" .}}`,
	KindReturnCancelled:   `<p>Your return request was withdrawn; the order stays delivered.</p>{{template "order" .}}`,
	KindOrderDelivered:    `<p>Your order was delivered.</p>{{template "order" .}}`,
	KindRefundIssued:      `<p>Your refund has been processed.</p>{{template "order" .}}`,
	KindRegistrationConfirmed: `{{with .Registration}}<p>Your {{.Kind}} booking {{.RegistrationID}} is confirmed.</p>
<p>Amount paid: {{.Amount.StringFixed 2}} (ref {{.PaymentRef}})</p>{{if .SlotStart}}<p>Slot: {{.SlotStart.Format "Mon 02 Jan 2006 15:04 MST"}}</p>{{end}}{{end}}`,
	KindCheckoutRefunded: `{{with .Refund}}<p>We could not complete checkout {{.CheckoutID}}{{if $.Reason}} ({{$.Reason}}){{end}}. No order was placed.</p>
<p>{{if .Refunded}}Your payment of {{.Amount.StringFixed 2}} (ref {{.PaymentID}}) has been refunded.{{else}}A refund of {{.Amount.StringFixed 2}} (ref {{.PaymentID}}) is being processed.{{end}}</p>{{end}}`,
}

type Renderer struct {
	templates map[Kind]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[Kind]*template.Template, len(bodies))}
	for kind, body := range bodies {
		t, err := template.New(string(kind)).Parse(layout + orderTable + `{{define "body"}}` + body + `{{end}}`)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", kind, err)
		}
		r.templates[kind] = t
	}
	return r, nil
}

func (r *Renderer) Render(e Event) (subject, html string, err error) {
	t, ok := r.templates[e.Kind]
	if !ok {
		return "", "", fmt.Errorf("no template for %q", e.Kind)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", e); err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjects[e.Kind], shortRef(e.CorrelationID())), buf.String(), nil
}

func shortRef(id string) string {
	if len(id) > 8 {
		return "#" + id[:8]
	}
	return "#" + id
}
