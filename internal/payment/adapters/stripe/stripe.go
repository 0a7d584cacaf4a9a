package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/fenuasim/portal/internal/payment/domain"
)

type Adapter struct {
	webhookSecret string
}

func NewAdapter(webhookSecret string) (*Adapter, error) {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	return &Adapter{webhookSecret: secret}, nil
}

func (a *Adapter) Provider() string {
	return "stripe"
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.CheckoutEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	if strings.TrimSpace(event.Type) != "checkout.session.completed" {
		return nil, paymentdomain.ErrEventIgnored
	}

	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.PaymentIntent) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	email := strings.TrimSpace(session.CustomerDetails.Email)
	if email == "" {
		email = strings.TrimSpace(session.CustomerEmail)
	}

	return &paymentdomain.CheckoutEvent{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		EventType:       event.Type,
		PaymentIntentID: session.PaymentIntent,
		PartnerCode:     readMetadataValue(session.Metadata, "partner_code"),
		PartnerUserID:   readMetadataValue(session.Metadata, "partner_user_id"),
		CustomerEmail:   email,
		AmountTotal:     session.AmountTotal,
		Currency:        strings.ToUpper(strings.TrimSpace(session.Currency)),
		Cart:            cartPayload(session.Metadata),
		OccurredAt:      timestamp(event.Created),
		RawPayload:      payload,
	}, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID              string                `json:"id"`
	PaymentIntent   string                `json:"payment_intent"`
	AmountTotal     int64                 `json:"amount_total"`
	Currency        string                `json:"currency"`
	CustomerEmail   string                `json:"customer_email"`
	CustomerDetails stripeCustomerDetails `json:"customer_details"`
	Metadata        map[string]any        `json:"metadata"`
}

type stripeCustomerDetails struct {
	Email string `json:"email"`
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(value int64) time.Time {
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	if cast, ok := value.(string); ok {
		return strings.TrimSpace(cast)
	}
	return ""
}

func cartPayload(metadata map[string]any) []byte {
	raw := readMetadataValue(metadata, "cart")
	if raw == "" || !json.Valid([]byte(raw)) {
		return nil
	}
	return []byte(raw)
}
