package stripe_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	stripeadapter "github.com/fenuasim/portal/internal/payment/adapters/stripe"
	paymentdomain "github.com/fenuasim/portal/internal/payment/domain"
	"github.com/stretchr/testify/require"
)

const secret = "whsec_test"

func signature(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestNewAdapterRequiresSecret(t *testing.T) {
	if _, err := stripeadapter.NewAdapter("  "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	adapter, err := stripeadapter.NewAdapter(secret)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	payload := []byte(`{"id":"evt_1"}`)
	header := http.Header{}
	header.Set("Stripe-Signature", signature(secret, payload, time.Now().Unix()))

	if err := adapter.Verify(context.Background(), payload, header); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsBadSignatures(t *testing.T) {
	adapter, err := stripeadapter.NewAdapter(secret)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	payload := []byte(`{"id":"evt_1"}`)

	cases := map[string]string{
		"missing header":  "",
		"wrong secret":    signature("whsec_other", payload, time.Now().Unix()),
		"malformed":       "t=,v1=",
		"no v1 signature": fmt.Sprintf("t=%d", time.Now().Unix()),
	}
	for name, header := range cases {
		h := http.Header{}
		if header != "" {
			h.Set("Stripe-Signature", header)
		}
		err := adapter.Verify(context.Background(), payload, h)
		if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
			t.Fatalf("%s: expected ErrInvalidSignature, got %v", name, err)
		}
	}
}

func TestVerifyAcceptsAnyMatchingV1Signature(t *testing.T) {
	adapter, err := stripeadapter.NewAdapter(secret)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", now, payload)))
	valid := hex.EncodeToString(mac.Sum(nil))

	// Key rollover sends multiple v1 entries; one match is enough.
	header := http.Header{}
	header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", now, valid))

	if err := adapter.Verify(context.Background(), payload, header); err != nil {
		t.Fatalf("verify with rollover header: %v", err)
	}
}

func TestParseCheckoutSessionCompleted(t *testing.T) {
	adapter, err := stripeadapter.NewAdapter(secret)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1748779200,
		"data": {
			"object": {
				"id": "cs_1",
				"payment_intent": "pi_1",
				"amount_total": 2450,
				"currency": "eur",
				"customer_email": "fallback@example.com",
				"customer_details": {"email": "primary@example.com"},
				"metadata": {
					"partner_code": "FEN-042",
					"partner_user_id": "77",
					"cart": "[{\"name\":\"Asia 3GB\",\"price\":24.5,\"quantity\":1}]"
				}
			}
		}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	require.Equal(t, "stripe", event.Provider)
	require.Equal(t, "evt_1", event.ProviderEventID)
	require.Equal(t, "pi_1", event.PaymentIntentID)
	require.Equal(t, "FEN-042", event.PartnerCode)
	require.Equal(t, "77", event.PartnerUserID)
	require.Equal(t, "primary@example.com", event.CustomerEmail)
	require.EqualValues(t, 2450, event.AmountTotal)
	require.Equal(t, "EUR", event.Currency)
	require.JSONEq(t, `[{"name":"Asia 3GB","price":24.5,"quantity":1}]`, string(event.Cart))
	require.Equal(t, time.Unix(1748779200, 0).UTC(), event.OccurredAt)
}

func TestParseFallsBackToCustomerEmail(t *testing.T) {
	adapter, _ := stripeadapter.NewAdapter(secret)

	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"payment_intent": "pi_1", "customer_email": "fallback@example.com"}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	require.Equal(t, "fallback@example.com", event.CustomerEmail)
}

func TestParseIgnoresOtherEventTypes(t *testing.T) {
	adapter, _ := stripeadapter.NewAdapter(secret)

	payload := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{}}}`)
	_, err := adapter.Parse(context.Background(), payload)
	if !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
}

func TestParseRequiresPaymentIntent(t *testing.T) {
	adapter, _ := stripeadapter.NewAdapter(secret)

	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)
	_, err := adapter.Parse(context.Background(), payload)
	if !errors.Is(err, paymentdomain.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestParseDropsMalformedCartMetadata(t *testing.T) {
	adapter, _ := stripeadapter.NewAdapter(secret)

	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"payment_intent": "pi_1", "metadata": {"cart": "{not json"}}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	require.Empty(t, event.Cart)
}
