// Package checkout builds processor checkout sessions for partner carts.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fenuasim/portal/internal/config"
	partnerdomain "github.com/fenuasim/portal/internal/partner/domain"
	stripe "github.com/stripe/stripe-go/v82"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	checkoutCurrency = "eur"
	channelName      = "partner_portal"
	maxCartNameLen   = 80
)

type CartItem struct {
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int64   `json:"quantity"`
	PackageID string  `json:"airalo_id"`
}

type CreateSessionRequest struct {
	CartItems     []CartItem `json:"cartItems"`
	CustomerEmail string     `json:"customer_email"`
}

type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Partners partnerdomain.Service
	Sessions SessionCreator
}

type Service struct {
	log      *zap.Logger
	cfg      config.Config
	partners partnerdomain.Service
	sessions SessionCreator
}

func NewService(p Params) *Service {
	return &Service{
		log:      p.Log.Named("checkout.service"),
		cfg:      p.Cfg,
		partners: p.Partners,
		sessions: p.Sessions,
	}
}

// CreateSession builds a hosted checkout session. The partner code is
// always re-derived from the caller's profile; anything supplied in the
// request body is ignored.
func (s *Service) CreateSession(ctx context.Context, userID snowflake.ID, req CreateSessionRequest) (*Session, error) {
	if len(req.CartItems) == 0 {
		return nil, ErrEmptyCart
	}
	for _, item := range req.CartItems {
		if strings.TrimSpace(item.Name) == "" || item.Price <= 0 || item.Quantity <= 0 {
			return nil, ErrInvalidCart
		}
	}
	if s.cfg.BaseURL == "" {
		return nil, ErrBaseURLMissing
	}

	partnerCode, err := s.partners.AttributionCode(ctx, userID)
	if err != nil {
		return nil, err
	}

	cartJSON, err := compactCart(req.CartItems)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(s.cfg.BaseURL + "/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(s.cfg.BaseURL + "/shop"),
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	for _, item := range req.CartItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(checkoutCurrency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(truncateName(item.Name)),
				},
				UnitAmount: stripe.Int64(minorUnits(item.Price)),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	// Attribution and the cart snapshot ride on both the session and the
	// payment intent so reconciliation works from either object. The
	// webhook reads the session copy.
	params.AddMetadata("partner_code", partnerCode)
	params.AddMetadata("channel", channelName)
	params.AddMetadata("partner_user_id", userID.String())
	params.AddMetadata("cart", string(cartJSON))
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		Metadata: map[string]string{
			"partner_code":    partnerCode,
			"channel":         channelName,
			"partner_user_id": userID.String(),
			"cart":            string(cartJSON),
		},
	}

	created, err := s.sessions.Create(ctx, params)
	if err != nil {
		s.log.Error("checkout session creation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSessionCreate, err)
	}

	s.log.Info("checkout session created",
		zap.String("session_id", created.ID),
		zap.String("partner_code", partnerCode),
		zap.Int("items", len(req.CartItems)),
	)
	return &Session{ID: created.ID, URL: created.URL}, nil
}

// compactCart serializes the cart for processor metadata, which caps
// values at 500 characters. Names are truncated to keep it small.
func compactCart(items []CartItem) ([]byte, error) {
	type compactItem struct {
		Name      string  `json:"name"`
		Price     float64 `json:"price"`
		Quantity  int64   `json:"quantity"`
		PackageID string  `json:"airalo_id,omitempty"`
	}

	compact := make([]compactItem, 0, len(items))
	for _, item := range items {
		compact = append(compact, compactItem{
			Name:      truncateName(item.Name),
			Price:     item.Price,
			Quantity:  item.Quantity,
			PackageID: strings.TrimSpace(item.PackageID),
		})
	}
	return json.Marshal(compact)
}

func truncateName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > maxCartNameLen {
		return name[:maxCartNameLen]
	}
	return name
}

func minorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}
