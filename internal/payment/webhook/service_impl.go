package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fenuasim/portal/internal/clock"
	obsmetrics "github.com/fenuasim/portal/internal/observability/metrics"
	orderdomain "github.com/fenuasim/portal/internal/order/domain"
	"github.com/fenuasim/portal/internal/payment/adapters"
	paymentdomain "github.com/fenuasim/portal/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// FulfillmentQueue accepts post-commit work. The queue implementation
// lives in internal/fulfillment; the interface here avoids the import
// cycle.
type FulfillmentQueue interface {
	Enqueue(orderID snowflake.ID)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Adapters *adapters.Registry
	Events   paymentdomain.Repository
	Orders   orderdomain.Repository
	Queue    FulfillmentQueue
	GenID    *snowflake.Node
	Clock    clock.Clock
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	adapters *adapters.Registry
	events   paymentdomain.Repository
	orders   orderdomain.Repository
	queue    FulfillmentQueue
	genID    *snowflake.Node
	clock    clock.Clock
	metrics  *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:      p.Log.Named("payment.webhook"),
		adapters: p.Adapters,
		events:   p.Events,
		orders:   p.Orders,
		queue:    p.Queue,
		genID:    p.GenID,
		clock:    p.Clock,
		metrics:  p.Metrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}

	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("webhook event ignored", zap.String("provider", provider))
			return nil
		}
		return err
	}

	s.recordMetric(ctx, provider, event.EventType)

	now := s.clock.Now()
	order := &orderdomain.Order{
		ID:                    s.genID.Generate(),
		StripePaymentIntentID: event.PaymentIntentID,
		CustomerEmail:         event.CustomerEmail,
		TotalAmount:           majorUnits(event.AmountTotal),
		Currency:              event.Currency,
		Status:                orderdomain.StatusPaid,
		FulfillmentStatus:     orderdomain.FulfillmentPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if code := strings.TrimSpace(event.PartnerCode); code != "" {
		order.PartnerCode = &code
	}
	if len(event.Cart) > 0 {
		order.Cart = datatypes.JSON(event.Cart)
	}

	inserted, err := s.orders.InsertIfAbsent(ctx, order)
	if err != nil {
		return err
	}

	// Archive the delivery regardless of dedup outcome. Failures here
	// must not fail the webhook; the order row is the source of truth.
	s.archiveEvent(ctx, event)

	if !inserted {
		s.log.Info("duplicate webhook delivery",
			zap.String("provider", provider),
			zap.String("payment_intent", event.PaymentIntentID),
		)
		return paymentdomain.ErrAlreadyProcessed
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated(ctx, provider)
	}
	s.log.Info("order reconciled",
		zap.String("provider", provider),
		zap.String("payment_intent", event.PaymentIntentID),
		zap.Float64("total_amount", order.TotalAmount),
		zap.String("currency", order.Currency),
	)

	if s.queue != nil {
		s.queue.Enqueue(order.ID)
	}
	return nil
}

func (s *Service) archiveEvent(ctx context.Context, event *paymentdomain.CheckoutEvent) {
	record := &paymentdomain.EventRecord{
		ID:         s.genID.Generate(),
		Provider:   event.Provider,
		EventID:    event.ProviderEventID,
		EventType:  event.EventType,
		Payload:    datatypes.JSON(event.RawPayload),
		ReceivedAt: s.clock.Now(),
	}
	if _, err := s.events.InsertEvent(ctx, record); err != nil {
		s.log.Warn("webhook event archive failed",
			zap.String("provider", event.Provider),
			zap.String("event_id", event.ProviderEventID),
			zap.Error(err),
		)
	}
}

func (s *Service) recordMetric(ctx context.Context, provider, eventType string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordPaymentEvent(ctx, provider, eventType)
}

// majorUnits converts processor minor units to the stored major-unit
// amount with two decimals.
func majorUnits(minor int64) float64 {
	return math.Round(float64(minor)) / 100
}
