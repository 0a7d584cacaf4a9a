// Package fulfillment turns paid orders into provisioned SIMs. Work is
// queued in process after the webhook commits; orders that never reach
// the queue stay pending and are recovered on startup.
package fulfillment

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fenuasim/portal/internal/clock"
	"github.com/fenuasim/portal/internal/config"
	"github.com/fenuasim/portal/internal/notification"
	obsmetrics "github.com/fenuasim/portal/internal/observability/metrics"
	orderdomain "github.com/fenuasim/portal/internal/order/domain"
	"github.com/fenuasim/portal/internal/providers/esim"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const recoveryBatchSize = 100

// Provisioner creates upstream SIM orders.
type Provisioner interface {
	CreateOrder(ctx context.Context, packageID string, quantity int) (*esim.ProvisionedSim, error)
}

// Notifier delivers the activation email for a provisioned order.
type Notifier interface {
	SendActivation(ctx context.Context, orderID snowflake.ID, recipient string, data notification.ActivationData) error
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Orders      orderdomain.Repository
	Provisioner Provisioner
	Notifier    Notifier
	Holder      *config.PortalConfigHolder
	GenID       *snowflake.Node
	Clock       clock.Clock
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

// Queue is a single-worker fulfillment pipeline backed by a buffered
// channel.
type Queue struct {
	log         *zap.Logger
	orders      orderdomain.Repository
	provisioner Provisioner
	notifier    Notifier
	holder      *config.PortalConfigHolder
	genID       *snowflake.Node
	clock       clock.Clock
	metrics     *obsmetrics.Metrics

	work   chan snowflake.ID
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueue(p Params) *Queue {
	size := p.Holder.Current().Fulfillment.QueueSize
	return &Queue{
		log:         p.Log.Named("fulfillment.queue"),
		orders:      p.Orders,
		provisioner: p.Provisioner,
		notifier:    p.Notifier,
		holder:      p.Holder,
		genID:       p.GenID,
		clock:       p.Clock,
		metrics:     p.Metrics,
		work:        make(chan snowflake.ID, size),
	}
}

// Enqueue hands an order to the worker without blocking the caller. A
// full queue is logged and the order stays pending; startup recovery
// picks it up on the next boot.
func (q *Queue) Enqueue(orderID snowflake.ID) {
	select {
	case q.work <- orderID:
	default:
		q.log.Warn("fulfillment queue full, order left pending",
			zap.String("order_id", orderID.String()),
		)
	}
}

// Start recovers pending orders from storage and launches the worker.
func (q *Queue) Start(ctx context.Context) error {
	pending, err := q.orders.ListPendingFulfillment(ctx, recoveryBatchSize)
	if err != nil {
		return err
	}
	for _, order := range pending {
		q.Enqueue(order.ID)
	}
	if len(pending) > 0 {
		q.log.Info("recovered pending orders", zap.Int("count", len(pending)))
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.wg.Add(1)
	go q.run(workerCtx)
	return nil
}

// Stop cancels the worker and waits for the in-flight order to finish.
func (q *Queue) Stop(ctx context.Context) error {
	if q.cancel != nil {
		q.cancel()
	}
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case orderID := <-q.work:
			q.Process(ctx, orderID)
		}
	}
}

// Process provisions a single order. It is safe to call more than once
// for the same order: completed and manual orders are skipped, and a
// SIM saved by an earlier attempt short-circuits provisioning.
func (q *Queue) Process(ctx context.Context, orderID snowflake.ID) {
	log := q.log.With(zap.String("order_id", orderID.String()))

	order, err := q.orders.FindByID(ctx, orderID)
	if err != nil {
		log.Error("order load failed", zap.Error(err))
		return
	}
	if order.FulfillmentStatus != orderdomain.FulfillmentPending {
		log.Debug("order not pending, skipping",
			zap.String("fulfillment_status", order.FulfillmentStatus),
		)
		return
	}

	sim, err := q.orders.FindProvisionedSim(ctx, orderID)
	if err != nil {
		log.Error("provisioned sim lookup failed", zap.Error(err))
		return
	}
	if sim == nil {
		packageID, quantity, ok := packageFromCart(order.Cart)
		if !ok {
			log.Warn("cart has no provisionable package, marking manual")
			q.markManual(ctx, orderID)
			return
		}
		provisioned := q.provisionWithRetry(ctx, log, packageID, quantity)
		if provisioned == nil {
			q.markManual(ctx, orderID)
			return
		}
		sim = &orderdomain.ProvisionedSim{
			ID:              q.genID.Generate(),
			OrderID:         orderID,
			ProviderOrderID: provisioned.ProviderOrderID,
			ICCID:           provisioned.ICCID,
			QRCodeURL:       provisioned.QRCodeURL,
			AppleInstallURL: provisioned.AppleInstallURL,
			DataBalance:     provisioned.DataBalance,
			CreatedAt:       q.clock.Now().UTC(),
		}
		if _, err := q.orders.SaveProvisionedSim(ctx, sim); err != nil {
			log.Error("provisioned sim save failed", zap.Error(err))
			q.markManual(ctx, orderID)
			return
		}
	}

	q.notify(ctx, log, order, sim)

	if err := q.orders.UpdateFulfillmentStatus(ctx, orderID, orderdomain.FulfillmentCompleted); err != nil {
		log.Error("fulfillment status update failed", zap.Error(err))
		return
	}
	if q.metrics != nil {
		q.metrics.RecordFulfillment(ctx, orderdomain.FulfillmentCompleted)
	}
	log.Info("order fulfilled", zap.String("iccid", sim.ICCID))
}

func (q *Queue) provisionWithRetry(ctx context.Context, log *zap.Logger, packageID string, quantity int) *esim.ProvisionedSim {
	policy := q.holder.Current().Fulfillment
	backoff := time.Duration(policy.RetryBackoffSeconds) * time.Second

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		sim, err := q.provisioner.CreateOrder(ctx, packageID, quantity)
		if err == nil {
			return sim
		}
		log.Warn("provisioning attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Error(err),
		)
		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
	return nil
}

func (q *Queue) notify(ctx context.Context, log *zap.Logger, order *orderdomain.Order, sim *orderdomain.ProvisionedSim) {
	recipient := strings.TrimSpace(order.CustomerEmail)
	if recipient == "" {
		log.Warn("order has no customer email, skipping activation email")
		return
	}
	// Email failure is recorded by the notifier; the SIM is already
	// saved, so the order still completes.
	_ = q.notifier.SendActivation(ctx, order.ID, recipient, notification.ActivationData{
		ICCID:           sim.ICCID,
		QRCodeURL:       sim.QRCodeURL,
		AppleInstallURL: sim.AppleInstallURL,
		DataBalance:     sim.DataBalance,
	})
}

func (q *Queue) markManual(ctx context.Context, orderID snowflake.ID) {
	if err := q.orders.UpdateFulfillmentStatus(ctx, orderID, orderdomain.FulfillmentManual); err != nil {
		q.log.Error("manual status update failed",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return
	}
	if q.metrics != nil {
		q.metrics.RecordFulfillment(ctx, orderdomain.FulfillmentManual)
	}
}

type cartItem struct {
	PackageID string `json:"airalo_id"`
	Quantity  int    `json:"quantity"`
}

// packageFromCart extracts the upstream package of the first cart item.
func packageFromCart(cart []byte) (string, int, bool) {
	if len(cart) == 0 {
		return "", 0, false
	}
	var items []cartItem
	if err := json.Unmarshal(cart, &items); err != nil || len(items) == 0 {
		return "", 0, false
	}
	packageID := strings.TrimSpace(items[0].PackageID)
	if packageID == "" {
		return "", 0, false
	}
	quantity := items[0].Quantity
	if quantity <= 0 {
		quantity = 1
	}
	return packageID, quantity, true
}
