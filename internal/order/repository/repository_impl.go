package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/fenuasim/portal/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) InsertIfAbsent(ctx context.Context, order *domain.Order) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, stripe_payment_intent_id, partner_code, customer_email,
			total_amount, currency, status, fulfillment_status, cart,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (stripe_payment_intent_id) DO NOTHING`,
		order.ID,
		order.StripePaymentIntentID,
		order.PartnerCode,
		order.CustomerEmail,
		order.TotalAmount,
		order.Currency,
		order.Status,
		order.FulfillmentStatus,
		order.Cart,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).Where("stripe_payment_intent_id = ?", paymentIntentID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repo) UpdateFulfillmentStatus(ctx context.Context, id snowflake.ID, status string) error {
	tx := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"fulfillment_status": status,
			"updated_at":         gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *repo) ListPendingFulfillment(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []domain.Order
	err := r.db.WithContext(ctx).
		Where("fulfillment_status = ?", domain.FulfillmentPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) SaveProvisionedSim(ctx context.Context, sim *domain.ProvisionedSim) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO provisioned_sims (
			id, order_id, provider_order_id, iccid, qr_code_url,
			apple_install_url, data_balance, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_id) DO NOTHING`,
		sim.ID,
		sim.OrderID,
		sim.ProviderOrderID,
		sim.ICCID,
		sim.QRCodeURL,
		sim.AppleInstallURL,
		sim.DataBalance,
		sim.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindProvisionedSim(ctx context.Context, orderID snowflake.ID) (*domain.ProvisionedSim, error) {
	var sim domain.ProvisionedSim
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&sim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sim, nil
}
