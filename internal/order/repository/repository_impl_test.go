package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fenuasim/portal/internal/order/domain"
	"github.com/fenuasim/portal/internal/order/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			stripe_payment_intent_id TEXT NOT NULL,
			partner_code TEXT,
			customer_email TEXT NOT NULL DEFAULT '',
			total_amount NUMERIC(12,2) NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			fulfillment_status TEXT NOT NULL DEFAULT 'pending',
			cart TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_orders_stripe_payment_intent_id ON orders(stripe_payment_intent_id)`,
		`CREATE TABLE provisioned_sims (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			provider_order_id TEXT NOT NULL,
			iccid TEXT NOT NULL,
			qr_code_url TEXT NOT NULL DEFAULT '',
			apple_install_url TEXT NOT NULL DEFAULT '',
			data_balance TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_provisioned_sims_order_id ON provisioned_sims(order_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

func newOrder(node *snowflake.Node, paymentIntentID string) *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID:                    node.Generate(),
		StripePaymentIntentID: paymentIntentID,
		CustomerEmail:         "traveler@example.com",
		TotalAmount:           19.90,
		Currency:              "EUR",
		Status:                domain.StatusPaid,
		FulfillmentStatus:     domain.FulfillmentPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func TestInsertIfAbsentDeduplicatesByPaymentIntent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.New(db)

	node, err := snowflake.NewNode(11)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	first := newOrder(node, "pi_1")
	inserted, err := repo.InsertIfAbsent(ctx, first)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	require.True(t, inserted)

	second := newOrder(node, "pi_1")
	inserted, err = repo.InsertIfAbsent(ctx, second)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	require.False(t, inserted)

	var count int64
	if err := db.Raw("SELECT COUNT(1) FROM orders").Scan(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	require.EqualValues(t, 1, count)

	// The surviving row is the first delivery.
	found, err := repo.FindByPaymentIntent(ctx, "pi_1")
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	require.Equal(t, first.ID, found.ID)
}

func TestUpdateFulfillmentStatus(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.New(db)

	node, _ := snowflake.NewNode(11)
	order := newOrder(node, "pi_1")
	if _, err := repo.InsertIfAbsent(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := repo.UpdateFulfillmentStatus(ctx, order.ID, domain.FulfillmentCompleted); err != nil {
		t.Fatalf("update status: %v", err)
	}

	found, err := repo.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	require.Equal(t, domain.FulfillmentCompleted, found.FulfillmentStatus)

	err = repo.UpdateFulfillmentStatus(ctx, node.Generate(), domain.FulfillmentCompleted)
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestListPendingFulfillmentOldestFirst(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.New(db)

	node, _ := snowflake.NewNode(11)

	older := newOrder(node, "pi_1")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newOrder(node, "pi_2")
	done := newOrder(node, "pi_3")
	done.FulfillmentStatus = domain.FulfillmentCompleted

	for _, order := range []*domain.Order{newer, older, done} {
		if _, err := repo.InsertIfAbsent(ctx, order); err != nil {
			t.Fatalf("insert %s: %v", order.StripePaymentIntentID, err)
		}
	}

	pending, err := repo.ListPendingFulfillment(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	require.Len(t, pending, 2)
	require.Equal(t, older.ID, pending[0].ID)
	require.Equal(t, newer.ID, pending[1].ID)
}

func TestSaveProvisionedSimDeduplicatesByOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.New(db)

	node, _ := snowflake.NewNode(11)
	order := newOrder(node, "pi_1")
	if _, err := repo.InsertIfAbsent(ctx, order); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	sim := &domain.ProvisionedSim{
		ID:              node.Generate(),
		OrderID:         order.ID,
		ProviderOrderID: "998877",
		ICCID:           "8988303000000000001",
		QRCodeURL:       "https://sim.example.com/qr/abc",
		CreatedAt:       time.Now().UTC(),
	}
	inserted, err := repo.SaveProvisionedSim(ctx, sim)
	if err != nil {
		t.Fatalf("save sim: %v", err)
	}
	require.True(t, inserted)

	duplicate := *sim
	duplicate.ID = node.Generate()
	inserted, err = repo.SaveProvisionedSim(ctx, &duplicate)
	if err != nil {
		t.Fatalf("save duplicate sim: %v", err)
	}
	require.False(t, inserted)

	found, err := repo.FindProvisionedSim(ctx, order.ID)
	if err != nil {
		t.Fatalf("find sim: %v", err)
	}
	require.NotNil(t, found)
	require.Equal(t, sim.ID, found.ID)

	missing, err := repo.FindProvisionedSim(ctx, node.Generate())
	if err != nil {
		t.Fatalf("find missing sim: %v", err)
	}
	require.Nil(t, missing)
}
