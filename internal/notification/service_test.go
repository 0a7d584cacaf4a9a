package notification_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fenuasim/portal/internal/clock"
	"github.com/fenuasim/portal/internal/notification"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeProvider struct {
	err error

	to      []string
	subject string
	body    string
}

func (f *fakeProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	f.to = to
	f.subject = subject
	f.body = htmlBody
	return f.err
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE sent_emails (
			id BIGINT PRIMARY KEY,
			order_id BIGINT,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

func newNotificationService(t *testing.T, db *gorm.DB, provider *fakeProvider) *notification.Service {
	t.Helper()

	node, err := snowflake.NewNode(16)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	svc, err := notification.NewService(notification.Params{
		Log:    zap.NewNop(),
		DB:     db,
		Emails: provider,
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func activationData() notification.ActivationData {
	return notification.ActivationData{
		ICCID:           "8988303000000000001",
		QRCodeURL:       "https://sim.example.com/qr/abc",
		AppleInstallURL: "https://esimsetup.apple.com/esim_qrcode_provisioning?carddata=abc",
		DataBalance:     "5 GB",
	}
}

func TestSendActivationRendersAndArchives(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	provider := &fakeProvider{}
	svc := newNotificationService(t, db, provider)
	orderID := snowflake.ID(42)

	if err := svc.SendActivation(ctx, orderID, "traveler@example.com", activationData()); err != nil {
		t.Fatalf("send activation: %v", err)
	}

	require.Equal(t, []string{"traveler@example.com"}, provider.to)
	require.Equal(t, "Your eSIM is ready", provider.subject)
	require.Contains(t, provider.body, "8988303000000000001")
	require.Contains(t, provider.body, "https://sim.example.com/qr/abc")
	require.Contains(t, provider.body, "Install on iPhone")
	require.Contains(t, provider.body, "5 GB")

	var record notification.SentEmail
	if err := db.First(&record).Error; err != nil {
		t.Fatalf("load archive row: %v", err)
	}
	require.Equal(t, "traveler@example.com", record.Recipient)
	require.Equal(t, notification.StatusSent, record.Status)
	require.Empty(t, record.ErrorMessage)
	require.NotNil(t, record.OrderID)
	require.Equal(t, orderID, *record.OrderID)
}

func TestSendActivationArchivesFailure(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	provider := &fakeProvider{err: errors.New("smtp unreachable")}
	svc := newNotificationService(t, db, provider)

	err := svc.SendActivation(ctx, snowflake.ID(42), "traveler@example.com", activationData())
	require.Error(t, err)

	var record notification.SentEmail
	if err := db.First(&record).Error; err != nil {
		t.Fatalf("load archive row: %v", err)
	}
	require.Equal(t, notification.StatusFailed, record.Status)
	require.Equal(t, "smtp unreachable", record.ErrorMessage)
}

func TestSendActivationOmitsEmptySections(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	provider := &fakeProvider{}
	svc := newNotificationService(t, db, provider)

	data := notification.ActivationData{ICCID: "8988303000000000001"}
	if err := svc.SendActivation(ctx, snowflake.ID(42), "traveler@example.com", data); err != nil {
		t.Fatalf("send activation: %v", err)
	}

	require.NotContains(t, provider.body, "Install on iPhone")
	require.NotContains(t, provider.body, "Scan this QR code")
}
