package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fenuasim/portal/internal/auth/session"
	"github.com/fenuasim/portal/internal/config"
	orderdomain "github.com/fenuasim/portal/internal/order/domain"
	partnerdomain "github.com/fenuasim/portal/internal/partner/domain"
	"github.com/gin-gonic/gin"
)

type fakeOrderRepo struct {
	orders map[snowflake.ID]*orderdomain.Order
	sims   map[snowflake.ID]*orderdomain.ProvisionedSim
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders: map[snowflake.ID]*orderdomain.Order{},
		sims:   map[snowflake.ID]*orderdomain.ProvisionedSim{},
	}
}

func (f *fakeOrderRepo) InsertIfAbsent(ctx context.Context, order *orderdomain.Order) (bool, error) {
	_ = ctx
	for _, existing := range f.orders {
		if existing.StripePaymentIntentID == order.StripePaymentIntentID {
			return false, nil
		}
	}
	f.orders[order.ID] = order
	return true, nil
}

func (f *fakeOrderRepo) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*orderdomain.Order, error) {
	_ = ctx
	for _, order := range f.orders {
		if order.StripePaymentIntentID == paymentIntentID {
			return order, nil
		}
	}
	return nil, orderdomain.ErrOrderNotFound
}

func (f *fakeOrderRepo) FindByID(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	_ = ctx
	order, ok := f.orders[id]
	if !ok {
		return nil, orderdomain.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeOrderRepo) UpdateFulfillmentStatus(ctx context.Context, id snowflake.ID, status string) error {
	_ = ctx
	order, ok := f.orders[id]
	if !ok {
		return orderdomain.ErrOrderNotFound
	}
	order.FulfillmentStatus = status
	return nil
}

func (f *fakeOrderRepo) ListPendingFulfillment(ctx context.Context, limit int) ([]orderdomain.Order, error) {
	_ = ctx
	_ = limit
	return nil, nil
}

func (f *fakeOrderRepo) SaveProvisionedSim(ctx context.Context, sim *orderdomain.ProvisionedSim) (bool, error) {
	_ = ctx
	if _, ok := f.sims[sim.OrderID]; ok {
		return false, nil
	}
	f.sims[sim.OrderID] = sim
	return true, nil
}

func (f *fakeOrderRepo) FindProvisionedSim(ctx context.Context, orderID snowflake.ID) (*orderdomain.ProvisionedSim, error) {
	_ = ctx
	return f.sims[orderID], nil
}

func seedPartnerOrder(repo *fakeOrderRepo, partnerCode string) *orderdomain.Order {
	code := partnerCode
	order := &orderdomain.Order{
		ID:                    snowflake.ID(7001),
		StripePaymentIntentID: "pi_1",
		CustomerEmail:         "traveler@example.com",
		TotalAmount:           19.90,
		Currency:              "EUR",
		Status:                orderdomain.StatusPaid,
		FulfillmentStatus:     orderdomain.FulfillmentCompleted,
		CreatedAt:             time.Now().UTC(),
		UpdatedAt:             time.Now().UTC(),
	}
	if code != "" {
		order.PartnerCode = &code
	}
	repo.orders[order.ID] = order
	repo.sims[order.ID] = &orderdomain.ProvisionedSim{
		ID:        snowflake.ID(7002),
		OrderID:   order.ID,
		ICCID:     "8988303000000000001",
		QRCodeURL: "https://sim.example.com/qr/abc",
	}
	return order
}

func newOrdersTestRouter(repo *fakeOrderRepo, partnerSvc partnerdomain.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)

	srv := &Server{
		cfg:        config.Config{},
		authsvc:    &fakeAuthService{},
		sessions:   session.NewManager(config.Config{}),
		partnerSvc: partnerSvc,
		orders:     repo,
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/api/orders/:id", srv.AuthRequired(), srv.GetOrderByID)
	return router
}

func getOrder(router *gin.Engine, orderID snowflake.ID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/orders/%s", orderID), nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "session-token"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestGetOrderByIDReturnsOwnOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	order := seedPartnerOrder(repo, "FEN-042")
	partnerSvc := &fakePartnerService{
		profile: &partnerdomain.Profile{UserID: snowflake.ID(200), PartnerCode: "FEN-042"},
	}
	router := newOrdersTestRouter(repo, partnerSvc)

	resp := getOrder(router, order.ID)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body orderResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.PartnerCode != "FEN-042" {
		t.Fatalf("expected partner code, got %q", body.PartnerCode)
	}
	if body.Sim == nil || body.Sim.ICCID != "8988303000000000001" {
		t.Fatalf("expected provisioned sim in response, got %+v", body.Sim)
	}
}

func TestGetOrderByIDHidesOtherPartnersOrders(t *testing.T) {
	repo := newFakeOrderRepo()
	order := seedPartnerOrder(repo, "FEN-042")
	partnerSvc := &fakePartnerService{
		profile: &partnerdomain.Profile{UserID: snowflake.ID(200), PartnerCode: "FEN-999"},
	}
	router := newOrdersTestRouter(repo, partnerSvc)

	resp := getOrder(router, order.ID)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for another partner's order, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestGetOrderByIDRequiresPartnerProfile(t *testing.T) {
	repo := newFakeOrderRepo()
	order := seedPartnerOrder(repo, "FEN-042")
	router := newOrdersTestRouter(repo, &fakePartnerService{})

	resp := getOrder(router, order.ID)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 without a partner profile, got %d", resp.Code)
	}
}

func TestGetOrderByIDHidesUnattributedOrders(t *testing.T) {
	repo := newFakeOrderRepo()
	order := seedPartnerOrder(repo, "")
	partnerSvc := &fakePartnerService{
		profile: &partnerdomain.Profile{UserID: snowflake.ID(200), PartnerCode: "FEN-042"},
	}
	router := newOrdersTestRouter(repo, partnerSvc)

	resp := getOrder(router, order.ID)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for an unattributed order, got %d", resp.Code)
	}
}
