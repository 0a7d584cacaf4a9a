package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/fenuasim/portal/internal/order/domain"
	partnerdomain "github.com/fenuasim/portal/internal/partner/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

type CreateEsimOrderRequest struct {
	PackageID string `json:"package_id"`
	Quantity  int    `json:"quantity"`
}

func (s *Server) CreateEsimOrder(c *gin.Context) {
	userID, ok := s.userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req CreateEsimOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.PackageID) == "" {
		AbortWithError(c, newValidationError("package_id", "required", "package id is required"))
		return
	}

	sim, err := s.esimClient.CreateOrder(c.Request.Context(), req.PackageID, req.Quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.recordBackOfficeOrder(c, userID, req, sim.ProviderOrderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record := &orderdomain.ProvisionedSim{
		ID:              s.genID.Generate(),
		OrderID:         order.ID,
		ProviderOrderID: sim.ProviderOrderID,
		ICCID:           sim.ICCID,
		QRCodeURL:       sim.QRCodeURL,
		AppleInstallURL: sim.AppleInstallURL,
		DataBalance:     sim.DataBalance,
		CreatedAt:       time.Now().UTC(),
	}
	if _, err := s.orders.SaveProvisionedSim(c.Request.Context(), record); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"id":       sim.ProviderOrderID,
			"order_id": order.ID.String(),
			"sims": []gin.H{
				{
					"iccid":                         sim.ICCID,
					"qrcode_url":                    sim.QRCodeURL,
					"direct_apple_installation_url": sim.AppleInstallURL,
				},
			},
			"data": sim.DataBalance,
		},
	})
}

// recordBackOfficeOrder persists an order row for a direct provisioning
// so the SIM is reconcilable alongside webhook-driven orders.
func (s *Server) recordBackOfficeOrder(c *gin.Context, userID snowflake.ID, req CreateEsimOrderRequest, providerOrderID string) (*orderdomain.Order, error) {
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	cart, err := json.Marshal([]map[string]any{
		{"airalo_id": strings.TrimSpace(req.PackageID), "quantity": quantity},
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &orderdomain.Order{
		ID: s.genID.Generate(),
		// No payment intent exists; the provider order id keys the row.
		StripePaymentIntentID: fmt.Sprintf("backoffice_%s", providerOrderID),
		TotalAmount:           0,
		Currency:              "EUR",
		Status:                orderdomain.StatusBackOffice,
		FulfillmentStatus:     orderdomain.FulfillmentCompleted,
		Cart:                  datatypes.JSON(cart),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	partnerCode, err := s.partnerSvc.AttributionCode(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, partnerdomain.ErrAttributionMissing) {
		return nil, err
	}
	if partnerCode != "" {
		order.PartnerCode = &partnerCode
	}

	if _, err := s.orders.InsertIfAbsent(c.Request.Context(), order); err != nil {
		return nil, err
	}
	return order, nil
}
