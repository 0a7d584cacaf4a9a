package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	partnerdomain "github.com/fenuasim/portal/internal/partner/domain"
	"github.com/gin-gonic/gin"
)

type orderResponse struct {
	ID                string       `json:"id"`
	Status            string       `json:"status"`
	FulfillmentStatus string       `json:"fulfillment_status"`
	TotalAmount       float64      `json:"total_amount"`
	Currency          string       `json:"currency"`
	CustomerEmail     string       `json:"customer_email"`
	PartnerCode       string       `json:"partner_code,omitempty"`
	Sim               *simResponse `json:"sim,omitempty"`
}

type simResponse struct {
	ICCID           string `json:"iccid"`
	QRCodeURL       string `json:"qrcode_url,omitempty"`
	AppleInstallURL string `json:"direct_apple_installation_url,omitempty"`
	DataBalance     string `json:"data,omitempty"`
}

func (s *Server) GetOrderByID(c *gin.Context) {
	userID, ok := s.userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	raw := strings.TrimSpace(c.Param("id"))
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	orderID := snowflake.ID(parsed)

	order, err := s.orders.FindByID(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Orders are scoped by partner attribution. Someone else's order is
	// indistinguishable from a missing one.
	partnerCode, err := s.partnerSvc.AttributionCode(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, partnerdomain.ErrAttributionMissing) {
			AbortWithError(c, ErrNotFound)
			return
		}
		AbortWithError(c, err)
		return
	}
	if order.PartnerCode == nil || *order.PartnerCode != partnerCode {
		AbortWithError(c, ErrNotFound)
		return
	}

	resp := orderResponse{
		ID:                order.ID.String(),
		Status:            order.Status,
		FulfillmentStatus: order.FulfillmentStatus,
		TotalAmount:       order.TotalAmount,
		Currency:          order.Currency,
		CustomerEmail:     order.CustomerEmail,
	}
	if order.PartnerCode != nil {
		resp.PartnerCode = *order.PartnerCode
	}

	sim, err := s.orders.FindProvisionedSim(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if sim != nil {
		resp.Sim = &simResponse{
			ICCID:           sim.ICCID,
			QRCodeURL:       sim.QRCodeURL,
			AppleInstallURL: sim.AppleInstallURL,
			DataBalance:     sim.DataBalance,
		}
	}

	c.JSON(http.StatusOK, resp)
}
