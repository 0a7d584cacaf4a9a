package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	paymentdomain "github.com/fenuasim/portal/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.paymentSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
