package server

import (
	"net/http"

	"github.com/fenuasim/portal/internal/checkout"
	"github.com/gin-gonic/gin"
)

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	userID, ok := s.userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req checkout.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.checkoutSvc.CreateSession(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}
