package server

import (
	"errors"
	"net/http"
	"strings"

	authdomain "github.com/fenuasim/portal/internal/auth/domain"
	partnerdomain "github.com/fenuasim/portal/internal/partner/domain"
	"github.com/gin-gonic/gin"
)

type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PartnerCode string `json:"partner_code,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

func (s *Server) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.authsvc.CreateUser(c.Request.Context(), authdomain.CreateUserRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, userResponse{
		ID:          user.ID.String(),
		Email:       user.Email,
		DisplayName: user.DisplayName,
	})
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)

	c.JSON(http.StatusOK, userResponse{
		ID:          result.User.ID.String(),
		Email:       result.User.Email,
		DisplayName: result.User.DisplayName,
	})
}

func (s *Server) Logout(c *gin.Context) {
	if token, ok := s.sessions.ReadToken(c); ok {
		// A stale cookie still gets cleared below.
		_ = s.authsvc.Logout(c.Request.Context(), token)
	}

	s.sessions.Clear(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Me(c *gin.Context) {
	userID, ok := s.userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	user, err := s.authsvc.UserByID(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := userResponse{
		ID:          user.ID.String(),
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}

	profile, err := s.partnerSvc.ProfileByUserID(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, partnerdomain.ErrProfileNotFound) {
		AbortWithError(c, err)
		return
	}
	if profile != nil {
		resp.PartnerCode = profile.PartnerCode
		resp.CompanyName = profile.CompanyName
	}

	c.JSON(http.StatusOK, resp)
}
