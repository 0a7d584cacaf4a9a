package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/fenuasim/portal/internal/auth/domain"
	"github.com/fenuasim/portal/internal/auth/session"
	"github.com/fenuasim/portal/internal/config"
	partnerdomain "github.com/fenuasim/portal/internal/partner/domain"
	"github.com/gin-gonic/gin"
)

type fakeAuthService struct {
	createUserCalls int
	loginCalls      int
	logoutCalls     int
	loginErr        error
	authErr         error
	user            *authdomain.User
}

func (f *fakeAuthService) CreateUser(ctx context.Context, req authdomain.CreateUserRequest) (*authdomain.User, error) {
	f.createUserCalls++
	_ = ctx
	return &authdomain.User{
		ID:          snowflake.ID(200),
		Email:       strings.ToLower(req.Email),
		DisplayName: req.DisplayName,
	}, nil
}

func (f *fakeAuthService) Login(ctx context.Context, req authdomain.LoginRequest) (*authdomain.LoginResult, error) {
	f.loginCalls++
	_ = ctx
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &authdomain.LoginResult{
		User: &authdomain.User{
			ID:    snowflake.ID(200),
			Email: req.Email,
		},
		RawToken:  "session-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeAuthService) Logout(ctx context.Context, rawToken string) error {
	f.logoutCalls++
	_ = ctx
	_ = rawToken
	return nil
}

func (f *fakeAuthService) Authenticate(ctx context.Context, rawToken string) (*authdomain.Session, error) {
	_ = ctx
	_ = rawToken
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &authdomain.Session{
		ID:     snowflake.ID(300),
		UserID: snowflake.ID(200),
	}, nil
}

func (f *fakeAuthService) UserByID(ctx context.Context, id snowflake.ID) (*authdomain.User, error) {
	_ = ctx
	if f.user != nil {
		return f.user, nil
	}
	return &authdomain.User{ID: id, Email: "partner@example.com", DisplayName: "partner"}, nil
}

type fakePartnerService struct {
	profile *partnerdomain.Profile
}

func (f *fakePartnerService) AttributionCode(ctx context.Context, userID snowflake.ID) (string, error) {
	_ = ctx
	_ = userID
	if f.profile == nil {
		return "", partnerdomain.ErrAttributionMissing
	}
	return f.profile.PartnerCode, nil
}

func (f *fakePartnerService) ProfileByUserID(ctx context.Context, userID snowflake.ID) (*partnerdomain.Profile, error) {
	_ = ctx
	_ = userID
	if f.profile == nil {
		return nil, partnerdomain.ErrProfileNotFound
	}
	return f.profile, nil
}

func newAuthTestServer(authsvc authdomain.Service, partnerSvc partnerdomain.Service) (*Server, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	srv := &Server{
		cfg:        config.Config{},
		authsvc:    authsvc,
		sessions:   session.NewManager(config.Config{}),
		partnerSvc: partnerSvc,
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/auth/signup", srv.Signup)
	router.POST("/auth/login", srv.Login)
	router.POST("/auth/logout", srv.Logout)
	router.GET("/auth/me", srv.AuthRequired(), srv.Me)
	return srv, router
}

func TestSignupHandlerCreatesUser(t *testing.T) {
	authsvc := &fakeAuthService{}
	_, router := newAuthTestServer(authsvc, &fakePartnerService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", bytes.NewBufferString(`{"email":"Partner@Example.com","password":"correct-horse"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if authsvc.createUserCalls != 1 {
		t.Fatalf("expected 1 create user call, got %d", authsvc.createUserCalls)
	}

	var body userResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Email != "partner@example.com" {
		t.Fatalf("expected lowercased email, got %q", body.Email)
	}
}

func TestSignupHandlerRejectsMalformedJSON(t *testing.T) {
	authsvc := &fakeAuthService{}
	_, router := newAuthTestServer(authsvc, &fakePartnerService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", bytes.NewBufferString(`{`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if authsvc.createUserCalls != 0 {
		t.Fatal("expected create user not to be called")
	}
}

func TestLoginHandlerSetsSessionCookie(t *testing.T) {
	_, router := newAuthTestServer(&fakeAuthService{}, &fakePartnerService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"email":"partner@example.com","password":"correct-horse"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	cookie := resp.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, session.DefaultCookieName+"=session-token") {
		t.Fatalf("expected session cookie, got %q", cookie)
	}
	if !strings.Contains(cookie, "HttpOnly") {
		t.Fatalf("expected HttpOnly cookie, got %q", cookie)
	}
}

func TestLoginHandlerRejectsInvalidCredentials(t *testing.T) {
	_, router := newAuthTestServer(&fakeAuthService{loginErr: authdomain.ErrInvalidCredentials}, &fakePartnerService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"email":"partner@example.com","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if resp.Header().Get("Set-Cookie") != "" {
		t.Fatal("expected no session cookie on failed login")
	}
}

func TestLogoutHandlerClearsCookie(t *testing.T) {
	authsvc := &fakeAuthService{}
	_, router := newAuthTestServer(authsvc, &fakePartnerService{})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "session-token"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if authsvc.logoutCalls != 1 {
		t.Fatalf("expected 1 logout call, got %d", authsvc.logoutCalls)
	}
	if !strings.Contains(resp.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Fatalf("expected expired cookie, got %q", resp.Header().Get("Set-Cookie"))
	}
}

func TestAuthRequiredRejectsMissingCookie(t *testing.T) {
	_, router := newAuthTestServer(&fakeAuthService{}, &fakePartnerService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestAuthRequiredRejectsExpiredSession(t *testing.T) {
	_, router := newAuthTestServer(&fakeAuthService{authErr: authdomain.ErrSessionExpired}, &fakePartnerService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "stale-token"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestMeHandlerIncludesPartnerProfile(t *testing.T) {
	partnerSvc := &fakePartnerService{
		profile: &partnerdomain.Profile{
			UserID:      snowflake.ID(200),
			PartnerCode: "FEN-042",
			CompanyName: "Pacific Travel SARL",
		},
	}
	_, router := newAuthTestServer(&fakeAuthService{}, partnerSvc)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "session-token"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body userResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.PartnerCode != "FEN-042" {
		t.Fatalf("expected partner code, got %q", body.PartnerCode)
	}
	if body.CompanyName != "Pacific Travel SARL" {
		t.Fatalf("expected company name, got %q", body.CompanyName)
	}
}

func TestMeHandlerToleratesMissingProfile(t *testing.T) {
	_, router := newAuthTestServer(&fakeAuthService{}, &fakePartnerService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: "session-token"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if strings.Contains(resp.Body.String(), "partner_code") {
		t.Fatalf("expected no partner_code field, got %s", resp.Body.String())
	}
}
