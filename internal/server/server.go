package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fenuasim/portal/internal/auth"
	authdomain "github.com/fenuasim/portal/internal/auth/domain"
	"github.com/fenuasim/portal/internal/auth/session"
	"github.com/fenuasim/portal/internal/catalog"
	"github.com/fenuasim/portal/internal/checkout"
	"github.com/fenuasim/portal/internal/config"
	"github.com/fenuasim/portal/internal/fulfillment"
	"github.com/fenuasim/portal/internal/notification"
	"github.com/fenuasim/portal/internal/observability"
	obsmiddleware "github.com/fenuasim/portal/internal/observability/logger"
	obsmetrics "github.com/fenuasim/portal/internal/observability/metrics"
	obstracing "github.com/fenuasim/portal/internal/observability/tracing"
	"github.com/fenuasim/portal/internal/order"
	orderdomain "github.com/fenuasim/portal/internal/order/domain"
	"github.com/fenuasim/portal/internal/partner"
	partnerdomain "github.com/fenuasim/portal/internal/partner/domain"
	"github.com/fenuasim/portal/internal/payment"
	paymentdomain "github.com/fenuasim/portal/internal/payment/domain"
	"github.com/fenuasim/portal/internal/providers/email"
	"github.com/fenuasim/portal/internal/providers/esim"
	"github.com/fenuasim/portal/internal/ratelimit"
	"github.com/fenuasim/portal/pkg/redisconn"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	redisconn.Module,
	auth.Module,
	partner.Module,
	catalog.Module,
	checkout.Module,
	email.Module,
	esim.Module,
	notification.Module,
	order.Module,
	payment.Module,
	fulfillment.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	authsvc         authdomain.Service
	sessions        *session.Manager
	partnerSvc      partnerdomain.Service
	catalogSvc      *catalog.Service
	checkoutSvc     *checkout.Service
	checkoutLimiter *ratelimit.CheckoutLimiter
	paymentSvc      paymentdomain.Service
	esimClient      *esim.Client
	orders          orderdomain.Repository
	genID           *snowflake.Node
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Authsvc         authdomain.Service
	Sessions        *session.Manager
	PartnerSvc      partnerdomain.Service
	CatalogSvc      *catalog.Service
	CheckoutSvc     *checkout.Service
	CheckoutLimiter *ratelimit.CheckoutLimiter
	PaymentSvc      paymentdomain.Service
	EsimClient      *esim.Client
	Orders          orderdomain.Repository
	GenID           *snowflake.Node
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		authsvc:         p.Authsvc,
		sessions:        p.Sessions,
		partnerSvc:      p.PartnerSvc,
		catalogSvc:      p.CatalogSvc,
		checkoutSvc:     p.CheckoutSvc,
		checkoutLimiter: p.CheckoutLimiter,
		paymentSvc:      p.PaymentSvc,
		esimClient:      p.EsimClient,
		orders:          p.Orders,
		genID:           p.GenID,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// The catalog is public; the shop renders it before login.
	api.GET("/packages", s.ListPackages)

	api.POST("/checkout/session", s.AuthRequired(), s.CheckoutRateLimit(), s.CreateCheckoutSession)

	api.GET("/orders/:id", s.AuthRequired(), s.GetOrderByID)

	// Direct provisioning, used by back office tooling.
	api.POST("/esim/orders", s.AuthRequired(), s.CreateEsimOrder)

	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
}
