package server

import (
	"context"
	"net/http"
	"time"

	"github.com/boloastro/payments/internal/config"
	entitlementdomain "github.com/boloastro/payments/internal/entitlement/domain"
	ledgerdomain "github.com/boloastro/payments/internal/ledger/domain"
	orderdomain "github.com/boloastro/payments/internal/order/domain"
	paymentdomain "github.com/boloastro/payments/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
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
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	orderSvc       orderdomain.Service
	webhookSvc     paymentdomain.Service
	processor      paymentdomain.Processor
	ledger         ledgerdomain.Repository
	entitlementSvc entitlementdomain.Service
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	OrderSvc       orderdomain.Service
	WebhookSvc     paymentdomain.Service
	Processor      paymentdomain.Processor
	Ledger         ledgerdomain.Repository
	EntitlementSvc entitlementdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		log:            p.Log.Named("server"),
		genID:          p.GenID,
		orderSvc:       p.OrderSvc,
		webhookSvc:     p.WebhookSvc,
		processor:      p.Processor,
		ledger:         p.Ledger,
		entitlementSvc: p.EntitlementSvc,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhook/razorpay", s.HandleRazorpayWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	api.POST("/orders", s.CreateOrder)
	api.GET("/orders/:order_id", s.GetOrder)
	api.GET("/users/:phone/orders", s.ListUserOrders)
	api.GET("/users/:phone/access", s.GetUserAccess)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin/v1")

	admin.GET("/events/failed", s.ListFailedEvents)
	admin.GET("/orders/:order_id/events", s.ListOrderEvents)
	admin.POST("/events/:event_id/retry", s.RetryEvent)
}
