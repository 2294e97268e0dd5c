package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/kudos/internal/apikey"
	apikeydomain "github.com/smallbiznis/kudos/internal/apikey/domain"
	"github.com/smallbiznis/kudos/internal/audit"
	auditdomain "github.com/smallbiznis/kudos/internal/audit/domain"
	"github.com/smallbiznis/kudos/internal/authorization"
	"github.com/smallbiznis/kudos/internal/campaign"
	campaigndomain "github.com/smallbiznis/kudos/internal/campaign/domain"
	"github.com/smallbiznis/kudos/internal/config"
	"github.com/smallbiznis/kudos/internal/donor"
	donordomain "github.com/smallbiznis/kudos/internal/donor/domain"
	"github.com/smallbiznis/kudos/internal/events"
	"github.com/smallbiznis/kudos/internal/notification"
	"github.com/smallbiznis/kudos/internal/observability"
	obslogger "github.com/smallbiznis/kudos/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kudos/internal/observability/metrics"
	obstracing "github.com/smallbiznis/kudos/internal/observability/tracing"
	"github.com/smallbiznis/kudos/internal/payment"
	paymentdomain "github.com/smallbiznis/kudos/internal/payment/domain"
	"github.com/smallbiznis/kudos/internal/providers"
	"github.com/smallbiznis/kudos/internal/providers/pdf"
	"github.com/smallbiznis/kudos/internal/ratelimit"
	"github.com/smallbiznis/kudos/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/kudos/internal/subscription/domain"
	"github.com/smallbiznis/kudos/internal/transaction"
	transactiondomain "github.com/smallbiznis/kudos/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	events.Module,
	events.ObserversModule,
	apikey.Module,
	campaign.Module,
	donor.Module,
	transaction.Module,
	subscription.Module,
	payment.Module,
	notification.Module,
	providers.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log, obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(obsCfg, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	log             *zap.Logger
	apiKeySvc       apikeydomain.Service
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	campaignSvc     campaigndomain.Service
	paymentSvc      paymentdomain.Service
	subscriptionSvc subscriptiondomain.Scheduler
	transactions    transactiondomain.Repository
	donors          donordomain.Repository
	pdf             pdf.Provider
	donationLimiter *ratelimit.DonationLimiter
	obsMetrics      *obsmetrics.Metrics
	donation        *config.DonationConfigHolder
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	APIKeySvc       apikeydomain.Service
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	CampaignSvc     campaigndomain.Service
	PaymentSvc      paymentdomain.Service
	SubscriptionSvc subscriptiondomain.Scheduler
	Transactions    transactiondomain.Repository
	Donors          donordomain.Repository
	PDF             pdf.Provider
	DonationLimiter *ratelimit.DonationLimiter   `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics          `optional:"true"`
	Donation        *config.DonationConfigHolder `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		apiKeySvc:       p.APIKeySvc,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		campaignSvc:     p.CampaignSvc,
		paymentSvc:      p.PaymentSvc,
		subscriptionSvc: p.SubscriptionSvc,
		transactions:    p.Transactions,
		donors:          p.Donors,
		pdf:             p.PDF,
		donationLimiter: p.DonationLimiter,
		obsMetrics:      p.ObsMetrics,
		donation:        p.Donation,
	}

	svc.registerPaymentRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPaymentRoutes() {
	pay := s.engine.Group("/payment")

	pay.POST("/webhook", s.HandlePaymentWebhook)
	pay.POST("/create", s.DonationRateLimit(), s.CreatePayment)
}

func (s *Server) registerAdminRoutes() {
	api := s.engine.Group("/api/v1", s.APIKeyRequired())

	// -------- Campaigns --------
	api.GET("/campaigns", s.authorizeAction(authorization.ObjectCampaign, authorization.ActionCampaignView), s.ListCampaigns)
	api.POST("/campaigns", s.authorizeAction(authorization.ObjectCampaign, authorization.ActionCampaignCreate), s.CreateCampaign)
	api.GET("/campaigns/:id", s.authorizeAction(authorization.ObjectCampaign, authorization.ActionCampaignView), s.GetCampaign)

	// -------- Transactions --------
	api.GET("/transactions", s.authorizeAction(authorization.ObjectTransaction, authorization.ActionTransactionView), s.ListTransactions)
	api.GET("/transactions/:id/receipt", s.authorizeAction(authorization.ObjectTransaction, authorization.ActionTransactionReceipt), s.DownloadReceipt)

	// -------- Subscriptions --------
	api.GET("/subscriptions", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.ListSubscriptions)
	api.GET("/subscriptions/:id", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscription)
	api.POST("/subscriptions/:id/cancel", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel), s.CancelSubscription)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorizeAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)

	// -------- API keys --------
	api.GET("/api-keys", s.authorizeAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyView), s.ListAPIKeys)
	api.POST("/api-keys", s.authorizeAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyCreate), s.CreateAPIKey)
	api.POST("/api-keys/:key_id/rotate", s.authorizeAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyRotate), s.RotateAPIKey)
	api.POST("/api-keys/:key_id/revoke", s.authorizeAction(authorization.ObjectAPIKey, authorization.ActionAPIKeyRevoke), s.RevokeAPIKey)
}
