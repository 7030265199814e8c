package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	"github.com/stemforge/stemforge/internal/config"
	identitydomain "github.com/stemforge/stemforge/internal/identity/domain"
	invitedomain "github.com/stemforge/stemforge/internal/invite/domain"
	ledgerdomain "github.com/stemforge/stemforge/internal/ledger/domain"
	pipelinedomain "github.com/stemforge/stemforge/internal/pipeline/domain"
	processingdomain "github.com/stemforge/stemforge/internal/processing/domain"
	rechargedomain "github.com/stemforge/stemforge/internal/recharge/domain"
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
	r.Use(requestLogger(log.Named("http")))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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

type Params struct {
	fx.In

	Engine      *gin.Engine
	DB          *gorm.DB
	Log         *zap.Logger
	AccountSvc  accountdomain.Service
	IdentitySvc identitydomain.Syncer
	PipelineSvc pipelinedomain.Service
	LedgerSvc   ledgerdomain.Service
	InviteSvc   invitedomain.Service
	RechargeSvc rechargedomain.Service
	Records     processingdomain.Repository
}

type Server struct {
	db          *gorm.DB
	log         *zap.Logger
	accountSvc  accountdomain.Service
	identitySvc identitydomain.Syncer
	pipelineSvc pipelinedomain.Service
	ledgerSvc   ledgerdomain.Service
	inviteSvc   invitedomain.Service
	rechargeSvc rechargedomain.Service
	records     processingdomain.Repository
}

func NewServer(p Params) *Server {
	s := &Server{
		db:          p.DB,
		log:         p.Log.Named("http.server"),
		accountSvc:  p.AccountSvc,
		identitySvc: p.IdentitySvc,
		pipelineSvc: p.PipelineSvc,
		ledgerSvc:   p.LedgerSvc,
		inviteSvc:   p.InviteSvc,
		rechargeSvc: p.RechargeSvc,
		records:     p.Records,
	}
	s.registerRoutes(p.Engine)
	return s
}

func (s *Server) registerRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")

	// Rail callbacks authenticate through their own signatures.
	api.POST("/recharge/stripe/webhook", s.handleStripeWebhook)
	api.POST("/recharge/wechat/notify", s.handleWeChatNotify)

	authed := api.Group("", s.AuthRequired())
	authed.POST("/separate", s.handleSeparate)
	authed.POST("/transcribe/piano", s.handleTranscribePiano)
	authed.POST("/transcribe/yourmt3", s.handleTranscribeYourMT3)

	authed.GET("/me", s.handleMe)
	authed.GET("/history", s.handleHistory)
	authed.GET("/consumption", s.handleConsumption)
	authed.GET("/statistics", s.handleStatistics)

	authed.POST("/invite/use", s.handleInviteUse)
	authed.GET("/invite/check", s.handleInviteCheck)

	authed.POST("/recharge/stripe", s.handleCreateStripeOrder)
	authed.POST("/recharge/wechat", s.handleCreateWeChatOrder)
	authed.GET("/recharge/history", s.handleRechargeHistory)
	authed.POST("/recharge/reconcile", s.handleReconcileOrder)

	authed.POST("/admin/invite/sweep", s.handleInviteSweep)
}
