package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/payora/internal/audit/domain"
	"github.com/smallbiznis/payora/internal/authorization"
	commissiondomain "github.com/smallbiznis/payora/internal/commission/domain"
	ruledomain "github.com/smallbiznis/payora/internal/commissionrule/domain"
	"github.com/smallbiznis/payora/internal/config"
	"github.com/smallbiznis/payora/internal/observability"
	obslogger "github.com/smallbiznis/payora/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payora/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payora/internal/observability/tracing"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	commissionSvc commissiondomain.Service
	ruleSvc       ruledomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	CommissionSvc commissiondomain.Service
	RuleSvc       ruledomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		commissionSvc: p.CommissionSvc,
		ruleSvc:       p.RuleSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(s.IdentityContext())
	v1.Use(s.AuthRequired())

	commissions := v1.Group("/commissions")
	{
		commissions.POST("", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionCreate), s.CreateCommission)
		commissions.GET("", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionView), s.ListCommissions)
		commissions.GET("/:id", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionView), s.GetCommission)
		commissions.PATCH("/:id", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionUpdate), s.UpdateCommission)
		commissions.DELETE("/:id", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionDelete), s.DeleteCommission)
		commissions.POST("/:id/approve", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionApprove), s.ApproveCommission)
		commissions.POST("/:id/pay", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionPay), s.PayCommission)
		commissions.POST("/:id/cancel", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionCancel), s.CancelCommission)
		commissions.POST("/:id/restore", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionRestore), s.RestoreCommission)
		commissions.POST("/:id/recalculate", s.authorizeOrgAction(authorization.ObjectCommission, authorization.ActionCommissionUpdate), s.RecalculateCommission)
	}

	rules := v1.Group("/commission-rules")
	{
		rules.POST("", s.authorizeOrgAction(authorization.ObjectCommissionRule, authorization.ActionRuleCreate), s.CreateCommissionRule)
		rules.GET("", s.authorizeOrgAction(authorization.ObjectCommissionRule, authorization.ActionRuleView), s.ListCommissionRules)
		rules.GET("/:id", s.authorizeOrgAction(authorization.ObjectCommissionRule, authorization.ActionRuleView), s.GetCommissionRule)
		rules.PATCH("/:id", s.authorizeOrgAction(authorization.ObjectCommissionRule, authorization.ActionRuleUpdate), s.UpdateCommissionRule)
		rules.POST("/:id/deactivate", s.authorizeOrgAction(authorization.ObjectCommissionRule, authorization.ActionRuleDeactivate), s.DeactivateCommissionRule)
		rules.POST("/:id/preview", s.authorizeOrgAction(authorization.ObjectCommissionRule, authorization.ActionRuleView), s.PreviewCommissionRule)
	}

	v1.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
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
