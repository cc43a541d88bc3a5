package api

import (
	"net/http"

	"github.com/ayo6706/ledger-gate/internal/api/handler"
	"github.com/ayo6706/ledger-gate/internal/api/middleware"
	"github.com/ayo6706/ledger-gate/internal/api/spec"
	"github.com/ayo6706/ledger-gate/internal/config"
	"github.com/ayo6706/ledger-gate/internal/idempotency"
	"github.com/ayo6706/ledger-gate/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services bundles the core components the HTTP layer drives.
type Services struct {
	Accounts       *service.AccountService
	Limits         *service.LimitsService
	Transfers      *service.TransferService
	Ledger         *service.DecisionLedgerService
	Reconciliation *service.ReconciliationService
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	svc       Services
	idemStore *idempotency.Store
	checks    []handler.ReadinessCheck
}

// NewRouter builds the API router. idemStore may be nil when Redis is not
// configured; payments then rely on durable transfer-id replay alone.
func NewRouter(cfg *config.Config, logger *zap.Logger, svc Services, idemStore *idempotency.Store, checks ...handler.ReadinessCheck) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, logger: logger, svc: svc, idemStore: idemStore, checks: checks}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	// Handlers
	healthHandler := handler.NewHealthHandler(api.checks...)
	accountHandler := handler.NewAccountHandler(api.svc.Accounts, api.svc.Limits, api.cfg.Location)
	paymentHandler := handler.NewPaymentHandler(api.svc.Transfers)
	decisionHandler := handler.NewDecisionHandler(api.svc.Ledger, api.cfg.Location)
	reconciliationHandler := handler.NewReconciliationHandler(api.svc.Reconciliation)

	// Public Routes
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Protected Routes
	r.Route("/v1", func(r chi.Router) {
		if api.cfg.AuthEnabled() {
			r.Use(middleware.AuthMiddleware)
			r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))
		} else {
			r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		}

		// Accounts and the policy gate
		r.Get("/accounts", accountHandler.ListAccounts)
		r.Get("/accounts/{id}", accountHandler.GetAccount)
		r.Get("/accounts/{id}/transactions", accountHandler.SearchTransactions)
		r.Get("/accounts/{id}/limits", accountHandler.GetLimits)
		r.Post("/accounts/{id}/limits/check", accountHandler.CheckLimits)

		// Payments
		r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).Post("/payments", paymentHandler.ProcessPayment)

		// Decision ledger
		r.Post("/decisions", decisionHandler.LogDecision)
		r.Group(func(r chi.Router) {
			if api.cfg.AuthEnabled() {
				r.Use(middleware.RequireRole(middleware.RoleAuditor, middleware.RoleAdmin))
			}
			r.Get("/decisions", decisionHandler.Search)
			r.Get("/decisions/{ledgerID}", decisionHandler.GetEntry)
			r.Get("/customers/{id}/decisions", decisionHandler.CustomerHistory)
			r.Get("/customers/{id}/decision-trail", decisionHandler.CustomerTrail)
			r.Get("/agents/{name}/interactions", decisionHandler.AgentInteractions)
			r.Get("/conversations/{id}/decisions", decisionHandler.ConversationHistory)
		})

		r.Group(func(r chi.Router) {
			if api.cfg.AuthEnabled() {
				r.Use(middleware.RequireRole(middleware.RoleAdmin))
			}
			r.Post("/admin/reconciliation", reconciliationHandler.Run)
		})
	})

	return r
}
