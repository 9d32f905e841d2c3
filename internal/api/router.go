package api

import (
	"net/http"

	"github.com/ayo6706/custody-engine/internal/api/handler"
	"github.com/ayo6706/custody-engine/internal/api/middleware"
	"github.com/ayo6706/custody-engine/internal/api/spec"
	"github.com/ayo6706/custody-engine/internal/auth"
	"github.com/ayo6706/custody-engine/internal/config"
	"github.com/ayo6706/custody-engine/internal/domain"
	"github.com/ayo6706/custody-engine/internal/idempotency"
	"github.com/ayo6706/custody-engine/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	engine    *service.Engine
	webhooks  *service.WebhookService
	idemStore *idempotency.Store
	health    *handler.HealthHandler
}

func NewRouter(cfg *config.Config, logger *zap.Logger, engine *service.Engine, webhooks *service.WebhookService, idemStore *idempotency.Store, health *handler.HealthHandler) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if health == nil {
		health = handler.NewHealthHandler(nil, nil, nil)
	}
	return &Router{cfg: cfg, logger: logger, engine: engine, webhooks: webhooks, idemStore: idemStore, health: health}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	authHandler := handler.NewAuthHandler(domain.Identity(api.cfg.AdminIdentity))
	escrows := handler.NewCustodyHandler(api.engine.Custody, domain.KindEscrow)
	orders := handler.NewCustodyHandler(api.engine.Custody, domain.KindOrder)
	auctions := handler.NewAuctionHandler(api.engine.Auctions)
	feeHandler := handler.NewFeeHandler(api.engine.Fees)
	payoutHandler := handler.NewPayoutHandler(api.engine.Payouts)
	webhookHandler := handler.NewWebhookHandler(api.webhooks)

	r.Get("/health/live", api.health.Live)
	r.Get("/health/ready", api.health.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))

		r.Post("/v1/auth/login", authHandler.Login)
		r.Post("/v1/webhooks/deposit", webhookHandler.HandleDepositWebhook)

		r.Get("/v1/escrows/{id}", escrows.Get)
		r.Get("/v1/orders/{id}", orders.Get)
		r.Get("/v1/auctions/{id}", auctions.Get)
		r.Get("/v1/auctions/{id}/bids", auctions.Bids)
		r.Get("/v1/auctions/{id}/highest-bid", auctions.HighestBid)
		r.Get("/v1/fees/total", feeHandler.TotalFees)
		r.Get("/v1/categories/{id}/fee", feeHandler.GetCategoryFee)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))
		r.Use(middleware.IdempotencyMiddleware(api.idemStore, api.logger))

		api.custodyRoutes(r, "/v1/escrows", escrows)
		api.custodyRoutes(r, "/v1/orders", orders)
		r.Post("/v1/orders/{id}/ship", orders.Ship)
		r.Post("/v1/orders/{id}/deliver", orders.Deliver)

		r.Post("/v1/auctions", auctions.Create)
		r.Post("/v1/auctions/{id}/bids", auctions.PlaceBid)
		r.Post("/v1/auctions/{id}/buy-now", auctions.BuyNow)
		r.Post("/v1/auctions/{id}/end", auctions.End)
		r.Post("/v1/auctions/{id}/settle", auctions.Settle)
		r.Post("/v1/auctions/{id}/cancel", auctions.Cancel)

		r.Get("/v1/payouts/{id}", payoutHandler.GetPayout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(auth.RoleAdmin))
			r.Get("/v1/admin/fees", feeHandler.GetConfig)
			r.Put("/v1/admin/fees", feeHandler.UpdateConfig)
			r.Put("/v1/admin/categories/{id}/fee", feeHandler.SetCategoryFee)
			r.Get("/v1/payouts/manual-review", payoutHandler.ListManualReviewPayouts)
			r.Post("/v1/payouts/{id}/resolve", payoutHandler.ResolveManualReviewPayout)
		})
	})

	return r
}

func (api *Router) custodyRoutes(r chi.Router, prefix string, h *handler.CustodyHandler) {
	r.Post(prefix, h.Create)
	r.Post(prefix+"/{id}/fund", h.Fund)
	r.Post(prefix+"/{id}/transition", h.Transition)
	r.Post(prefix+"/{id}/dispute", h.Dispute)
	r.Post(prefix+"/{id}/release", h.Release)
	r.Post(prefix+"/{id}/refund", h.Refund)
	r.Post(prefix+"/{id}/settle", h.Settle)
}
