package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ayo6706/custody-engine/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler exposes Kubernetes-style liveness and readiness endpoints.
// db and redis are nil when the configured backend does not use them.
type HealthHandler struct {
	store repository.Store
	db    *pgxpool.Pool
	redis redis.Cmdable
}

func NewHealthHandler(store repository.Store, db *pgxpool.Pool, redis redis.Cmdable) *HealthHandler {
	return &HealthHandler{store: store, db: db, redis: redis}
}

// Live always reports OK; if the process is up, it's live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready checks the record store and its backing services.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			RespondError(w, r, http.StatusServiceUnavailable, "health/database-unavailable", "database unavailable")
			return
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			RespondError(w, r, http.StatusServiceUnavailable, "health/redis-unavailable", "redis unavailable")
			return
		}
	}
	if h.store != nil {
		probe := func(tx repository.Tx) error {
			_, _, err := tx.GetRaw(ctx, repository.Key{Kind: repository.KindFeeConfig, ID: 0})
			return err
		}
		if err := h.store.RunInTx(ctx, probe); err != nil {
			RespondError(w, r, http.StatusServiceUnavailable, "health/store-unavailable", "record store unavailable")
			return
		}
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
