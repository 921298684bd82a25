package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// --- GET /healthz ---

// HealthHandler reports database reachability and how many migrations are
// waiting. It is unauthenticated and meant for local listeners only.
type HealthHandler struct {
	db      Pinger
	pending func(ctx context.Context) (int, error)
}

func NewHealthHandler(db Pinger, pending func(ctx context.Context) (int, error)) *HealthHandler {
	return &HealthHandler{db: db, pending: pending}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type checkResult struct {
		Database   string `json:"database"`
		Migrations string `json:"migrations"`
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	checks := checkResult{
		Database:   "ok",
		Migrations: "ok",
	}

	if err := h.db.PingContext(ctx); err != nil {
		checks.Database = "error"
		status = "degraded"
	}

	pending := 0
	if h.pending != nil {
		n, err := h.pending(ctx)
		if err != nil {
			checks.Migrations = "error"
			status = "degraded"
		}
		pending = n
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"checks":  checks,
		"pending": pending,
	}); err != nil {
		slog.Warn("encoding health response", "err", err)
	}
}
