package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"cardtable/server/game"
	"cardtable/server/store"
	"cardtable/server/table"
)

// Ledger is the read side of the wallet exposed over HTTP.
type Ledger interface {
	Peek(ctx context.Context, userID string) (int64, bool, error)
	Ledger(ctx context.Context, userID string, limit int) ([]store.LedgerEntry, error)
}

func Router(reg *table.Registry, hub *Hub, wallet Ledger, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog(log))

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "connections": hub.Connections()})
	})

	// Lobby
	r.Get("/api/tables", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, reg.GetTables())
	})

	r.Get("/api/tables/{id}", func(w http.ResponseWriter, r *http.Request) {
		user, _ := identity(r)
		snap, err := reg.Snapshot(chi.URLParam(r, "id"), user)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, snap)
	})

	// Admin
	r.Post("/api/tables/{id}/kick", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID string `json:"userId"`
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
			http.Error(w, "missing userId", http.StatusBadRequest)
			return
		}
		if body.Reason == "" {
			body.Reason = "removed by an administrator"
		}
		if err := reg.Kick(chi.URLParam(r, "id"), body.UserID, body.Reason); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	r.Get("/api/wallet/{user}", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user := chi.URLParam(r, "user")
		limit := 20
		if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 200 {
			limit = n
		}
		chips, ok, err := wallet.Peek(ctx, user)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "no wallet", http.StatusNotFound)
			return
		}
		hands, err := wallet.Ledger(ctx, user, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"userId": user, "chips": chips, "hands": hands})
	})

	r.Get("/ws/{kind}/{id}", func(w http.ResponseWriter, r *http.Request) {
		kind, err := game.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		hub.serveTable(reg, kind, chi.URLParam(r, "id"), w, r)
	})

	return r
}

// identity reads the caller from headers set by the auth proxy, falling
// back to query parameters for local play.
func identity(r *http.Request) (user, name string) {
	user = r.Header.Get("X-User-ID")
	if user == "" {
		user = r.URL.Query().Get("user")
	}
	name = r.Header.Get("X-User-Name")
	if name == "" {
		name = r.URL.Query().Get("name")
	}
	return user, name
}

func requestLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("req", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
