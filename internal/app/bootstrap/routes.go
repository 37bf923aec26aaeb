// internal/app/bootstrap/routes.go
package bootstrap

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler for this WAFFLE app.
//
// The service is headless: besides the health endpoint it exposes only the
// administrative maintenance operations (counter recompute, inactive purge,
// mirror backfill, cross-ministry sync, manual close sweep), all behind the
// deployment API key.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators.
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.MongoClient.Ping(req.Context(), nil); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(requireAPIKey(appCfg.AdminAPIKey, logger))

		ar.Post("/counters/recompute", func(w http.ResponseWriter, req *http.Request) {
			res, err := rt.counters.RecomputeAll(req.Context())
			if err != nil {
				logger.Error("counter recompute failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"orgs": res.Orgs, "admins": res.Admins})
		})

		ar.Post("/counters/purge-inactive", func(w http.ResponseWriter, req *http.Request) {
			res, err := rt.counters.PurgeInactive(req.Context())
			if err != nil {
				logger.Error("inactive purge failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"deleted": res.Deleted,
				"orgs":    res.Recompute.Orgs,
				"admins":  res.Recompute.Admins,
			})
		})

		ar.Post("/orgs/{orgID}/backfill", func(w http.ResponseWriter, req *http.Request) {
			orgID, err := primitive.ObjectIDFromHex(chi.URLParam(req, "orgID"))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid org id"})
				return
			}
			res, err := rt.mirror.Backfill(req.Context(), orgID)
			if err != nil {
				logger.Error("mirror backfill failed", zap.String("org_id", orgID.Hex()), zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"members": res.Members, "writes": res.Writes})
		})

		ar.Post("/ministries/{ministry}/sync", func(w http.ResponseWriter, req *http.Request) {
			ministry := chi.URLParam(req, "ministry")
			if ministry == "" {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing ministry"})
				return
			}
			res, err := rt.mirror.CrossMinistrySync(req.Context(), ministry)
			if err != nil {
				logger.Error("cross-ministry sync failed", zap.String("ministry", ministry), zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"members": res.Members, "writes": res.Writes})
		})

		// Manual sweep, same code path as the scheduled job. Orgs outside
		// their close window are still skipped.
		ar.Post("/close/run", func(w http.ResponseWriter, req *http.Request) {
			if err := rt.closer.Run(req.Context()); err != nil {
				logger.Error("manual close sweep failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		})
	})

	return r, nil
}

// requireAPIKey guards the admin routes with a constant-time bearer check.
// An empty configured key disables the routes entirely.
func requireAPIKey(key string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if key == "" {
				writeJSON(w, http.StatusNotFound, map[string]any{"error": "admin API disabled"})
				return
			}
			got := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				logger.Warn("admin API auth failure", zap.String("remote", req.RemoteAddr))
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
