package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"queuesync/config"
	"queuesync/core/auth"
	"queuesync/core/queue"
	"queuesync/logger"
	"queuesync/repository"
)

type contextKey string

const ctxKeyDID contextKey = "did"

// APIHandler bundles the collaborators the HTTP layer needs.
type APIHandler struct {
	queueService *queue.Service
	prefRepo     repository.PreferenceRepository
	notifier     *queue.ChangeNotifier
	hub          *QueueHub
	cfg          *config.Config
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(
	queueService *queue.Service,
	prefRepo repository.PreferenceRepository,
	notifier *queue.ChangeNotifier,
	hub *QueueHub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		queueService: queueService,
		prefRepo:     prefRepo,
		notifier:     notifier,
		hub:          hub,
		cfg:          cfg,
	}
}

// AuthMiddleware resolves the Bearer token into a user DID and stores it in
// the request context. The queue service itself performs no authentication;
// it only ever sees the resolved DID.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(h.cfg.JWTSecret, parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyDID, claims.DID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetDIDFromContext extracts the resolved user DID from the request context.
func GetDIDFromContext(ctx context.Context) (string, error) {
	did, ok := ctx.Value(ctxKeyDID).(string)
	if !ok || did == "" {
		return "", fmt.Errorf("user DID not found in context")
	}
	return did, nil
}

// HealthHandler reports service health. A lost change subscription degrades
// the status (staleness may exceed the cache TTL) but does not fail it.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.notifier != nil && !h.notifier.Healthy() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
