package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker はDB疎通を確認する。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// SystemHandler はヘルスチェックとAPI定義の配信を行う。
type SystemHandler struct {
	db      HealthChecker
	openAPI []byte
}

// NewSystemHandler はSystemHandlerを生成する。
func NewSystemHandler(db HealthChecker, openAPI []byte) *SystemHandler {
	return &SystemHandler{db: db, openAPI: openAPI}
}

// Health はDBに到達できれば200、できなければ503を返す。
// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		slog.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// OpenAPI は埋め込みのOpenAPI定義を返す。
// GET /api/openapi.json
func (h *SystemHandler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.openAPI)
}
