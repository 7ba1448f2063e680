package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/jobdesk/internal/activity"
)

// PortalServiceInterface はポータル概要を組み立てる。
type PortalServiceInterface interface {
	Summary(ctx context.Context, jobID string) (*activity.Summary, error)
}

// PortalHandler はクライアントポータル向けの概要とAtomフィードを返す。
type PortalHandler struct {
	service   PortalServiceInterface
	appOrigin string
}

// NewPortalHandler はPortalHandlerを生成する。
func NewPortalHandler(service PortalServiceInterface, appOrigin string) *PortalHandler {
	return &PortalHandler{service: service, appOrigin: appOrigin}
}

// GetSummary はジョブ概要を返す。
// GET /api/portal/{jobId}
func (h *PortalHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}

	sum, err := h.service.Summary(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPortalSummaryResponse(sum))
}

// GetFeed はジョブの活動履歴をAtomフィードで返す。
// フィード内のリンクにはポータルトークンを含めない。
// GET /api/portal/{jobId}/feed.atom
func (h *PortalHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}

	jobID := chi.URLParam(r, "jobId")
	sum, err := h.service.Summary(r.Context(), jobID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	body, err := activity.BuildAtom(sum, h.appOrigin+"/portal/"+jobID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Error("failed to write atom feed", slog.String("error", err.Error()))
	}
}
