package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/job"
	"github.com/hitoshi/jobdesk/internal/model"
	"github.com/hitoshi/jobdesk/internal/validate"
)

// JobServiceInterface はジョブハンドラーが必要とするサービスインターフェース。
type JobServiceInterface interface {
	Create(ctx context.Context, session *auth.OwnerSession, in job.CreateInput) (*job.CreateResult, error)
	List(ctx context.Context, session *auth.OwnerSession, status string) ([]*model.Job, error)
	Get(ctx context.Context, session *auth.OwnerSession, jobID string) (*model.JobDetail, error)
	Update(ctx context.Context, session *auth.OwnerSession, jobID string, in job.UpdateInput) (*model.Job, error)
	Delete(ctx context.Context, session *auth.OwnerSession, jobID string) error
	RotatePortalLink(ctx context.Context, session *auth.OwnerSession, jobID string) (*auth.PortalLink, error)
}

// JobHandler はジョブ管理のHTTPハンドラー。オーナー専用。
type JobHandler struct {
	service   JobServiceInterface
	validator BodyValidator
}

// NewJobHandler はJobHandlerを生成する。
func NewJobHandler(service JobServiceInterface, validator BodyValidator) *JobHandler {
	return &JobHandler{service: service, validator: validator}
}

type createJobRequest struct {
	OrgID       string `json:"orgId"`
	ClientName  string `json:"clientName"`
	ClientEmail string `json:"clientEmail"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Pipeline    string `json:"pipeline"`
	DealStage   string `json:"dealstage"`
}

type updateJobRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type portalLinkResponse struct {
	ClientPortalURL string `json:"clientPortalUrl"`
	ExpiresAt       string `json:"expiresAt"`
}

// CreateJob はジョブを作成し、クライアントポータルURLを返す。
// POST /api/jobs
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	session, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req createJobRequest
	if err := decodeBody(w, r, h.validator, validate.SchemaCreateJob, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Create(r.Context(), session, job.CreateInput{
		OrgID:       req.OrgID,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		Title:       req.Title,
		Description: req.Description,
		Pipeline:    req.Pipeline,
		DealStage:   req.DealStage,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"job":             toJobResponse(result.Job),
		"clientPortalUrl": result.ClientPortalURL,
	})
}

// ListJobs は組織のジョブ一覧を返す。
// GET /api/jobs?status=
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	session, ok := requireOwner(w, r)
	if !ok {
		return
	}

	jobs, err := h.service.List(r.Context(), session, r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": toJobResponses(jobs)})
}

// GetJob はジョブ詳細を返す。
// GET /api/jobs/{jobId}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	session, ok := requireOwner(w, r)
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), session, chi.URLParam(r, "jobId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": toJobDetailResponse(detail)})
}

// UpdateJob はタイトル・説明・ステータスを更新する。
// PATCH /api/jobs/{jobId}
func (h *JobHandler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	session, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req updateJobRequest
	if err := decodeBody(w, r, h.validator, validate.SchemaUpdateJob, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	in := job.UpdateInput{Title: req.Title, Description: req.Description}
	if req.Status != nil {
		status := model.JobStatus(*req.Status)
		in.Status = &status
	}

	updated, err := h.service.Update(r.Context(), session, chi.URLParam(r, "jobId"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": toJobResponse(updated)})
}

// DeleteJob はジョブを削除する。
// DELETE /api/jobs/{jobId}
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	session, ok := requireOwner(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), session, chi.URLParam(r, "jobId")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RotatePortalLink はポータルリンクを再発行する。旧リンクは即座に無効になる。
// POST /api/jobs/{jobId}/portal-link
func (h *JobHandler) RotatePortalLink(w http.ResponseWriter, r *http.Request) {
	session, ok := requireOwner(w, r)
	if !ok {
		return
	}

	link, err := h.service.RotatePortalLink(r.Context(), session, chi.URLParam(r, "jobId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, portalLinkResponse{
		ClientPortalURL: link.URL,
		ExpiresAt:       formatTimestamp(link.ExpiresAt),
	})
}
