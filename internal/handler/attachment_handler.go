package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/model"
	"github.com/hitoshi/jobdesk/internal/validate"
)

// AttachmentServiceInterface は添付ファイルハンドラーが必要とするサービスインターフェース。
type AttachmentServiceInterface interface {
	Presign(ctx context.Context, p *auth.Principal, jobID, contentType string, uploadedByClient bool) (*model.PresignedUpload, error)
	List(ctx context.Context, jobID string) ([]*model.Attachment, error)
}

// AttachmentHandler は添付ファイルの署名付きURL発行と一覧を扱う。
type AttachmentHandler struct {
	service   AttachmentServiceInterface
	validator BodyValidator
}

// NewAttachmentHandler はAttachmentHandlerを生成する。
func NewAttachmentHandler(service AttachmentServiceInterface, validator BodyValidator) *AttachmentHandler {
	return &AttachmentHandler{service: service, validator: validator}
}

type presignRequest struct {
	ContentType      string `json:"contentType"`
	UploadedByClient bool   `json:"uploadedByClient"`
}

type presignResponse struct {
	UploadURL    string `json:"uploadUrl"`
	FileKey      string `json:"fileKey"`
	AttachmentID string `json:"attachmentId"`
}

// Presign はアップロード用の署名付きURLを発行し、添付レコードを作成する。
// POST /api/jobs/{jobId}/attachments/presign
func (h *AttachmentHandler) Presign(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req presignRequest
	if err := decodeBody(w, r, h.validator, validate.SchemaPresignAttachment, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	upload, err := h.service.Presign(r.Context(), p, chi.URLParam(r, "jobId"), req.ContentType, req.UploadedByClient)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presignResponse{
		UploadURL:    upload.UploadURL,
		FileKey:      upload.FileKey,
		AttachmentID: upload.AttachmentID,
	})
}

// ListAttachments は添付ファイルを新しい順に返す。
// GET /api/jobs/{jobId}/attachments
func (h *AttachmentHandler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}

	atts, err := h.service.List(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attachments": toAttachmentResponses(atts)})
}
