package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/model"
	"github.com/hitoshi/jobdesk/internal/validate"
)

// MessageServiceInterface はメッセージハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	List(ctx context.Context, jobID string) ([]*model.Message, error)
	Create(ctx context.Context, p *auth.Principal, jobID string, sender model.SenderType, body string) (*model.Message, error)
}

// MessageHandler はジョブのメッセージを扱う。オーナー・クライアント共通。
type MessageHandler struct {
	service   MessageServiceInterface
	validator BodyValidator
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageServiceInterface, validator BodyValidator) *MessageHandler {
	return &MessageHandler{service: service, validator: validator}
}

type createMessageRequest struct {
	SenderType string `json:"senderType"`
	Body       string `json:"body"`
}

// ListMessages はメッセージを古い順に返す。
// GET /api/jobs/{jobId}/messages
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}

	msgs, err := h.service.List(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": toMessageResponses(msgs)})
}

// CreateMessage はメッセージを投稿する。
// POST /api/jobs/{jobId}/messages
func (h *MessageHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createMessageRequest
	if err := decodeBody(w, r, h.validator, validate.SchemaCreateMessage, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	sender, valid := model.ParseSenderType(req.SenderType)
	if !valid {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("senderType が不正です"))
		return
	}

	msg, err := h.service.Create(r.Context(), p, chi.URLParam(r, "jobId"), sender, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": toMessageResponse(msg)})
}
