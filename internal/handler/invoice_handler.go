package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/invoice"
	"github.com/hitoshi/jobdesk/internal/model"
	"github.com/hitoshi/jobdesk/internal/validate"
)

// InvoiceServiceInterface は請求書ハンドラーが必要とするサービスインターフェース。
type InvoiceServiceInterface interface {
	Create(ctx context.Context, session *auth.OwnerSession, in invoice.CreateInput) (*model.Invoice, error)
	CreatePayLink(ctx context.Context, session *auth.OwnerSession, invoiceID string) (string, error)
}

// InvoiceHandler は請求書のHTTPハンドラー。オーナー専用。
type InvoiceHandler struct {
	service   InvoiceServiceInterface
	validator BodyValidator
}

// NewInvoiceHandler はInvoiceHandlerを生成する。
func NewInvoiceHandler(service InvoiceServiceInterface, validator BodyValidator) *InvoiceHandler {
	return &InvoiceHandler{service: service, validator: validator}
}

type createInvoiceRequest struct {
	JobID    string `json:"jobId"`
	Currency string `json:"currency"`
	Items    []struct {
		Description string `json:"description"`
		Qty         int64  `json:"qty"`
		UnitAmount  int64  `json:"unitAmount"`
	} `json:"items"`
}

// CreateInvoice は請求書を作成する。
// POST /api/invoices
func (h *InvoiceHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	session, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req createInvoiceRequest
	if err := decodeBody(w, r, h.validator, validate.SchemaCreateInvoice, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	in := invoice.CreateInput{JobID: req.JobID, Currency: req.Currency}
	for _, it := range req.Items {
		in.Items = append(in.Items, invoice.ItemInput{
			Description: it.Description,
			Qty:         it.Qty,
			UnitAmount:  it.UnitAmount,
		})
	}

	inv, err := h.service.Create(r.Context(), session, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invoice": toInvoiceResponse(inv)})
}

// CreatePayLink は支払いリンクを発行する。発行済みなら同じURLを返す。
// POST /api/invoices/{invoiceId}/paylink
func (h *InvoiceHandler) CreatePayLink(w http.ResponseWriter, r *http.Request) {
	session, ok := requireOwner(w, r)
	if !ok {
		return
	}

	url, err := h.service.CreatePayLink(r.Context(), session, chi.URLParam(r, "invoiceId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
