package handler

import (
	"github.com/hitoshi/jobdesk/internal/activity"
	"github.com/hitoshi/jobdesk/internal/model"
)

// clientResponse は顧客情報のAPIレスポンス。
type clientResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// jobResponse はジョブのAPIレスポンス。ポータルトークンの指紋は返さない。
type jobResponse struct {
	ID                   string          `json:"id"`
	OrgID                string          `json:"orgId"`
	ClientID             string          `json:"clientId"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	Status               string          `json:"status"`
	CRMProvider          string          `json:"crmProvider,omitempty"`
	CRMExternalID        string          `json:"crmExternalId,omitempty"`
	PortalTokenExpiresAt *string         `json:"portalTokenExpiresAt,omitempty"`
	CreatedAt            string          `json:"createdAt"`
	UpdatedAt            string          `json:"updatedAt"`
	Client               *clientResponse `json:"client,omitempty"`
}

type messageResponse struct {
	ID         string `json:"id"`
	JobID      string `json:"jobId"`
	SenderType string `json:"senderType"`
	Body       string `json:"body"`
	CreatedAt  string `json:"createdAt"`
}

type attachmentResponse struct {
	ID               string `json:"id"`
	JobID            string `json:"jobId"`
	FileKey          string `json:"fileKey"`
	MimeType         string `json:"mimeType"`
	UploadedByClient bool   `json:"uploadedByClient"`
	UploadedByUserID string `json:"uploadedByUserId,omitempty"`
	URL              string `json:"url,omitempty"`
	CreatedAt        string `json:"createdAt"`
}

type invoiceItemResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Qty         int64  `json:"qty"`
	UnitAmount  int64  `json:"unitAmount"`
}

type invoiceResponse struct {
	ID             string                `json:"id"`
	JobID          string                `json:"jobId"`
	Number         string                `json:"number"`
	Currency       string                `json:"currency"`
	Subtotal       int64                 `json:"subtotal"`
	Tax            int64                 `json:"tax"`
	Total          int64                 `json:"total"`
	Status         string                `json:"status"`
	PaymentLinkURL string                `json:"paymentLinkUrl,omitempty"`
	Items          []invoiceItemResponse `json:"items"`
	CreatedAt      string                `json:"createdAt"`
}

// jobDetailResponse はジョブ詳細画面用の集約レスポンス。
type jobDetailResponse struct {
	jobResponse
	Messages    []messageResponse    `json:"messages"`
	Attachments []attachmentResponse `json:"attachments"`
	Invoices    []invoiceResponse    `json:"invoices"`
}

// portalSummaryResponse はクライアントポータル向けの概要。
type portalSummaryResponse struct {
	JobID       string               `json:"jobId"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Status      string               `json:"status"`
	ClientName  string               `json:"clientName,omitempty"`
	UpdatedAt   string               `json:"updatedAt"`
	Messages    []messageResponse    `json:"messages"`
	Attachments []attachmentResponse `json:"attachments"`
}

func toJobResponse(j *model.Job) jobResponse {
	resp := jobResponse{
		ID:            j.ID,
		OrgID:         j.OrgID,
		ClientID:      j.ClientID,
		Title:         j.Title,
		Description:   j.Description,
		Status:        string(j.Status),
		CRMProvider:   j.CRMProvider,
		CRMExternalID: j.CRMExternalID,
		CreatedAt:     formatTimestamp(j.CreatedAt),
		UpdatedAt:     formatTimestamp(j.UpdatedAt),
	}
	if j.PortalTokenExpiresAt != nil {
		exp := formatTimestamp(*j.PortalTokenExpiresAt)
		resp.PortalTokenExpiresAt = &exp
	}
	if j.Client != nil {
		resp.Client = &clientResponse{ID: j.Client.ID, Name: j.Client.Name, Email: j.Client.Email}
	}
	return resp
}

func toJobResponses(jobs []*model.Job) []jobResponse {
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	return out
}

func toMessageResponses(msgs []*model.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		JobID:      m.JobID,
		SenderType: string(m.SenderType),
		Body:       m.Body,
		CreatedAt:  formatTimestamp(m.CreatedAt),
	}
}

func toAttachmentResponses(atts []*model.Attachment) []attachmentResponse {
	out := make([]attachmentResponse, 0, len(atts))
	for _, a := range atts {
		out = append(out, attachmentResponse{
			ID:               a.ID,
			JobID:            a.JobID,
			FileKey:          a.FileKey,
			MimeType:         a.MimeType,
			UploadedByClient: a.UploadedByClient,
			UploadedByUserID: a.UploadedByUserID,
			URL:              a.URL,
			CreatedAt:        formatTimestamp(a.CreatedAt),
		})
	}
	return out
}

func toInvoiceResponse(inv *model.Invoice) invoiceResponse {
	items := make([]invoiceItemResponse, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, invoiceItemResponse{
			ID:          it.ID,
			Description: it.Description,
			Qty:         it.Qty,
			UnitAmount:  it.UnitAmount,
		})
	}
	return invoiceResponse{
		ID:             inv.ID,
		JobID:          inv.JobID,
		Number:         inv.Number,
		Currency:       inv.Currency,
		Subtotal:       inv.Subtotal,
		Tax:            inv.Tax,
		Total:          inv.Total,
		Status:         string(inv.Status),
		PaymentLinkURL: inv.PaymentLinkURL,
		Items:          items,
		CreatedAt:      formatTimestamp(inv.CreatedAt),
	}
}

func toJobDetailResponse(d *model.JobDetail) jobDetailResponse {
	invoices := make([]invoiceResponse, 0, len(d.Invoices))
	for _, inv := range d.Invoices {
		invoices = append(invoices, toInvoiceResponse(inv))
	}
	return jobDetailResponse{
		jobResponse: toJobResponse(d.Job),
		Messages:    toMessageResponses(d.Messages),
		Attachments: toAttachmentResponses(d.Attachments),
		Invoices:    invoices,
	}
}

func toPortalSummaryResponse(s *activity.Summary) portalSummaryResponse {
	return portalSummaryResponse{
		JobID:       s.JobID,
		Title:       s.Title,
		Description: s.Description,
		Status:      string(s.Status),
		ClientName:  s.ClientName,
		UpdatedAt:   formatTimestamp(s.UpdatedAt),
		Messages:    toMessageResponses(s.Messages),
		Attachments: toAttachmentResponses(s.Attachments),
	}
}
