package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/jobdesk/internal/model"
)

const (
	auditActor = "system:hubspot"

	// HubSpot定義の関連タイプID
	associationDealToContact = 3
	associationDealToCompany = 5
)

// AuditWriter は監査ログの書き込み先。
type AuditWriter interface {
	Create(ctx context.Context, entry *model.AuditLog) error
}

// CallRecorder は外部呼び出しの結果を記録する。
type CallRecorder interface {
	RecordIntegrationCall(provider, operation string, err error, duration time.Duration)
}

// HubSpot はHubSpot CRM v3 APIのクライアント。
type HubSpot struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	token      string
	audit      AuditWriter
	recorder   CallRecorder
}

// NewHubSpot はHubSpotクライアントを生成する。recorderはnilでもよい。
func NewHubSpot(httpClient *http.Client, logger *slog.Logger, baseURL, token string, audit AuditWriter, recorder CallRecorder) *HubSpot {
	return &HubSpot{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		audit:      audit,
		recorder:   recorder,
	}
}

// ForOrg は組織に紐づいたProviderを返す。
func (h *HubSpot) ForOrg(orgID string) Provider {
	return &hubSpotAdapter{client: h, orgID: orgID}
}

type hubSpotObject struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
}

type associationType struct {
	AssociationCategory string `json:"associationCategory"`
	AssociationTypeID   int    `json:"associationTypeId"`
}

type association struct {
	To struct {
		ID string `json:"id"`
	} `json:"to"`
	Types []associationType `json:"types"`
}

func newAssociation(id string, typeID int) association {
	a := association{Types: []associationType{{AssociationCategory: "HUBSPOT_DEFINED", AssociationTypeID: typeID}}}
	a.To.ID = id
	return a
}

// do はHubSpot APIを呼び出す。outがnilの場合はレスポンスボディを読み捨てる。
func (h *HubSpot) do(ctx context.Context, operation, method, path string, payload, out any) (err error) {
	start := time.Now()
	defer func() {
		if h.recorder != nil {
			h.recorder.RecordIntegrationCall(ProviderHubSpot, operation, err, time.Since(start))
		}
	}()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode hubspot request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create hubspot request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hubspot %s failed: %w", operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read hubspot response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("hubspot API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse hubspot response: %w", err)
	}
	return nil
}

type hubSpotAdapter struct {
	client *HubSpot
	orgID  string
}

func (a *hubSpotAdapter) CreateContact(ctx context.Context, input ContactInput) (string, error) {
	var resp hubSpotObject
	payload := map[string]any{"properties": input}
	if err := a.client.do(ctx, "create_contact", http.MethodPost, "/crm/v3/objects/contacts", payload, &resp); err != nil {
		return "", err
	}

	a.logAudit(ctx, "create_contact", "hubspot_contact", resp.ID, map[string]any{"input": input, "response": resp})
	return resp.ID, nil
}

func (a *hubSpotAdapter) CreateDeal(ctx context.Context, input DealInput) (string, error) {
	properties := map[string]string{"dealname": input.DealName}
	if input.Amount != nil {
		properties["amount"] = strconv.FormatInt(*input.Amount, 10)
	}
	if input.Pipeline != "" {
		properties["pipeline"] = input.Pipeline
	}
	if input.DealStage != "" {
		properties["dealstage"] = input.DealStage
	}

	payload := map[string]any{"properties": properties}
	if len(input.ContactIDs) > 0 || len(input.CompanyIDs) > 0 {
		associations := make([]association, 0, len(input.ContactIDs)+len(input.CompanyIDs))
		for _, id := range input.ContactIDs {
			associations = append(associations, newAssociation(id, associationDealToContact))
		}
		for _, id := range input.CompanyIDs {
			associations = append(associations, newAssociation(id, associationDealToCompany))
		}
		payload["associations"] = associations
	}

	var resp hubSpotObject
	if err := a.client.do(ctx, "create_deal", http.MethodPost, "/crm/v3/objects/deals", payload, &resp); err != nil {
		return "", err
	}

	a.logAudit(ctx, "create_deal", "hubspot_deal", resp.ID, map[string]any{"input": input, "response": resp})
	return resp.ID, nil
}

func (a *hubSpotAdapter) AssociateDealToContact(ctx context.Context, dealID, contactID string) error {
	path := fmt.Sprintf("/crm/v3/objects/deals/%s/associations/contacts/%s/%d",
		url.PathEscape(dealID), url.PathEscape(contactID), associationDealToContact)
	if err := a.client.do(ctx, "associate_deal_contact", http.MethodPut, path, nil, nil); err != nil {
		return err
	}

	a.logAudit(ctx, "associate_deal_contact", "hubspot_association", dealID+"-"+contactID,
		map[string]any{"dealId": dealID, "contactId": contactID})
	return nil
}

func (a *hubSpotAdapter) UpdateDeal(ctx context.Context, dealID string, properties map[string]string) error {
	var resp hubSpotObject
	path := "/crm/v3/objects/deals/" + url.PathEscape(dealID)
	if err := a.client.do(ctx, "update_deal", http.MethodPatch, path, map[string]any{"properties": properties}, &resp); err != nil {
		return err
	}

	a.logAudit(ctx, "update_deal", "hubspot_deal", dealID, map[string]any{"properties": properties, "response": resp})
	return nil
}

func (a *hubSpotAdapter) DeleteDeal(ctx context.Context, dealID string) error {
	path := "/crm/v3/objects/deals/" + url.PathEscape(dealID)
	if err := a.client.do(ctx, "delete_deal", http.MethodDelete, path, nil, nil); err != nil {
		return err
	}

	a.logAudit(ctx, "delete_deal", "hubspot_deal", dealID, map[string]any{})
	return nil
}

// logAudit は監査ログを書き込む。失敗してもCRM操作自体は成功として扱う。
func (a *hubSpotAdapter) logAudit(ctx context.Context, action, targetType, targetID string, meta map[string]any) {
	if a.client.audit == nil {
		return
	}
	entry := &model.AuditLog{
		OrgID:      a.orgID,
		Actor:      auditActor,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Meta:       meta,
	}
	if err := a.client.audit.Create(ctx, entry); err != nil {
		a.client.logger.Error("監査ログの書き込みに失敗しました",
			slog.String("action", action),
			slog.String("org_id", a.orgID),
			slog.String("error", err.Error()),
		)
	}
}

var (
	_ Factory  = (*HubSpot)(nil)
	_ Provider = (*hubSpotAdapter)(nil)
)
