package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hitoshi/jobdesk/internal/model"
)

type mockAuditWriter struct {
	mu      sync.Mutex
	entries []*model.AuditLog
	err     error
}

func (m *mockAuditWriter) Create(_ context.Context, entry *model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

type capturedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

// newHubSpotServer はリクエストを記録し、固定のIDを返すテストサーバーを起動する。
func newHubSpotServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := capturedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req.Body)
		}
		mu.Lock()
		captured = append(captured, req)
		mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"status":"error","message":"bad"}`))
			return
		}
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPut:
			_, _ = w.Write([]byte(`{}`))
		default:
			_, _ = w.Write([]byte(`{"id":"hs-101","properties":{}}`))
		}
	}))
	t.Cleanup(server.Close)
	return server, &captured
}

func newTestHubSpot(server *httptest.Server, audit AuditWriter) *HubSpot {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHubSpot(server.Client(), logger, server.URL, "pat-token", audit, nil)
}

func TestHubSpot_CreateContact(t *testing.T) {
	server, captured := newHubSpotServer(t, http.StatusOK)
	audit := &mockAuditWriter{}
	provider := newTestHubSpot(server, audit).ForOrg("org-1")

	id, err := provider.CreateContact(context.Background(), ContactInput{Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"})
	if err != nil {
		t.Fatalf("CreateContact failed: %v", err)
	}
	if id != "hs-101" {
		t.Errorf("id = %q", id)
	}

	req := (*captured)[0]
	if req.Method != http.MethodPost || req.Path != "/crm/v3/objects/contacts" {
		t.Errorf("request = %s %s", req.Method, req.Path)
	}
	if req.Auth != "Bearer pat-token" {
		t.Errorf("Authorization = %q", req.Auth)
	}
	props := req.Body["properties"].(map[string]any)
	if props["email"] != "jane@example.com" || props["firstname"] != "Jane" || props["lastname"] != "Doe" {
		t.Errorf("properties = %v", props)
	}
	if _, ok := props["phone"]; ok {
		t.Error("empty phone should be omitted")
	}

	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
	entry := audit.entries[0]
	if entry.OrgID != "org-1" || entry.Actor != "system:hubspot" || entry.Action != "create_contact" ||
		entry.TargetType != "hubspot_contact" || entry.TargetID != "hs-101" {
		t.Errorf("audit entry = %+v", entry)
	}
}

func TestHubSpot_CreateDeal_WithAssociations(t *testing.T) {
	server, captured := newHubSpotServer(t, http.StatusOK)
	provider := newTestHubSpot(server, &mockAuditWriter{}).ForOrg("org-1")

	amount := int64(1500)
	_, err := provider.CreateDeal(context.Background(), DealInput{
		DealName:   "Fix roof",
		Amount:     &amount,
		Pipeline:   "default",
		DealStage:  "appointmentscheduled",
		ContactIDs: []string{"c-1"},
		CompanyIDs: []string{"co-1"},
	})
	if err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}

	body := (*captured)[0].Body
	props := body["properties"].(map[string]any)
	if props["dealname"] != "Fix roof" || props["amount"] != "1500" || props["pipeline"] != "default" || props["dealstage"] != "appointmentscheduled" {
		t.Errorf("properties = %v", props)
	}

	associations := body["associations"].([]any)
	if len(associations) != 2 {
		t.Fatalf("associations = %v", associations)
	}
	typeIDs := []float64{}
	for _, a := range associations {
		types := a.(map[string]any)["types"].([]any)
		typeIDs = append(typeIDs, types[0].(map[string]any)["associationTypeId"].(float64))
	}
	if typeIDs[0] != 3 || typeIDs[1] != 5 {
		t.Errorf("association type IDs = %v, want [3 5]", typeIDs)
	}
}

func TestHubSpot_CreateDeal_MinimalProperties(t *testing.T) {
	server, captured := newHubSpotServer(t, http.StatusOK)
	provider := newTestHubSpot(server, nil).ForOrg("org-1")

	if _, err := provider.CreateDeal(context.Background(), DealInput{DealName: "Paint fence"}); err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}

	body := (*captured)[0].Body
	props := body["properties"].(map[string]any)
	if len(props) != 1 {
		t.Errorf("properties = %v, want only dealname", props)
	}
	if _, ok := body["associations"]; ok {
		t.Error("associations should be omitted")
	}
}

func TestHubSpot_AssociateUpdateDelete(t *testing.T) {
	server, captured := newHubSpotServer(t, http.StatusOK)
	audit := &mockAuditWriter{}
	provider := newTestHubSpot(server, audit).ForOrg("org-1")
	ctx := context.Background()

	if err := provider.AssociateDealToContact(ctx, "d-1", "c-1"); err != nil {
		t.Fatalf("AssociateDealToContact failed: %v", err)
	}
	if err := provider.UpdateDeal(ctx, "d-1", map[string]string{"dealstage": "closedwon"}); err != nil {
		t.Fatalf("UpdateDeal failed: %v", err)
	}
	if err := provider.DeleteDeal(ctx, "d-1"); err != nil {
		t.Fatalf("DeleteDeal failed: %v", err)
	}

	want := []struct{ method, path string }{
		{http.MethodPut, "/crm/v3/objects/deals/d-1/associations/contacts/c-1/3"},
		{http.MethodPatch, "/crm/v3/objects/deals/d-1"},
		{http.MethodDelete, "/crm/v3/objects/deals/d-1"},
	}
	for i, w := range want {
		got := (*captured)[i]
		if got.Method != w.method || got.Path != w.path {
			t.Errorf("request %d = %s %s, want %s %s", i, got.Method, got.Path, w.method, w.path)
		}
	}

	actions := []string{}
	for _, e := range audit.entries {
		actions = append(actions, e.Action)
	}
	if len(actions) != 3 || actions[0] != "associate_deal_contact" || actions[1] != "update_deal" || actions[2] != "delete_deal" {
		t.Errorf("audit actions = %v", actions)
	}
	if audit.entries[0].TargetID != "d-1-c-1" {
		t.Errorf("association target = %q", audit.entries[0].TargetID)
	}
}

func TestHubSpot_APIError_NoAudit(t *testing.T) {
	server, _ := newHubSpotServer(t, http.StatusBadRequest)
	audit := &mockAuditWriter{}
	provider := newTestHubSpot(server, audit).ForOrg("org-1")

	if _, err := provider.CreateContact(context.Background(), ContactInput{Email: "x@example.com"}); err == nil {
		t.Fatal("expected API error")
	}
	if len(audit.entries) != 0 {
		t.Error("failed calls must not be audited")
	}
}

func TestHubSpot_AuditFailure_DoesNotFailCall(t *testing.T) {
	server, _ := newHubSpotServer(t, http.StatusOK)
	audit := &mockAuditWriter{err: errors.New("db down")}
	provider := newTestHubSpot(server, audit).ForOrg("org-1")

	if err := provider.DeleteDeal(context.Background(), "d-1"); err != nil {
		t.Fatalf("audit failure should be swallowed, got %v", err)
	}
}
