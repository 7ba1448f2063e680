package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobdesk/internal/model"
)

func newTestInvoice(jobID string, items ...*model.InvoiceItem) *model.Invoice {
	now := time.Now()
	inv := &model.Invoice{
		ID: uuid.NewString(), JobID: jobID, Currency: "usd", Status: model.InvoiceStatusDraft,
		Items: items, CreatedAt: now, UpdatedAt: now,
	}
	for _, it := range items {
		inv.Subtotal += it.Qty * it.UnitAmount
	}
	inv.Total = inv.Subtotal
	return inv
}

func TestPostgresInvoiceRepo_CreateWithItems_NumbersPerJob(t *testing.T) {
	db := setupRepoDB(t)
	f := createFixture(t, db)
	repo := NewPostgresInvoiceRepo(db)
	ctx := context.Background()

	first := newTestInvoice(f.job.ID,
		&model.InvoiceItem{ID: uuid.NewString(), Description: "Labor", Qty: 2, UnitAmount: 5000},
		&model.InvoiceItem{ID: uuid.NewString(), Description: "Materials", Qty: 1, UnitAmount: 1250},
	)
	if err := repo.CreateWithItems(ctx, first); err != nil {
		t.Fatalf("CreateWithItems failed: %v", err)
	}
	if first.Number != "INV-0001" {
		t.Errorf("Number = %q, want INV-0001", first.Number)
	}

	second := newTestInvoice(f.job.ID, &model.InvoiceItem{ID: uuid.NewString(), Description: "Extra", Qty: 1, UnitAmount: 100})
	if err := repo.CreateWithItems(ctx, second); err != nil {
		t.Fatalf("CreateWithItems failed: %v", err)
	}
	if second.Number != "INV-0002" {
		t.Errorf("Number = %q, want INV-0002", second.Number)
	}

	got, err := repo.FindByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.OrgID != f.org.ID {
		t.Errorf("OrgID = %q, want %q", got.OrgID, f.org.ID)
	}
	if len(got.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(got.Items))
	}
	if got.Total != 11250 {
		t.Errorf("Total = %d, want 11250", got.Total)
	}

	list, err := repo.ListByJob(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("ListByJob failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
}

func TestPostgresInvoiceRepo_UpdatePaymentLink(t *testing.T) {
	db := setupRepoDB(t)
	f := createFixture(t, db)
	repo := NewPostgresInvoiceRepo(db)
	ctx := context.Background()

	inv := newTestInvoice(f.job.ID, &model.InvoiceItem{ID: uuid.NewString(), Description: "Labor", Qty: 1, UnitAmount: 100})
	if err := repo.CreateWithItems(ctx, inv); err != nil {
		t.Fatalf("CreateWithItems failed: %v", err)
	}
	if err := repo.UpdatePaymentLink(ctx, inv.ID, "https://buy.stripe.com/test", model.InvoiceStatusSent); err != nil {
		t.Fatalf("UpdatePaymentLink failed: %v", err)
	}

	got, _ := repo.FindByID(ctx, inv.ID)
	if got.PaymentLinkURL != "https://buy.stripe.com/test" || got.Status != model.InvoiceStatusSent {
		t.Errorf("invoice = %+v", got)
	}
}

func TestPostgresMessageAndAttachmentRepos(t *testing.T) {
	db := setupRepoDB(t)
	f := createFixture(t, db)
	ctx := context.Background()
	msgs := NewPostgresMessageRepo(db)
	atts := NewPostgresAttachmentRepo(db)
	base := time.Now()

	for i, sender := range []model.SenderType{model.SenderOwner, model.SenderClient, model.SenderSystem} {
		m := &model.Message{ID: uuid.NewString(), JobID: f.job.ID, SenderType: sender, Body: string(sender), CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := msgs.Create(ctx, m); err != nil {
			t.Fatalf("Create message failed: %v", err)
		}
	}
	list, err := msgs.ListByJob(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("ListByJob failed: %v", err)
	}
	if len(list) != 3 || list[0].SenderType != model.SenderOwner || list[2].SenderType != model.SenderSystem {
		t.Errorf("messages not in ascending order: %+v", list)
	}

	clientUpload := &model.Attachment{ID: uuid.NewString(), JobID: f.job.ID, FileKey: "jobs/a.png", MimeType: "image/png", UploadedByClient: true, CreatedAt: base}
	ownerUpload := &model.Attachment{ID: uuid.NewString(), JobID: f.job.ID, FileKey: "jobs/b.pdf", MimeType: "application/pdf", UploadedByUserID: f.user.ID, CreatedAt: base.Add(time.Second)}
	for _, a := range []*model.Attachment{clientUpload, ownerUpload} {
		if err := atts.Create(ctx, a); err != nil {
			t.Fatalf("Create attachment failed: %v", err)
		}
	}
	attList, err := atts.ListByJob(ctx, f.job.ID)
	if err != nil {
		t.Fatalf("ListByJob failed: %v", err)
	}
	if len(attList) != 2 || attList[0].ID != ownerUpload.ID {
		t.Fatalf("attachments not in descending order")
	}
	if attList[0].UploadedByUserID != f.user.ID || attList[1].UploadedByUserID != "" {
		t.Errorf("uploaded_by_user_id not round-tripped")
	}
}

func TestPostgresAuditLogRepo_DeleteOlderThan(t *testing.T) {
	db := setupRepoDB(t)
	f := createFixture(t, db)
	repo := NewPostgresAuditLogRepo(db)
	ctx := context.Background()

	old := &model.AuditLog{ID: uuid.NewString(), OrgID: f.org.ID, Actor: "system:hubspot", Action: "crm.contact.create",
		TargetType: "job", TargetID: f.job.ID, CreatedAt: time.Now().Add(-100 * 24 * time.Hour)}
	fresh := &model.AuditLog{ID: uuid.NewString(), OrgID: f.org.ID, Actor: "system:hubspot", Action: "crm.deal.create",
		TargetType: "job", TargetID: f.job.ID, Meta: map[string]any{"dealId": "d-1"}, CreatedAt: time.Now()}
	for _, e := range []*model.AuditLog{old, fresh} {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}
