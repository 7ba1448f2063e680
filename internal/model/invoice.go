package model

import (
	"fmt"
	"time"
)

// InvoiceStatus は請求書の状態を表す。
type InvoiceStatus string

const (
	// InvoiceStatusDraft は作成直後の下書き。
	InvoiceStatusDraft InvoiceStatus = "DRAFT"
	// InvoiceStatusSent は支払いリンクを発行済み。
	InvoiceStatusSent InvoiceStatus = "SENT"
	// InvoiceStatusPaid は支払い完了。
	InvoiceStatusPaid InvoiceStatus = "PAID"
	// InvoiceStatusVoid は無効化済み。
	InvoiceStatusVoid InvoiceStatus = "VOID"
)

// Invoice はジョブに対する請求書。金額はすべて最小通貨単位（セント等）の整数。
type Invoice struct {
	ID             string
	JobID          string
	Number         string
	Currency       string
	Subtotal       int64
	Tax            int64
	Total          int64
	Status         InvoiceStatus
	PaymentLinkURL string
	Items          []*InvoiceItem
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// OrgID は請求書が属するジョブの組織ID（JOINで取得）。
	OrgID string
}

// InvoiceItem は請求明細行。
type InvoiceItem struct {
	ID          string
	InvoiceID   string
	Description string
	Qty         int64
	UnitAmount  int64
}

// FormatInvoiceNumber はジョブ内の連番から請求書番号を生成する（例: INV-0001）。
func FormatInvoiceNumber(seq int) string {
	return fmt.Sprintf("INV-%04d", seq)
}
