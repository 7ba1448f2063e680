package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/jobdesk/internal/model"
)

// PostgresInvoiceRepo はPostgreSQLを使用した請求書リポジトリ。
type PostgresInvoiceRepo struct {
	db *sql.DB
}

// NewPostgresInvoiceRepo はPostgresInvoiceRepoを生成する。
func NewPostgresInvoiceRepo(db *sql.DB) *PostgresInvoiceRepo {
	return &PostgresInvoiceRepo{db: db}
}

const invoiceSelectColumns = `i.id, i.job_id, i.number, i.currency, i.subtotal, i.tax, i.total,
	i.status, i.payment_link_url, i.created_at, i.updated_at, j.org_id`

func scanInvoice(s rowScanner) (*model.Invoice, error) {
	inv := &model.Invoice{}
	var link sql.NullString
	err := s.Scan(&inv.ID, &inv.JobID, &inv.Number, &inv.Currency, &inv.Subtotal, &inv.Tax, &inv.Total,
		&inv.Status, &link, &inv.CreatedAt, &inv.UpdatedAt, &inv.OrgID)
	if err != nil {
		return nil, err
	}
	inv.PaymentLinkURL = link.String
	return inv, nil
}

// FindByID は明細と組織ID付きで請求書を取得する。見つからない場合はnilを返す。
func (r *PostgresInvoiceRepo) FindByID(ctx context.Context, id string) (*model.Invoice, error) {
	if !isUUID(id) {
		return nil, nil
	}
	inv, err := scanInvoice(r.db.QueryRowContext(ctx,
		`SELECT `+invoiceSelectColumns+`
		 FROM invoices i JOIN jobs j ON j.id = i.job_id
		 WHERE i.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("請求書の取得に失敗しました: %w", err)
	}
	if err := r.attachItems(ctx, []*model.Invoice{inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListByJob はジョブの請求書を明細付きで作成日時の降順に返す。
func (r *PostgresInvoiceRepo) ListByJob(ctx context.Context, jobID string) ([]*model.Invoice, error) {
	if !isUUID(jobID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invoiceSelectColumns+`
		 FROM invoices i JOIN jobs j ON j.id = i.job_id
		 WHERE i.job_id = $1
		 ORDER BY i.created_at DESC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("請求書一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var invoices []*model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("請求書のスキャンに失敗しました: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("請求書一覧の走査に失敗しました: %w", err)
	}
	if err := r.attachItems(ctx, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

// attachItems は請求書に明細を1クエリでまとめて読み込む。
func (r *PostgresInvoiceRepo) attachItems(ctx context.Context, invoices []*model.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	byID := make(map[string]*model.Invoice, len(invoices))
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		byID[inv.ID] = inv
		ids = append(ids, inv.ID)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, invoice_id, description, qty, unit_amount
		 FROM invoice_items WHERE invoice_id = ANY($1::uuid[])
		 ORDER BY invoice_id, id`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("請求明細の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item := &model.InvoiceItem{}
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Description, &item.Qty, &item.UnitAmount); err != nil {
			return fmt.Errorf("請求明細のスキャンに失敗しました: %w", err)
		}
		if inv, ok := byID[item.InvoiceID]; ok {
			inv.Items = append(inv.Items, item)
		}
	}
	return rows.Err()
}

// CreateWithItems は請求書番号を採番し、請求書と明細を同一トランザクションで作成する。
// 同一ジョブへの並行作成はジョブ行のロックで直列化する。
func (r *PostgresInvoiceRepo) CreateWithItems(ctx context.Context, inv *model.Invoice) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT id FROM jobs WHERE id = $1 FOR UPDATE`, inv.JobID); err != nil {
		return fmt.Errorf("ジョブのロックに失敗しました: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices WHERE job_id = $1`, inv.JobID,
	).Scan(&count); err != nil {
		return fmt.Errorf("請求書数の取得に失敗しました: %w", err)
	}
	inv.Number = model.FormatInvoiceNumber(count + 1)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO invoices (id, job_id, number, currency, subtotal, tax, total, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		inv.ID, inv.JobID, inv.Number, inv.Currency, inv.Subtotal, inv.Tax, inv.Total, inv.Status,
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("請求書の作成に失敗しました: %w", err)
	}

	for _, item := range inv.Items {
		item.InvoiceID = inv.ID
		_, err = tx.ExecContext(ctx,
			`INSERT INTO invoice_items (id, invoice_id, description, qty, unit_amount)
			 VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.InvoiceID, item.Description, item.Qty, item.UnitAmount,
		)
		if err != nil {
			return fmt.Errorf("請求明細の作成に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdatePaymentLink は支払いリンクURLとステータスを更新する。
func (r *PostgresInvoiceRepo) UpdatePaymentLink(ctx context.Context, id, url string, status model.InvoiceStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET payment_link_url = $2, status = $3, updated_at = now() WHERE id = $1`,
		id, url, status,
	)
	if err != nil {
		return fmt.Errorf("支払いリンクの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ InvoiceRepository = (*PostgresInvoiceRepo)(nil)
