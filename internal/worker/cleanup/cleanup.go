// Package cleanup は定期的なデータ整理ジョブを提供する。
// 保持期間（デフォルト90日）を超過した監査ログの削除と、
// 期限切れポータルトークン指紋の消去を行う。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// AuditPruner は古い監査ログを削除する。repository.AuditLogRepositoryが実装する。
type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// PortalTokenPruner は期限切れの指紋を消去する。repository.JobRepositoryが実装する。
type PortalTokenPruner interface {
	ClearExpiredPortalTokens(ctx context.Context, now time.Time) (int64, error)
}

// Recorder は処理件数を記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordCleanup(kind string, count int64)
}

// CleanupJob はデータ整理ジョブ。冪等で、対象がない場合もエラーにならない。
type CleanupJob struct {
	audit         AuditPruner
	tokens        PortalTokenPruner
	recorder      Recorder
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // 監査ログの保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(audit AuditPruner, tokens PortalTokenPruner, recorder Recorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		audit:         audit,
		tokens:        tokens,
		recorder:      recorder,
		logger:        logger,
		now:           time.Now,
		RetentionDays: 90,
	}
}

// Start は指定間隔でRunを繰り返す。起動直後に1回実行し、ctxがキャンセルされるまで続ける。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました", slog.Duration("interval", interval))

	j.runAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *CleanupJob) runAndLog(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました", slog.String("error", err.Error()))
	}
}

// Run は監査ログの削除と指紋の消去を1回実行する。
// 片方が失敗してももう片方は実行し、両方のエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	now := j.now()

	var errs []error

	before := now.AddDate(0, 0, -j.RetentionDays)
	auditCount, err := j.audit.DeleteOlderThan(ctx, before)
	if err != nil {
		j.logger.Error("監査ログの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		errs = append(errs, fmt.Errorf("監査ログの削除に失敗: %w", err))
	} else {
		j.record("audit_logs", auditCount)
	}

	tokenCount, err := j.tokens.ClearExpiredPortalTokens(ctx, now)
	if err != nil {
		j.logger.Error("期限切れポータルトークンの消去に失敗しました", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("ポータルトークンの消去に失敗: %w", err))
	} else {
		j.record("portal_tokens", tokenCount)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_audit_logs", auditCount),
		slog.Int64("cleared_portal_tokens", tokenCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (j *CleanupJob) record(kind string, count int64) {
	if j.recorder != nil {
		j.recorder.RecordCleanup(kind, count)
	}
}
