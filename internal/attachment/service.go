// Package attachment はジョブ添付ファイルの署名付きアップロードと一覧を扱う。
package attachment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/model"
	"github.com/hitoshi/jobdesk/internal/repository"
	"github.com/hitoshi/jobdesk/internal/storage"
)

// Presigner は署名付きアップロードURLを発行する。storage.S3Presignerが実装する。
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string) (string, error)
	PublicURL(key string) string
}

// Service は添付ファイルのサービス層。
// presignerがnilの場合（ストレージ未設定）、発行はエラーになる。
type Service struct {
	repo      repository.AttachmentRepository
	presigner Presigner
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.AttachmentRepository, presigner Presigner) *Service {
	return &Service{repo: repo, presigner: presigner, now: time.Now}
}

// Presign はContent-Typeを検証し、署名付きURLを発行してメタデータを記録する。
// アップロード完了は確認しない。
func (s *Service) Presign(ctx context.Context, p *auth.Principal, jobID, contentType string, uploadedByClient bool) (*model.PresignedUpload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := storage.ExtensionFor(contentType)
	if !ok {
		return nil, model.NewInvalidContentTypeError(contentType)
	}
	if s.presigner == nil {
		return nil, fmt.Errorf("オブジェクトストレージが設定されていません")
	}

	key := storage.ObjectKey(jobID, ext)
	uploadURL, err := s.presigner.PresignPut(ctx, key, contentType)
	if err != nil {
		return nil, fmt.Errorf("署名付きURLの発行に失敗しました: %w", err)
	}

	att := &model.Attachment{
		ID:               uuid.NewString(),
		JobID:            jobID,
		FileKey:          key,
		MimeType:         contentType,
		UploadedByClient: p.Kind == auth.ActorClient || uploadedByClient,
		UploadedByUserID: p.UserID(),
		CreatedAt:        s.now(),
	}
	if err := s.repo.Create(ctx, att); err != nil {
		return nil, fmt.Errorf("添付ファイル情報の保存に失敗しました: %w", err)
	}

	slog.Info("attachment presigned",
		slog.String("job_id", jobID),
		slog.String("file_key", key),
		slog.String("actor", p.Label()),
	)
	return &model.PresignedUpload{UploadURL: uploadURL, FileKey: key, AttachmentID: att.ID}, nil
}

// List はジョブの添付ファイルを新しい順に公開URL付きで返す。
func (s *Service) List(ctx context.Context, jobID string) ([]*model.Attachment, error) {
	attachments, err := s.repo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("添付ファイル一覧の取得に失敗しました: %w", err)
	}
	if s.presigner != nil {
		for _, a := range attachments {
			a.URL = s.presigner.PublicURL(a.FileKey)
		}
	}
	return attachments, nil
}
