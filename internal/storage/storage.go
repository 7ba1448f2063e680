// Package storage はS3互換オブジェクトストレージへの署名付きアップロードURLを発行する。
// ファイル本体はブラウザから直接PUTされ、サーバーを経由しない。
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// テストで差し替えるためのフック。
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

// allowedContentTypes はアップロード可能なMIMEタイプと保存時の拡張子。
var allowedContentTypes = map[string]string{
	"image/jpeg":         "jpg",
	"image/png":          "png",
	"image/gif":          "gif",
	"image/webp":         "webp",
	"application/pdf":    "pdf",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
}

// ExtensionFor は許可されたMIMEタイプに対応する拡張子を返す。許可外なら ok=false。
func ExtensionFor(contentType string) (ext string, ok bool) {
	ext, ok = allowedContentTypes[strings.ToLower(strings.TrimSpace(contentType))]
	return ext, ok
}

// ObjectKey はジョブ添付ファイルのキー jobs/<jobId>/<uuid>.<ext> を生成する。
func ObjectKey(jobID, ext string) string {
	return fmt.Sprintf("jobs/%s/%s.%s", jobID, uuid.NewString(), ext)
}

// Config はS3接続設定。EndpointはMinIO等のS3互換ストレージを使う場合のみ指定する。
type Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	PresignTTL      time.Duration
}

// S3Presigner は署名付きPUT URLの発行と公開URLの組み立てを行う。
type S3Presigner struct {
	client *s3.PresignClient
	cfg    Config
}

// NewS3Presigner はS3Presignerを生成する。
// 認証情報が未設定の場合はSDKのデフォルト認証チェーン（環境変数・IAMロール）を使う。
func NewS3Presigner(ctx context.Context, cfg Config) (*S3Presigner, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is not configured")
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Presigner{client: s3.NewPresignClient(client), cfg: cfg}, nil
}

// PresignPut はContent-Type固定の署名付きPUT URLを返す。
func (p *S3Presigner) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	req, err := presignPutObject(p.client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(p.cfg.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", key, err)
	}
	return req.URL, nil
}

// PublicURL はオブジェクトの公開URLを返す。
func (p *S3Presigner) PublicURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if p.cfg.Endpoint != "" {
		return strings.TrimRight(p.cfg.Endpoint, "/") + "/" + p.cfg.Bucket + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.cfg.Bucket, p.cfg.Region, escaped)
}
