package model

import "time"

// Attachment はジョブに添付されたファイルのメタデータ。
// ファイル本体はオブジェクトストレージに直接アップロードされる。
type Attachment struct {
	ID               string
	JobID            string
	FileKey          string
	MimeType         string
	UploadedByClient bool
	UploadedByUserID string
	CreatedAt        time.Time

	// URL はオブジェクトの公開URL。保存せず、取得時に組み立てる。
	URL string
}

// PresignedUpload は署名付きアップロードURLの発行結果。
type PresignedUpload struct {
	UploadURL    string
	FileKey      string
	AttachmentID string
}
