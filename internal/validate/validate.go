// Package validate は埋め込みOpenAPI定義のスキーマでリクエストボディを検証する。
package validate

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/hitoshi/jobdesk/internal/model"
)

//go:embed openapi.yaml
var openAPISpec []byte

// スキーマ名
const (
	SchemaLogin             = "LoginRequest"
	SchemaCreateJob         = "CreateJobRequest"
	SchemaUpdateJob         = "UpdateJobRequest"
	SchemaCreateMessage     = "CreateMessageRequest"
	SchemaPresignAttachment = "PresignAttachmentRequest"
	SchemaCreateInvoice     = "CreateInvoiceRequest"
)

// Validator はOpenAPIのコンポーネントスキーマでJSONを検証する。
type Validator struct {
	doc      *openapi3.T
	document []byte
}

// New は埋め込み定義を読み込み、定義自体の妥当性を検証してValidatorを返す。
func New() (*Validator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	document, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI document: %w", err)
	}
	return &Validator{doc: doc, document: document}, nil
}

// Document はJSON形式のOpenAPI定義を返す。/api/openapi.json で配信する。
func (v *Validator) Document() []byte {
	return v.document
}

// ValidateBody はボディが指定スキーマに適合するかを検証する。
// 不適合の場合はVALIDATION_FAILEDのAPIErrorを返す。
func (v *Validator) ValidateBody(schemaName string, body []byte) error {
	ref, ok := v.doc.Components.Schemas[schemaName]
	if !ok || ref.Value == nil {
		return fmt.Errorf("unknown schema %q", schemaName)
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return model.NewValidationError("リクエストボディがJSONとして不正です")
	}

	if err := ref.Value.VisitJSON(value); err != nil {
		return model.NewValidationError(describe(err))
	}
	return nil
}

// describe はスキーマ違反を "field: reason" 形式にする。
func describe(err error) string {
	var schemaErr *openapi3.SchemaError
	if !errors.As(err, &schemaErr) {
		return err.Error()
	}
	field := strings.Join(schemaErr.JSONPointer(), ".")
	if field == "" {
		return schemaErr.Reason
	}
	return field + ": " + schemaErr.Reason
}
