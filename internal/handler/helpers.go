// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/jobdesk/internal/auth"
	"github.com/hitoshi/jobdesk/internal/middleware"
	"github.com/hitoshi/jobdesk/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限。
const maxBodyBytes = 1 << 20

// BodyValidator はリクエストボディをスキーマで検証する。validate.Validatorが実装する。
type BodyValidator interface {
	ValidateBody(schemaName string, body []byte) error
}

// writeJSON はステータスコードとともにJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	return middleware.StatusForCode(apiErr.Code)
}

// decodeBody はボディを読み込み、スキーマ検証の後にdstへデコードする。
// 失敗時はVALIDATION_FAILEDのAPIErrorを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, v BodyValidator, schema string, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.NewValidationError("リクエストボディが大きすぎます")
		}
		return model.NewValidationError("リクエストボディを読み込めません")
	}

	if err := v.ValidateBody(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return model.NewValidationError("リクエストボディの解析に失敗しました")
	}
	return nil
}

// requireOwner はセッションミドルウェアが注入したオーナーを取り出す。
func requireOwner(w http.ResponseWriter, r *http.Request) (*auth.OwnerSession, bool) {
	s, err := middleware.OwnerFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	return s, true
}

// requirePrincipal は二重認可ゲートが注入した操作主体を取り出す。
func requirePrincipal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}
	return p, true
}

// formatTimestamp はレスポンス用にRFC3339(UTC)へ整形する。
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
