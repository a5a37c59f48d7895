package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/ideafeed/internal/middleware"
	"github.com/hitoshi/ideafeed/internal/model"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse はAPIErrorを統一エラーフォーマットで書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		Retryable: apiErr.Retryable,
	})
}

// writeInvalidRequest はリクエストボディの解析失敗を書き込む。
func writeInvalidRequest(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストの形式が不正です。",
		Category: "validation",
		Action:   "リクエストボディを確認してください。",
	})
}

// actorIDFromRequest はActorミドルウェアが設定したアクターIDを取得する。
// 取得できない場合は401を書き込み、falseを返す。
func actorIDFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID, err := middleware.ActorIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewActorRequiredError())
		return "", false
	}
	return actorID, true
}

// handleServiceError はエンジンから返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeIdeaNotFound, model.ErrCodeChannelNotFound, model.ErrCodeMessageNotFound,
		model.ErrCodeProfileNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidMode, model.ErrCodeInvalidVote, model.ErrCodeInvalidIdea,
		model.ErrCodeInvalidChannel, model.ErrCodeInvalidMessage, model.ErrCodeInvalidProfile:
		return http.StatusBadRequest
	case model.ErrCodeSendRejected:
		return http.StatusUnprocessableEntity
	case model.ErrCodeSendFailed, model.ErrCodeVoteFailed:
		return http.StatusBadGateway
	case model.ErrCodeActorRequired:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
