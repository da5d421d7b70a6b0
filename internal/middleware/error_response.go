package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/prismworlds/portal/internal/model"
)

// ErrorResponseBody はAPIとビューの両方で返すエラーボディ。
// categoryは auth、validation、remote、system のいずれか。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse はapiErrをJSONで書き込む。
// エラー応答はセッションごとに異なるため、キャッシュさせない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError はパニックやセッション未注入など、想定外の失敗を500で返す。
// 原因はログにだけ残し、リモートサービスのエラー内容は含めない。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Something went wrong on our side.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	})
}
