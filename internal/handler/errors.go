package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prismworlds/portal/internal/middleware"
	"github.com/prismworlds/portal/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// decodeBody はリクエストボディをdestにデコードする。
// 失敗した場合はINVALID_BODYを書き込んでfalseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dest); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyAPIError())
		return false
	}
	return true
}

const maxBodyBytes = 64 << 10

// handleServiceError はStoreから返されたエラーを適切なHTTPステータスコードに変換する。
//
//   - ValidationError: 400
//   - ErrNotAuthenticated: 401
//   - ServiceError: リモートが返した4xxはそのまま、それ以外は502
func handleServiceError(w http.ResponseWriter, err error) {
	var validationErr *model.ValidationError
	if errors.As(err, &validationErr) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationAPIError(validationErr))
		return
	}

	if errors.Is(err, model.ErrNotAuthenticated) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedAPIError())
		return
	}

	var svcErr *model.ServiceError
	if errors.As(err, &svcErr) {
		middleware.WriteErrorResponse(w, serviceErrorStatus(svcErr), model.NewRemoteServiceAPIError(svcErr))
		return
	}

	// 未分類のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// serviceErrorStatus はServiceErrorのHTTPステータスを決める。
// リモートが入力起因と判断した4xxは呼び出し元へ伝え、障害は502にまとめる。
func serviceErrorStatus(err *model.ServiceError) int {
	if err.Status >= 400 && err.Status < 500 {
		return err.Status
	}
	return http.StatusBadGateway
}
