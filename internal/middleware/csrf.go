package middleware

import (
	"log/slog"
	"mime"
	"net/http"

	"github.com/prismworlds/portal/internal/model"
)

// NewCSRFMiddleware は状態変更リクエストにJSONのContent-Typeを要求するミドルウェアを返す。
// プロセスが単一のセッションを保持するため、クロスサイトのフォーム送信で
// サインアウトやプロフィール更新が行われないようにする。
// application/jsonはCORSの単純リクエストに該当せず、他オリジンからはプリフライトで止まる。
func NewCSRFMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				slog.Warn("CSRF validation failed: non-JSON content type",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusUnsupportedMediaType, &model.APIError{
					Code:     "UNSUPPORTED_MEDIA_TYPE",
					Message:  "Requests that change state must send application/json.",
					Category: "validation",
					Action:   "Set the Content-Type header to application/json.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
