package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/prismworlds/portal/internal/gate"
	"github.com/prismworlds/portal/internal/model"
)

// GateRecorder はアクセス判定の計測インターフェース。
type GateRecorder interface {
	RecordGateDecision(view, decision string)
}

// LoadingView は判定保留中に返すビュー。
type LoadingView struct {
	View string `json:"view"`
	Path string `json:"path"`
}

// NewGateMiddleware は保護されたビューの前段でアクセス判定を行うミドルウェアを返す。
// requiredが空の場合はロールを問わず認証済みであればよい。
//
//   - Allow: 後続のハンドラーへ委譲
//   - Redirect: 302で既定ルートへ誘導
//   - Pending: 202でloadingビューを返し、Retry-Afterで再試行を促す
//
// セッション状態はNewSessionMiddlewareが注入したものを使う。
func NewGateMiddleware(view string, required model.Role, recorder GateRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st, ok := StateFromContext(r.Context())
			if !ok {
				WriteInternalServerError(w)
				return
			}

			decision := gate.Decide(st, required)
			if recorder != nil {
				recorder.RecordGateDecision(view, string(decision.Kind))
			}

			switch decision.Kind {
			case gate.Allow:
				next.ServeHTTP(w, r)
			case gate.Redirect:
				http.Redirect(w, r, decision.Target, http.StatusFound)
			default:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusAccepted)
				json.NewEncoder(w).Encode(LoadingView{View: "loading", Path: r.URL.Path})
			}
		})
	}
}
