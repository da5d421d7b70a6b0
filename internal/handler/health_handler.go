package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prismworlds/portal/internal/middleware"
	"github.com/prismworlds/portal/internal/session"
)

// HealthChecker はヘルスチェック対象の依存（データベース接続など）。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type healthResponse struct {
	Status string        `json:"status"`
	Phase  session.Phase `json:"phase,omitempty"`
}

// HealthHandler はヘルスチェックのハンドラーを返す。
// checkerがnilの場合はプロセスの応答だけを確認する。
func HealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}

		resp := healthResponse{Status: "ok"}
		if st, ok := middleware.StateFromContext(r.Context()); ok {
			resp.Phase = st.Phase
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
