package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prismworlds/portal/internal/metrics"
	"github.com/prismworlds/portal/internal/middleware"
	"github.com/prismworlds/portal/internal/model"
	"github.com/prismworlds/portal/internal/route"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Store  StoreInterface
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string

	// 計測
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	// HealthChecker はnilでもよい（RESTバックエンドではDB接続を持たない）。
	HealthChecker HealthChecker
}

// NewRouter はビュー、API、運用エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → StripSlashes → SecurityHeaders → CORS → Session → Logging
//
// 保護されたビューにはさらにGateミドルウェアを、/api にはCSRFミドルウェアを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(chimw.StripSlashes)
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.Store))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))

	sessionHandler := NewSessionHandler(deps.Store)

	// --- 運用エンドポイント ---
	r.Get("/health", HealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware())

		r.Get("/session", sessionHandler.GetSession)
		r.Get("/access", sessionHandler.CheckAccess)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", sessionHandler.SignUp)
			r.Post("/signin", sessionHandler.SignIn)
			r.Post("/signout", sessionHandler.SignOut)
		})

		r.Patch("/profile", sessionHandler.UpdateProfile)
		r.Patch("/profile/student", sessionHandler.UpdateStudentProfile)
	})

	// --- ビュー ---
	// 保護されたルートはゲートを通過した場合だけビューを返す
	for _, entry := range route.Table() {
		if entry.Protected {
			r.With(middleware.NewGateMiddleware(entry.View, entry.Role, deps.Metrics)).Get(entry.Path, ViewHandler(entry))
			continue
		}
		r.Get(entry.Path, ViewHandler(entry))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewRouteNotFoundAPIError(r.URL.Path))
	})

	return r
}
