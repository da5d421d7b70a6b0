// Package app は設定の読み込みから各コンポーネントの組み立て、サブコマンドの実行までを担う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prismworlds/portal/internal/config"
	"github.com/prismworlds/portal/internal/database"
	"github.com/prismworlds/portal/internal/handler"
	"github.com/prismworlds/portal/internal/logger"
	"github.com/prismworlds/portal/internal/metrics"
	"github.com/prismworlds/portal/internal/remote"
	"github.com/prismworlds/portal/internal/repository"
	"github.com/prismworlds/portal/internal/session"
	"github.com/prismworlds/portal/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（既存の環境変数は上書きしない）
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("supabase_url", cfg.SupabaseURL),
		slog.String("data_backend", string(cfg.DataBackend)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// components はserveモードで組み立てた依存関係。
type components struct {
	auth   *remote.GoTrueAuth
	store  *session.Store
	db     *sql.DB
	router http.Handler
}

// close はStoreの購読と読み込みを止め、DB接続を閉じる。
func (c *components) close() {
	c.store.Close()
	if c.db != nil {
		c.db.Close()
	}
}

// build は設定から全依存関係をワイヤリングし、Storeを起動する。
func build(ctx context.Context, cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (*components, error) {
	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. 認証クライアント
	httpClient := &http.Client{Timeout: cfg.RemoteTimeout}

	var storage remote.SessionStorage
	if cfg.SessionFile != "" {
		storage = remote.NewFileStorage(cfg.SessionFile)
	}
	auth := remote.NewGoTrueAuth(httpClient, log, storage, remote.GoTrueConfig{
		BaseURL:       cfg.SupabaseURL,
		AnonKey:       cfg.SupabaseAnonKey,
		JWTSecret:     cfg.SupabaseJWTSecret,
		RefreshMargin: cfg.TokenRefreshMargin,
	})

	// 3. レコード操作の接続先
	c := &components{auth: auth}
	var records remote.RecordStore
	switch cfg.DataBackend {
	case config.DataBackendPostgres:
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		log.Info("database connection established")
		c.db = db
		records = repository.NewPostgresRecordStore(db)
	default:
		records = remote.NewPostgRESTRecords(httpClient, log, cfg.SupabaseURL, cfg.SupabaseAnonKey, auth)
	}

	// 4. Store
	client := remote.NewService(auth, records, collector)
	c.store = session.NewStore(client, validation.New(), log, collector)
	c.store.Start(ctx)

	// 5. ルーター
	deps := &handler.RouterDeps{
		Store:             c.store,
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Metrics:           collector,
		Gatherer:          reg,
	}
	if c.db != nil {
		deps.HealthChecker = c.db
	}
	c.router = handler.NewRouter(deps)

	return c, nil
}

// runServe はBFFサーバーモードで起動する。
// 全依存関係をワイヤリングし、トークン自動更新とHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c, err := build(ctx, cfg, slog.Default(), reg)
	if err != nil {
		return err
	}
	defer c.close()

	go c.auth.RunAutoRefresh(ctx, cfg.TokenRefreshInterval)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: c.router,
		// WriteTimeoutは /api/session?wait=1 の待機時間より長くする
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
