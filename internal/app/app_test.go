package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prismworlds/portal/internal/config"
	"github.com/prismworlds/portal/internal/session"
	"github.com/prometheus/client_golang/prometheus"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SUPABASE_URL", "http://127.0.0.1:1")
	t.Setenv("SUPABASE_ANON_KEY", "anon-key")
	t.Setenv("DATA_BACKEND", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "info")
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.SupabaseAnonKey != "anon-key" {
		t.Errorf("SupabaseAnonKey = %q, want %q", cfg.SupabaseAnonKey, "anon-key")
	}

	// slogのグローバルロガーがJSON出力に設定されていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("SUPABASE_URL", "")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("SUPABASE_ANON_KEY", "")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_MigrateWithoutDatabaseURL_ReturnsError(t *testing.T) {
	setTestEnv(t)
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	err := Run(&buf, []string{"migrate"})
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("err = %v, want DATABASE_URL error", err)
	}
}

func TestRunHealthcheck_NoServer_ReturnsError(t *testing.T) {
	if err := runHealthcheck("1"); err == nil {
		t.Fatal("expected error when nothing listens on the port")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://prism:supersecret@db:5432/prismworlds?sslmode=disable")
	if strings.Contains(got, "supersecret") {
		t.Errorf("maskDatabaseURL leaked password: %s", got)
	}
	if !strings.Contains(got, "db:5432") {
		t.Errorf("maskDatabaseURL should keep host, got %s", got)
	}
	if maskDatabaseURL("not a url") != "***" {
		t.Errorf("unparseable URL should be fully masked")
	}
}

// fakeService は認証APIとレコードAPIを模したテスト用サーバーを起動する。
// サインインは常に成功し、学生のプロフィールを返す。
func fakeService(t *testing.T) *httptest.Server {
	t.Helper()
	const userID = "5a3f2c1b-9d8e-4f7a-b6c5-d4e3f2a1b0c9"

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "not-a-jwt",
			"refresh_token": "refresh",
			"token_type":    "bearer",
			"expires_in":    3600,
			"user":          map[string]string{"id": userID, "email": "sam@example.com"},
		})
	})
	mux.HandleFunc("/rest/v1/user_profiles", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"`+userID+`","email":"sam@example.com","full_name":"Sam Rivera","role":"student"}]`)
	})
	mux.HandleFunc("/rest/v1/students", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"`+userID+`","grade":"7","school":"Lincoln Middle","state":"CA","eco_points":40,"level":1}]`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBuild_WiresStoreRouterAndRemoteService(t *testing.T) {
	srv := fakeService(t)
	cfg := &config.Config{
		SupabaseURL:          srv.URL,
		SupabaseAnonKey:      "anon-key",
		RemoteTimeout:        5 * time.Second,
		TokenRefreshInterval: time.Minute,
		TokenRefreshMargin:   time.Minute,
		DataBackend:          config.DataBackendREST,
		CORSAllowedOrigin:    "http://localhost:5173",
	}
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := build(ctx, cfg, log, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	defer c.close()

	api := httptest.NewServer(c.router)
	defer api.Close()
	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	// 未認証では保護されたビューからランディングへ誘導される
	resp, err := noRedirect.Get(api.URL + "/dashboard")
	if err != nil {
		t.Fatalf("GET /dashboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/" {
		t.Fatalf("GET /dashboard = %d %q, want 302 /", resp.StatusCode, resp.Header.Get("Location"))
	}

	// サインイン後、プロフィール読み込みを待ってからダッシュボードを表示できる
	resp, err = http.Post(api.URL+"/api/auth/signin", "application/json",
		strings.NewReader(`{"email":"sam@example.com","password":"secret1"}`))
	if err != nil {
		t.Fatalf("POST /api/auth/signin: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/auth/signin status = %d, want 200", resp.StatusCode)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	st, err := c.store.WaitLoaded(waitCtx)
	if err != nil {
		t.Fatalf("WaitLoaded() error = %v", err)
	}
	if st.Phase != session.PhaseAuthenticated || st.Student() == nil || st.Student().EcoPoints != 40 {
		t.Fatalf("state = %+v, want loaded student", st)
	}

	resp, err = noRedirect.Get(api.URL + "/dashboard")
	if err != nil {
		t.Fatalf("GET /dashboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /dashboard after sign in = %d, want 200", resp.StatusCode)
	}

	resp, err = noRedirect.Get(api.URL + "/teacher")
	if err != nil {
		t.Fatalf("GET /teacher: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/dashboard" {
		t.Errorf("GET /teacher = %d %q, want 302 /dashboard", resp.StatusCode, resp.Header.Get("Location"))
	}
}
