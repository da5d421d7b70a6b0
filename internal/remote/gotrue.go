package remote

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prismworlds/portal/internal/model"
)

// GoTrueConfig は認証APIクライアントの設定。
type GoTrueConfig struct {
	BaseURL   string
	AnonKey   string
	JWTSecret string
	// RefreshMargin は期限切れとみなして更新を始めるまでの余裕時間。
	RefreshMargin time.Duration
}

// GoTrueAuth はホスト型サービスの認証API（/auth/v1）のクライアント。
// 現在のセッションを保持し、変化をサブスクライバへ発生順に通知する。
type GoTrueAuth struct {
	api     endpoint
	logger  *slog.Logger
	tokens  *TokenParser
	storage SessionStorage
	margin  time.Duration
	now     func() time.Time

	// emitMu はセッションの書き換えと通知を直列化する。
	emitMu sync.Mutex
	// refreshMu は同じリフレッシュトークンが二重に使われないよう更新を1件ずつに制限する。
	refreshMu sync.Mutex

	mu       sync.Mutex
	session  *model.Session
	loaded   bool
	handlers map[uint64]SessionChangeHandler
	nextID   uint64
}

// NewGoTrueAuth はGoTrueAuthを生成する。storageがnilの場合はメモリに保持する。
func NewGoTrueAuth(httpClient *http.Client, logger *slog.Logger, storage SessionStorage, cfg GoTrueConfig) *GoTrueAuth {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	return &GoTrueAuth{
		api: endpoint{
			httpClient: httpClient,
			baseURL:    cfg.BaseURL,
			anonKey:    cfg.AnonKey,
		},
		logger:   logger,
		tokens:   NewTokenParser(cfg.JWTSecret),
		storage:  storage,
		margin:   cfg.RefreshMargin,
		now:      time.Now,
		handlers: make(map[uint64]SessionChangeHandler),
	}
}

// tokenResponse はトークン発行レスポンス。
// メール確認が有効なサインアップではトークンを含まずユーザー情報だけが返る。
type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`

	ID    string `json:"id"`
	Email string `json:"email"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// GetCurrentSession は保持しているセッションを返す。
// 期限切れが近い場合はリフレッシュトークンで更新してから返す。
func (a *GoTrueAuth) GetCurrentSession(ctx context.Context) (*model.Session, error) {
	session := a.current()
	if session == nil || !session.Expired(a.now(), a.margin) {
		return session, nil
	}
	return a.refresh(ctx, session)
}

// OnSessionChange はセッション変化のハンドラを登録し、登録解除関数を返す。
func (a *GoTrueAuth) OnSessionChange(handler SessionChangeHandler) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.handlers[id] = handler
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.handlers, id)
			a.mu.Unlock()
		})
	}
}

// SignUp はアカウントを作成する。metadataはユーザーメタデータとして保存され、
// サービス側でuser_profiles行の作成に使われる。
// サービスがセッションを同時に発行した場合はサインイン状態になる。
func (a *GoTrueAuth) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.Identity, error) {
	req, err := a.api.newRequest(ctx, http.MethodPost, "/auth/v1/signup", map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	}, "")
	if err != nil {
		return nil, err
	}

	var resp tokenResponse
	if err := a.api.do(req, &resp); err != nil {
		a.logger.Warn("sign up rejected", slog.String("error", err.Error()))
		return nil, err
	}

	if resp.AccessToken != "" {
		session, err := a.toSession(&resp)
		if err != nil {
			return nil, err
		}
		a.setSession(session, model.AuthEventSignedIn)
		identity := session.Identity
		return &identity, nil
	}

	user := resp.User
	if user == nil {
		user = &userResponse{ID: resp.ID, Email: resp.Email}
	}
	if user.ID == "" {
		return nil, &model.ServiceError{
			Code:    "invalid_response",
			Message: "The service did not return the new account.",
		}
	}
	return &model.Identity{ID: user.ID, Email: user.Email}, nil
}

// SignIn はパスワードでサインインし、発行されたセッションを保持する。
func (a *GoTrueAuth) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	req, err := a.api.newRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	if err != nil {
		return nil, err
	}

	var resp tokenResponse
	if err := a.api.do(req, &resp); err != nil {
		a.logger.Warn("sign in rejected", slog.String("error", err.Error()))
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &model.ServiceError{
			Code:    "invalid_response",
			Message: "The service did not issue a session.",
		}
	}

	session, err := a.toSession(&resp)
	if err != nil {
		return nil, err
	}
	a.setSession(session, model.AuthEventSignedIn)
	return session, nil
}

// SignOut はセッションを失効させ、ローカルのセッションを破棄する。
// セッションがない場合は何もしない。
// サービスがトークンを既に無効と判断した場合（401/403/404）もローカルは破棄する。
func (a *GoTrueAuth) SignOut(ctx context.Context) error {
	session := a.current()
	if session == nil {
		return nil
	}

	req, err := a.api.newRequest(ctx, http.MethodPost, "/auth/v1/logout", nil, session.AccessToken)
	if err != nil {
		return err
	}
	if err := a.api.do(req, nil); err != nil {
		if !IsStatus(err, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound) {
			return err
		}
		a.logger.Info("session already revoked remotely", slog.String("error", err.Error()))
	}

	a.setSession(nil, model.AuthEventSignedOut)
	return nil
}

// AccessToken は現在のアクセストークンを返す。セッションがない場合は空文字を返す。
func (a *GoTrueAuth) AccessToken() string {
	if s := a.current(); s != nil {
		return s.AccessToken
	}
	return ""
}

// RunAutoRefresh はintervalごとにセッションの期限を確認し、期限切れが近ければ更新する。
// ctxがキャンセルされるまでブロックする。
func (a *GoTrueAuth) RunAutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			session := a.current()
			if session == nil || !session.Expired(a.now(), a.margin) {
				continue
			}
			if _, err := a.refresh(ctx, session); err != nil {
				a.logger.Error("token refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// refresh はリフレッシュトークンでセッションを更新する。
// サービスがリフレッシュトークンを拒否した場合はサインアウト状態にする。
// 応答を待つ間にサインアウトや別のサインインが起きた場合、更新結果は破棄する。
func (a *GoTrueAuth) refresh(ctx context.Context, session *model.Session) (*model.Session, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	// 待機中に別の更新やサインアウトが済んでいれば、その結果を返す
	if cur := a.current(); cur != session {
		return cur, nil
	}

	if session.RefreshToken == "" {
		a.swapSession(session, nil, model.AuthEventSignedOut)
		return a.current(), nil
	}

	req, err := a.api.newRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": session.RefreshToken,
	}, "")
	if err != nil {
		return nil, err
	}

	var resp tokenResponse
	if err := a.api.do(req, &resp); err != nil {
		if IsStatus(err, http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden) {
			a.logger.Warn("refresh token rejected, signing out", slog.String("error", err.Error()))
			a.swapSession(session, nil, model.AuthEventSignedOut)
			return a.current(), nil
		}
		return nil, err
	}

	next, err := a.toSession(&resp)
	if err != nil {
		return nil, err
	}
	if !a.swapSession(session, next, model.AuthEventTokenRefreshed) {
		a.logger.Info("discarding refreshed session, session changed while refreshing")
		return a.current(), nil
	}
	return next, nil
}

// current は保持しているセッションを返す。初回はストレージから読み込む。
// 署名検証が有効な場合、検証できない保存済みセッションは破棄する。
func (a *GoTrueAuth) current() *model.Session {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		a.loaded = true
		stored, err := a.storage.Load()
		if err != nil {
			a.logger.Warn("failed to load stored session", slog.String("error", err.Error()))
		}
		if stored != nil {
			if err := a.tokens.VerifySignature(stored.AccessToken); err != nil {
				a.logger.Warn("discarding stored session with unverifiable token", slog.String("error", err.Error()))
				if err := a.storage.Clear(); err != nil {
					a.logger.Warn("failed to clear stored session", slog.String("error", err.Error()))
				}
				stored = nil
			}
		}
		a.session = stored
	}
	return a.session
}

// setSession はセッションを書き換えて保存し、登録済みハンドラへ通知する。
func (a *GoTrueAuth) setSession(session *model.Session, event model.AuthEvent) {
	a.commit(nil, false, session, event)
}

// swapSession は保持中のセッションがexpectのままである場合だけ書き換える。
// 書き換えた場合はtrueを返す。
func (a *GoTrueAuth) swapSession(expect, session *model.Session, event model.AuthEvent) bool {
	return a.commit(expect, true, session, event)
}

func (a *GoTrueAuth) commit(expect *model.Session, conditional bool, session *model.Session, event model.AuthEvent) bool {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()

	a.mu.Lock()
	if conditional && (!a.loaded || a.session != expect) {
		a.mu.Unlock()
		return false
	}
	a.loaded = true
	a.session = session
	handlers := make([]SessionChangeHandler, 0, len(a.handlers))
	for id := uint64(0); id < a.nextID; id++ {
		if h, ok := a.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	a.mu.Unlock()

	var err error
	if session == nil {
		err = a.storage.Clear()
	} else {
		err = a.storage.Save(session)
	}
	if err != nil {
		a.logger.Warn("failed to persist session", slog.String("error", err.Error()))
	}

	for _, h := range handlers {
		h(event, session)
	}
	return true
}

// toSession はトークンレスポンスをSessionに変換する。
// Identityの発行時刻と有効期限はアクセストークンのクレームから読み取る。
// 署名検証が有効な場合、検証できないトークンはinvalid_tokenとして拒否する。
func (a *GoTrueAuth) toSession(resp *tokenResponse) (*model.Session, error) {
	session := &model.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
	}
	switch {
	case resp.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		session.ExpiresAt = a.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if resp.User != nil {
		session.Identity.ID = resp.User.ID
		session.Identity.Email = resp.User.Email
	}

	claims, err := a.tokens.Parse(resp.AccessToken)
	if err != nil {
		if a.tokens.Verifies() {
			a.logger.Warn("access token failed verification", slog.String("error", err.Error()))
			return nil, &model.ServiceError{
				Code:    "invalid_token",
				Message: "The service issued an access token that could not be verified.",
				Err:     err,
			}
		}
		a.logger.Warn("failed to read access token claims", slog.String("error", err.Error()))
		session.Identity.ExpiresAt = session.ExpiresAt
		return session, nil
	}

	if a.tokens.Verifies() && claims.Subject != "" {
		// 検証済みのクレームをレスポンスボディより優先する
		session.Identity.ID = claims.Subject
		if claims.Email != "" {
			session.Identity.Email = claims.Email
		}
	}
	if session.Identity.ID == "" {
		session.Identity.ID = claims.Subject
	}
	if session.Identity.Email == "" {
		session.Identity.Email = claims.Email
	}
	if claims.IssuedAt != nil {
		session.Identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.Identity.ExpiresAt = claims.ExpiresAt.Time
		if session.ExpiresAt.IsZero() {
			session.ExpiresAt = claims.ExpiresAt.Time
		}
	} else {
		session.Identity.ExpiresAt = session.ExpiresAt
	}
	return session, nil
}

// compile-time interface check
var _ Authenticator = (*GoTrueAuth)(nil)
