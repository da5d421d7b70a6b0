package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/prismworlds/portal/internal/gate"
	"github.com/prismworlds/portal/internal/middleware"
	"github.com/prismworlds/portal/internal/model"
	"github.com/prismworlds/portal/internal/route"
	"github.com/prismworlds/portal/internal/session"
	"github.com/prismworlds/portal/internal/validation"
)

// StoreInterface はセッションハンドラーが必要とするStoreの操作。
type StoreInterface interface {
	Snapshot() session.State
	WaitLoaded(ctx context.Context) (session.State, error)
	SignUp(ctx context.Context, form validation.SignUpForm) (*model.Identity, error)
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	UpdateProfile(ctx context.Context, upd model.UserProfileUpdate) error
	UpdateStudentProfile(ctx context.Context, upd model.StudentProfileUpdate) error
}

// SessionHandler はセッション・プロフィールAPIのHTTPハンドラー。
type SessionHandler struct {
	store       StoreInterface
	waitTimeout time.Duration
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(store StoreInterface) *SessionHandler {
	return &SessionHandler{
		store:       store,
		waitTimeout: 10 * time.Second,
	}
}

// identityResponse は認証主体のAPIレスポンス。トークンは含めない。
type identityResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// sessionResponse はセッション状態のAPIレスポンス。
type sessionResponse struct {
	Phase        session.Phase         `json:"phase"`
	Loading      bool                  `json:"loading"`
	Identity     *identityResponse     `json:"identity"`
	User         *model.UserProfile    `json:"user"`
	Student      *model.StudentProfile `json:"student"`
	Teacher      *model.TeacherProfile `json:"teacher"`
	DefaultRoute string                `json:"default_route"`
}

func toSessionResponse(st session.State) sessionResponse {
	resp := sessionResponse{
		Phase:        st.Phase,
		Loading:      st.Loading,
		User:         st.User,
		Student:      st.Student(),
		Teacher:      st.Teacher(),
		DefaultRoute: gate.DefaultRoute(st),
	}
	if id := st.Identity(); id != nil {
		resp.Identity = &identityResponse{ID: id.ID, Email: id.Email}
		if !id.ExpiresAt.IsZero() {
			expiresAt := id.ExpiresAt
			resp.Identity.ExpiresAt = &expiresAt
		}
	}
	return resp
}

// signInRequest はサインインリクエストのボディ。
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GetSession は現在のセッション状態を返す。
// GET /api/session
// ?wait=1 の場合はプロフィール読み込みの完了を待ってから返す。
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "" {
		writeJSON(w, http.StatusOK, toSessionResponse(h.store.Snapshot()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
	defer cancel()

	st, err := h.store.WaitLoaded(ctx)
	if err != nil {
		// 待機が打ち切られた場合は読み込み中の状態をそのまま返す
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusAccepted, toSessionResponse(st))
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(st))
}

// SignUp はアカウントを作成する。
// POST /api/auth/signup
func (h *SessionHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var form validation.SignUpForm
	if !decodeBody(w, r, &form) {
		return
	}

	identity, err := h.store.SignUp(r.Context(), form)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, identityResponse{ID: identity.ID, Email: identity.Email})
}

// SignIn はメールアドレスとパスワードでサインインする。
// POST /api/auth/signin
// プロフィールはセッション変化の通知を受けて読み込まれるため、応答時点では読み込み中の場合がある。
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.store.SignIn(r.Context(), req.Email, req.Password); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(h.store.Snapshot()))
}

// SignOut はサインアウトする。未認証の場合も成功を返す。
// POST /api/auth/signout
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SignOut(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateProfile はユーザープロフィールを部分更新する。
// PATCH /api/profile
func (h *SessionHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd model.UserProfileUpdate
	if !decodeBody(w, r, &upd) {
		return
	}

	if err := h.store.UpdateProfile(r.Context(), upd); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(h.store.Snapshot()))
}

// UpdateStudentProfile は生徒プロフィールを部分更新する。
// PATCH /api/profile/student
func (h *SessionHandler) UpdateStudentProfile(w http.ResponseWriter, r *http.Request) {
	var upd model.StudentProfileUpdate
	if !decodeBody(w, r, &upd) {
		return
	}

	if err := h.store.UpdateStudentProfile(r.Context(), upd); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(h.store.Snapshot()))
}

// CheckAccess は画面遷移せずにパスのアクセス判定を返す。
// GET /api/access?path=/dashboard
func (h *SessionHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	entry, params, ok := route.Match(path)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewRouteNotFoundAPIError(path))
		return
	}

	st, ok := middleware.StateFromContext(r.Context())
	if !ok {
		st = h.store.Snapshot()
	}

	decision := gate.Decision{Kind: gate.Allow}
	if entry.Protected {
		decision = gate.Decide(st, entry.Role)
	}

	writeJSON(w, http.StatusOK, accessResponse{
		Path:     path,
		View:     entry.View,
		Params:   params,
		Decision: decision,
	})
}

// accessResponse はアクセス判定のAPIレスポンス。
type accessResponse struct {
	Path   string            `json:"path"`
	View   string            `json:"view"`
	Params map[string]string `json:"params,omitempty"`
	gate.Decision
}
