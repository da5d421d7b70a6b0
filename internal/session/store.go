package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prismworlds/portal/internal/model"
	"github.com/prismworlds/portal/internal/remote"
	"github.com/prismworlds/portal/internal/validation"
)

// Recorder はStoreの計測インターフェース。
type Recorder interface {
	RecordProfileLoad(outcome string, duration time.Duration)
	RecordStateTransition(phase string)
}

// プロフィール読み込みの結果ラベル
const (
	LoadComplete = "complete"
	LoadPartial  = "partial"
	LoadStale    = "stale"
)

// Observer は状態の公開を受け取る。公開順に1件ずつ呼ばれる。
// Observerの中からStoreの更新系メソッドを同期的に呼んではならない。
type Observer func(State)

// Store はセッションとプロフィールの状態を保持する。
type Store struct {
	client    remote.Client
	validator *validation.Validator
	logger    *slog.Logger
	recorder  Recorder

	// notifyMu は状態の書き換えとObserverへの通知を直列化する。
	notifyMu sync.Mutex

	mu          sync.Mutex
	state       State
	changed     chan struct{}
	gen         uint64
	cancelLoad  context.CancelFunc
	observers   map[uint64]Observer
	nextObs     uint64
	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStore はStoreを生成する。初期状態はPhaseBootstrapping。recorderはnilでもよい。
func NewStore(client remote.Client, v *validation.Validator, logger *slog.Logger, recorder Recorder) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		client:    client,
		validator: v,
		logger:    logger,
		recorder:  recorder,
		state:     State{Phase: PhaseBootstrapping},
		changed:   make(chan struct{}),
		observers: make(map[uint64]Observer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Snapshot は現在の状態を返す。
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe はObserverを登録し、登録解除関数を返す。
func (s *Store) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Start はセッション変化の購読を始め、既存セッションを確認する。
// セッションがあればプロフィールの読み込みを非同期に開始する。
// 確認中に別のセッション変化が届いた場合は、そちらを優先する。
func (s *Store) Start(ctx context.Context) {
	unsubscribe := s.client.OnSessionChange(s.handleSessionChange)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	session, err := s.client.GetCurrentSession(ctx)
	if err != nil {
		s.logger.Error("failed to get current session", slog.String("error", err.Error()))
		session = nil
	}

	stillBootstrapping := func(st State) bool { return st.Phase == PhaseBootstrapping }
	if session == nil {
		s.clear(stillBootstrapping)
		return
	}
	s.beginLoad(session, stillBootstrapping)
}

// Close はセッション変化の購読を解除し、実行中の読み込みを中断して終了を待つ。
func (s *Store) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.cancel()
	s.wg.Wait()
}

// WaitLoaded は状態が確定するまで待ち、確定した状態を返す。
// ctxが先に終了した場合はその時点の状態とctxのエラーを返す。
func (s *Store) WaitLoaded(ctx context.Context) (State, error) {
	for {
		s.mu.Lock()
		st, ch := s.state, s.changed
		s.mu.Unlock()

		if !st.Pending() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ch:
		}
	}
}

// SignUp はフォームを検証してからアカウントを作成し、ロール別の行を挿入する。
// 検証に失敗した場合はネットワーク呼び出しを行わない。
// ロール別の行の挿入失敗はログに記録するだけで、サインアップ自体は成功とする。
func (s *Store) SignUp(ctx context.Context, form validation.SignUpForm) (*model.Identity, error) {
	if err := s.validator.SignUp(&form); err != nil {
		return nil, err
	}

	identity, err := s.client.SignUp(ctx, form.Email, form.Password, form.Metadata())
	if err != nil {
		return nil, err
	}

	table, record := roleRecord(identity.ID, &form)
	if err := s.client.InsertRecord(ctx, table, record); err != nil {
		s.logger.Error("failed to create role profile",
			slog.String("user_id", identity.ID),
			slog.String("role", string(form.Role)),
			slog.String("error", err.Error()),
		)
		return identity, nil
	}

	// サインアップと同時にサインインした場合、挿入前に始まった読み込みを取り直す
	s.reloadFor(identity.ID)
	return identity, nil
}

// SignIn はフォームを検証してからサインインする。
// プロフィールの読み込みはセッション変化の通知を契機に行う。
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	form := validation.SignInForm{Email: email, Password: password}
	if err := s.validator.SignIn(&form); err != nil {
		return err
	}
	_, err := s.client.SignIn(ctx, form.Email, form.Password)
	return err
}

// SignOut はサインアウトする。状態の破棄はセッション変化の通知を契機に行う。
func (s *Store) SignOut(ctx context.Context) error {
	return s.client.SignOut(ctx)
}

// UpdateProfile はuser_profilesを部分更新し、成功したら保持中のプロフィールにマージする。
func (s *Store) UpdateProfile(ctx context.Context, upd model.UserProfileUpdate) error {
	identity := s.Snapshot().Identity()
	if identity == nil {
		return model.ErrNotAuthenticated
	}
	if upd.Empty() {
		return nil
	}

	if err := s.client.UpdateRecord(ctx, remote.TableUserProfiles, identity.ID, upd); err != nil {
		return err
	}

	s.update(func(st *State) bool {
		if !sameIdentity(st, identity.ID) || st.User == nil {
			return false
		}
		st.User = upd.Apply(st.User)
		return true
	})
	return nil
}

// UpdateStudentProfile はstudentsを部分更新し、成功したら保持中の生徒プロフィールにマージする。
func (s *Store) UpdateStudentProfile(ctx context.Context, upd model.StudentProfileUpdate) error {
	identity := s.Snapshot().Identity()
	if identity == nil {
		return model.ErrNotAuthenticated
	}
	if upd.Empty() {
		return nil
	}

	if err := s.client.UpdateRecord(ctx, remote.TableStudents, identity.ID, upd); err != nil {
		return err
	}

	s.update(func(st *State) bool {
		student := st.Student()
		if !sameIdentity(st, identity.ID) || student == nil {
			return false
		}
		st.Profile = upd.Apply(student)
		return true
	})
	return nil
}

// handleSessionChange はリモートからのセッション変化を状態に反映する。
func (s *Store) handleSessionChange(event model.AuthEvent, session *model.Session) {
	s.logger.Info("session changed", slog.String("event", string(event)))

	if session == nil {
		s.clear(nil)
		return
	}
	s.beginLoad(session, nil)
}

// clear はプロフィールを破棄して未認証状態にする。condがfalseを返す場合は何もしない。
func (s *Store) clear(cond func(State) bool) {
	s.update(func(st *State) bool {
		if cond != nil && !cond(*st) {
			return false
		}
		s.gen++
		if s.cancelLoad != nil {
			s.cancelLoad()
			s.cancelLoad = nil
		}
		*st = State{Phase: PhaseUnauthenticated}
		return true
	})
}

// beginLoad は認証済み（読み込み中）に遷移し、プロフィールの読み込みを開始する。
// 前回の読み込みは中断し、その結果は世代の不一致で破棄される。
func (s *Store) beginLoad(session *model.Session, cond func(State) bool) {
	var (
		gen     uint64
		loadCtx context.Context
		started bool
	)
	s.update(func(st *State) bool {
		if cond != nil && !cond(*st) {
			return false
		}
		s.gen++
		gen = s.gen
		if s.cancelLoad != nil {
			s.cancelLoad()
		}
		loadCtx, s.cancelLoad = context.WithCancel(s.ctx)

		if !sameIdentity(st, session.Identity.ID) {
			st.User = nil
		}
		// 読み込み中はロール別プロフィールを保持しない
		st.Profile = nil
		st.Phase = PhaseAuthenticated
		st.Session = session
		st.Loading = true
		started = true
		return true
	})
	if !started {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loadProfile(loadCtx, gen, session.Identity.ID)
	}()
}

// reloadFor は現在のIdentityがidの場合にプロフィールを読み込み直す。
func (s *Store) reloadFor(id string) {
	st := s.Snapshot()
	if !sameIdentity(&st, id) {
		return
	}
	s.beginLoad(st.Session, func(cur State) bool { return sameIdentity(&cur, id) })
}

// profileResult はプロフィール読み込みの結果。
// userOKがfalseの場合はuser_profilesの取得に失敗しており、保持中の値を維持する。
type profileResult struct {
	user   *model.UserProfile
	userOK bool
	role   model.RoleProfile
	roleOK bool
}

// loadProfile はuser_profilesを取得し、ロールに応じてstudentsまたはteachersを取得する。
// 結果は世代が一致する場合だけ反映する。
func (s *Store) loadProfile(ctx context.Context, gen uint64, userID string) {
	start := time.Now()
	logger := s.logger.With(slog.String("user_id", userID))
	res := s.fetchProfiles(ctx, logger, userID)

	applied := false
	s.update(func(st *State) bool {
		if s.gen != gen {
			return false
		}
		applied = true
		if res.userOK {
			st.User = res.user
		}
		st.Profile = res.role
		st.Loading = false
		return true
	})

	outcome := LoadComplete
	switch {
	case !applied:
		outcome = LoadStale
		logger.Debug("discarded stale profile load")
	case !res.userOK || !res.roleOK:
		outcome = LoadPartial
	}
	if s.recorder != nil {
		s.recorder.RecordProfileLoad(outcome, time.Since(start))
	}
}

func (s *Store) fetchProfiles(ctx context.Context, logger *slog.Logger, userID string) profileResult {
	var res profileResult

	var user model.UserProfile
	found, err := s.client.FetchRecord(ctx, remote.TableUserProfiles, userID, &user)
	if err != nil {
		logger.Error("failed to load user profile", slog.String("error", err.Error()))
		return res
	}
	res.userOK = true
	if !found {
		logger.Warn("user profile not found")
		res.roleOK = true
		return res
	}
	res.user = &user

	var (
		table remote.Table
		dest  model.RoleProfile
	)
	switch user.Role {
	case model.RoleStudent:
		table, dest = remote.TableStudents, &model.StudentProfile{}
	case model.RoleTeacher:
		table, dest = remote.TableTeachers, &model.TeacherProfile{}
	default:
		if !user.Role.Valid() {
			logger.Warn("unknown role on user profile", slog.String("role", string(user.Role)))
		}
		res.roleOK = true
		return res
	}

	found, err = s.client.FetchRecord(ctx, table, userID, dest)
	if err != nil {
		logger.Error("failed to load role profile",
			slog.String("role", string(user.Role)),
			slog.String("error", err.Error()),
		)
		return res
	}
	res.roleOK = true
	if !found {
		logger.Warn("role profile not found", slog.String("role", string(user.Role)))
		return res
	}
	res.role = dest
	return res
}

// update はfnで状態を書き換えて公開する。fnがfalseを返した場合は何もしない。
// fnはmuを保持した状態で呼ばれる。
func (s *Store) update(fn func(st *State) bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next := s.state
	if !fn(&next) {
		s.mu.Unlock()
		return
	}
	prevPhase := s.state.Phase
	s.state = next
	close(s.changed)
	s.changed = make(chan struct{})
	observers := make([]Observer, 0, len(s.observers))
	for id := uint64(0); id < s.nextObs; id++ {
		if o, ok := s.observers[id]; ok {
			observers = append(observers, o)
		}
	}
	s.mu.Unlock()

	if next.Phase != prevPhase && s.recorder != nil {
		s.recorder.RecordStateTransition(string(next.Phase))
	}
	for _, o := range observers {
		o(next)
	}
}

func sameIdentity(st *State, id string) bool {
	identity := st.Identity()
	return identity != nil && identity.ID == id
}

// roleRecord はサインアップ時に挿入するロール別の行を返す。
func roleRecord(id string, form *validation.SignUpForm) (remote.Table, any) {
	if form.Role == model.RoleTeacher {
		var subject *string
		if form.Subject != "" {
			v := form.Subject
			subject = &v
		}
		return remote.TableTeachers, model.NewTeacherRecord{
			ID:              id,
			School:          form.School,
			Subject:         subject,
			ExperienceYears: form.ExperienceYears,
		}
	}
	return remote.TableStudents, model.NewStudentRecord{
		ID:     id,
		Grade:  form.Grade,
		School: form.School,
		State:  form.State,
	}
}
