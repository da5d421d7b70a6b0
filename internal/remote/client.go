// Package remote はホスト型の認証・データサービスへのクライアントを提供する。
// 認証操作（サインアップ、サインイン、サインアウト、セッション取得、セッション変化の購読）と
// user_profiles、students、teachers の3テーブルに対する汎用レコード操作を公開する。
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prismworlds/portal/internal/model"
)

// Table は論理テーブル名。主キーはIdentityのIDと同じ値を持つ。
type Table string

const (
	TableUserProfiles Table = "user_profiles"
	TableStudents     Table = "students"
	TableTeachers     Table = "teachers"
)

// Valid は既知のテーブルかどうかを返す。
func (t Table) Valid() bool {
	switch t {
	case TableUserProfiles, TableStudents, TableTeachers:
		return true
	}
	return false
}

// SessionChangeHandler はセッション変化の通知を受け取る。
// sessionがnilの場合はサインアウト状態を表す。
// 通知はリモート側で発生した順に、1件ずつ配信される。
type SessionChangeHandler func(event model.AuthEvent, session *model.Session)

// Client はリモートデータサービスの操作セット。
// 失敗はすべて *model.ServiceError として返す。
type Client interface {
	// GetCurrentSession は有効なセッションを返す。存在しない場合はnilを返す。
	GetCurrentSession(ctx context.Context) (*model.Session, error)
	// OnSessionChange はセッション変化のハンドラを登録し、登録解除関数を返す。
	// 登録解除関数は後始末の際に必ず呼び出すこと。
	OnSessionChange(handler SessionChangeHandler) (unsubscribe func())
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.Identity, error)
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context) error
	// FetchRecord は主キーidの行をdestにデコードする。
	// 行が存在しない場合はエラーではなく found=false を返す。
	FetchRecord(ctx context.Context, table Table, id string, dest any) (found bool, err error)
	InsertRecord(ctx context.Context, table Table, record any) error
	UpdateRecord(ctx context.Context, table Table, id string, partial any) error
}

// Authenticator は認証境界の操作。
type Authenticator interface {
	GetCurrentSession(ctx context.Context) (*model.Session, error)
	OnSessionChange(handler SessionChangeHandler) (unsubscribe func())
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.Identity, error)
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context) error
}

// RecordStore はテーブル行の永続化操作。
type RecordStore interface {
	FetchRecord(ctx context.Context, table Table, id string, dest any) (bool, error)
	InsertRecord(ctx context.Context, table Table, record any) error
	UpdateRecord(ctx context.Context, table Table, id string, partial any) error
}

// CallRecorder はリモート呼び出しの計測インターフェース。
type CallRecorder interface {
	RecordRemoteCall(operation, outcome string, duration time.Duration)
}

// 計測時の呼び出し結果ラベル
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Service はAuthenticatorとRecordStoreを合成したClient実装。
// 呼び出しごとの所要時間と結果を記録する。
type Service struct {
	auth     Authenticator
	records  RecordStore
	recorder CallRecorder
	now      func() time.Time
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(auth Authenticator, records RecordStore, recorder CallRecorder) *Service {
	return &Service{
		auth:     auth,
		records:  records,
		recorder: recorder,
		now:      time.Now,
	}
}

// GetCurrentSession は有効なセッションを返す。
func (s *Service) GetCurrentSession(ctx context.Context) (*model.Session, error) {
	start := s.now()
	session, err := s.auth.GetCurrentSession(ctx)
	s.observe("get_session", start, err, true)
	return session, err
}

// OnSessionChange はセッション変化のハンドラを登録する。
func (s *Service) OnSessionChange(handler SessionChangeHandler) func() {
	return s.auth.OnSessionChange(handler)
}

// SignUp はアカウントを作成する。
func (s *Service) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.Identity, error) {
	start := s.now()
	identity, err := s.auth.SignUp(ctx, email, password, metadata)
	s.observe("sign_up", start, err, true)
	return identity, err
}

// SignIn はメールアドレスとパスワードでサインインする。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	start := s.now()
	session, err := s.auth.SignIn(ctx, email, password)
	s.observe("sign_in", start, err, true)
	return session, err
}

// SignOut は現在のセッションを破棄する。
func (s *Service) SignOut(ctx context.Context) error {
	start := s.now()
	err := s.auth.SignOut(ctx)
	s.observe("sign_out", start, err, true)
	return err
}

// FetchRecord は主キーidの行を取得する。
func (s *Service) FetchRecord(ctx context.Context, table Table, id string, dest any) (bool, error) {
	if err := checkKey(table, id); err != nil {
		return false, err
	}
	start := s.now()
	found, err := s.records.FetchRecord(ctx, table, id, dest)
	s.observe("fetch_"+string(table), start, err, found)
	return found, err
}

// InsertRecord は行を挿入する。
func (s *Service) InsertRecord(ctx context.Context, table Table, record any) error {
	if !table.Valid() {
		return invalidTableError(table)
	}
	start := s.now()
	err := s.records.InsertRecord(ctx, table, record)
	s.observe("insert_"+string(table), start, err, true)
	return err
}

// UpdateRecord は主キーidの行を部分更新する。
func (s *Service) UpdateRecord(ctx context.Context, table Table, id string, partial any) error {
	if err := checkKey(table, id); err != nil {
		return err
	}
	start := s.now()
	err := s.records.UpdateRecord(ctx, table, id, partial)
	s.observe("update_"+string(table), start, err, true)
	return err
}

func (s *Service) observe(operation string, start time.Time, err error, found bool) {
	if s.recorder == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeError
	case !found:
		outcome = OutcomeNotFound
	}
	s.recorder.RecordRemoteCall(operation, outcome, s.now().Sub(start))
}

// checkKey はテーブル名と主キーの形式を検証する。
// 主キーは認証サービスが発行するUUIDである。
func checkKey(table Table, id string) error {
	if !table.Valid() {
		return invalidTableError(table)
	}
	if _, err := uuid.Parse(id); err != nil {
		return &model.ServiceError{
			Code:    "invalid_id",
			Message: "Record id must be a UUID.",
			Err:     err,
		}
	}
	return nil
}

func invalidTableError(table Table) error {
	return &model.ServiceError{
		Code:    "invalid_table",
		Message: "Unknown table: " + string(table),
	}
}

// IsStatus はerrが指定HTTPステータスのServiceErrorかどうかを返す。
func IsStatus(err error, statuses ...int) bool {
	var svcErr *model.ServiceError
	if !errors.As(err, &svcErr) {
		return false
	}
	for _, st := range statuses {
		if svcErr.Status == st {
			return true
		}
	}
	return false
}

// compile-time interface check
var _ Client = (*Service)(nil)
