// Package session はプロセス全体で共有するセッション・プロフィール状態を管理する。
// Storeが唯一の書き込み手であり、読み手は不変のスナップショットを受け取る。
package session

import "github.com/prismworlds/portal/internal/model"

// Phase はセッションのライフサイクル段階。
type Phase string

const (
	// PhaseBootstrapping は起動直後、既存セッションの確認が終わるまでの段階。
	PhaseBootstrapping Phase = "bootstrapping"
	// PhaseAuthenticated はIdentityがある段階。プロフィール読み込み中の場合もある。
	PhaseAuthenticated Phase = "authenticated"
	// PhaseUnauthenticated はIdentityがない段階。
	PhaseUnauthenticated Phase = "unauthenticated"
)

// State はある時点のセッション状態。
// ポインタが指す値は書き換えないため、スナップショットとしてそのまま共有できる。
type State struct {
	Phase   Phase
	Session *model.Session
	User    *model.UserProfile
	// Profile はロール別プロフィール。最大1つだけ保持する。
	Profile model.RoleProfile
	// Loading はプロフィール読み込み中かどうか。PhaseAuthenticatedでのみtrueになる。
	Loading bool
}

// Identity は現在の認証主体を返す。未認証の場合はnilを返す。
func (s State) Identity() *model.Identity {
	if s.Phase != PhaseAuthenticated || s.Session == nil {
		return nil
	}
	return &s.Session.Identity
}

// Pending は起動中またはプロフィール読み込み中で、状態が確定していない場合にtrueを返す。
func (s State) Pending() bool {
	return s.Phase == PhaseBootstrapping || s.Loading
}

// Student は生徒プロフィールを返す。生徒でない場合や未取得の場合はnilを返す。
func (s State) Student() *model.StudentProfile {
	p, _ := s.Profile.(*model.StudentProfile)
	return p
}

// Teacher は教師プロフィールを返す。
func (s State) Teacher() *model.TeacherProfile {
	p, _ := s.Profile.(*model.TeacherProfile)
	return p
}
