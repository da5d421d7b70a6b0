// Package gate は保護されたビューへのアクセス可否を判定する。
package gate

import (
	"github.com/prismworlds/portal/internal/model"
	"github.com/prismworlds/portal/internal/session"
)

// Kind は判定結果の種別。
type Kind string

const (
	Allow    Kind = "allow"
	Redirect Kind = "redirect"
	Pending  Kind = "pending"
)

// Redirect先の理由
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonWrongRole       = "wrong_role"
)

// Decision はアクセス判定の結果。
// KindがRedirectの場合だけTargetとReasonが設定される。
type Decision struct {
	Kind   Kind   `json:"decision"`
	Target string `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Decide はセッション状態と要求ロールからアクセス可否を判定する。
// requiredが空の場合はロールを問わず認証済みであればよい。
//
//   - 起動中またはプロフィール読み込み中: Pending
//   - Identityまたはユーザープロフィールがない: 既定ルートへRedirect
//   - ロール不一致: 既定ルートへRedirect
//   - それ以外: Allow
func Decide(st session.State, required model.Role) Decision {
	if st.Pending() {
		return Decision{Kind: Pending}
	}
	if st.Identity() == nil || st.User == nil {
		return Decision{Kind: Redirect, Target: DefaultRoute(st), Reason: ReasonUnauthenticated}
	}
	if required != "" && st.User.Role != required {
		return Decision{Kind: Redirect, Target: DefaultRoute(st), Reason: ReasonWrongRole}
	}
	return Decision{Kind: Allow}
}

// DefaultRoute はロールごとの着地先を返す。
// 生徒は /dashboard、教師は /teacher、それ以外（未認証・管理者・プロフィールなし）は / 。
func DefaultRoute(st session.State) string {
	if st.User == nil || st.Identity() == nil {
		return "/"
	}
	switch st.User.Role {
	case model.RoleStudent:
		return "/dashboard"
	case model.RoleTeacher:
		return "/teacher"
	default:
		return "/"
	}
}
