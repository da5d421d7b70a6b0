package model

import "time"

// Identity はリモート認証サービスが発行した認証主体を表す。
// アプリケーションはセッションの間だけ参照を保持する。
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session はIdentityを参照する期限付きの認証情報。
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"user"`
}

// Expired はnowの時点でアクセストークンが期限切れかどうかを返す。
// marginだけ早めに期限切れとみなす。
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}

// AuthEvent はセッション変化の種別。
type AuthEvent string

const (
	AuthEventSignedIn       AuthEvent = "SIGNED_IN"
	AuthEventSignedOut      AuthEvent = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)
