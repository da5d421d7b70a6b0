// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prismworlds/portal/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// stateContextKey はリクエストコンテキストにセッション状態を格納するためのキー。
var stateContextKey = contextKey("session_state")

// StateSource はセッション状態のスナップショットを提供するインターフェース。
// session.Storeの部分集合として定義する。
type StateSource interface {
	Snapshot() session.State
}

// NewSessionMiddleware はリクエスト開始時のセッション状態をコンテキストに注入するミドルウェアを返す。
// 同じリクエスト内のゲート判定とビュー生成は同一のスナップショットを参照する。
func NewSessionMiddleware(source StateSource) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ContextWithState(r.Context(), source.Snapshot())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StateFromContext はリクエストコンテキストからセッション状態を取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func StateFromContext(ctx context.Context) (session.State, bool) {
	st, ok := ctx.Value(stateContextKey).(session.State)
	return st, ok
}

// ContextWithState はコンテキストにセッション状態を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithState(ctx context.Context, st session.State) context.Context {
	return context.WithValue(ctx, stateContextKey, st)
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	st, ok := StateFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("session state not found in context")
	}
	identity := st.Identity()
	if identity == nil || identity.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return identity.ID, nil
}
