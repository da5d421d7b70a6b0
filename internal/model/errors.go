package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, remote, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotAuthenticated = "NOT_AUTHENTICATED"
	ErrCodeRemoteService    = "REMOTE_SERVICE_ERROR"
	ErrCodeInvalidBody      = "INVALID_BODY"
	ErrCodeRouteNotFound    = "ROUTE_NOT_FOUND"
)

// ErrNotAuthenticated は認証済みIdentityがない状態で更新操作を行った場合のエラー。
// その呼び出しだけが失敗し、セッション状態は変化しない。
var ErrNotAuthenticated = errors.New("no user logged in")

// ServiceError はリモートサービスの失敗（ネットワーク障害やAPIエラー）を表す。
// Messageは呼び出し元でそのまま表示できる文言とする。
type ServiceError struct {
	Code    string // リモートが返したエラーコード（例: invalid_grant, PGRST116）
	Message string
	Status  int   // HTTPステータス。ネットワーク障害の場合は0
	Err     error // 下位のエラー（ネットワーク障害など）
}

// Error はerrorインターフェースを実装する。
func (e *ServiceError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap は下位のエラーを返す。
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// ValidationError はネットワーク呼び出し前のフォーム検証エラー。
type ValidationError struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationAPIError はValidationErrorを表示用のAPIErrorに変換する。
func NewValidationAPIError(err *ValidationError) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  err.Message,
		Category: "validation",
		Action:   "Please correct the highlighted field and submit again.",
	}
}

// NewNotAuthenticatedAPIError は未ログインエラーを生成する。
func NewNotAuthenticatedAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "No user logged in.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewRemoteServiceAPIError はリモートサービスのエラーを表示用のAPIErrorに変換する。
func NewRemoteServiceAPIError(err *ServiceError) *APIError {
	return &APIError{
		Code:     ErrCodeRemoteService,
		Message:  err.Message,
		Category: "remote",
		Action:   "Check your input and try again.",
	}
}

// NewInvalidBodyAPIError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidBodyAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBody,
		Message:  "Request body is not valid JSON.",
		Category: "validation",
		Action:   "Send a JSON object with the documented fields.",
	}
}

// NewRouteNotFoundAPIError はルート表に存在しないパスのエラーを生成する。
func NewRouteNotFoundAPIError(path string) *APIError {
	return &APIError{
		Code:     ErrCodeRouteNotFound,
		Message:  fmt.Sprintf("No route for path: %s", path),
		Category: "validation",
		Action:   "Use one of the application paths.",
	}
}
