package remote

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims はアクセストークンのクレーム。
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenParser はアクセストークンからIdentityのメタデータを読み取る。
// secretが設定されている場合は署名と有効期限も検証する。
// 未設定の場合、検証は発行元のサービスに任せてクレームだけを読む。
type TokenParser struct {
	secret []byte
}

// NewTokenParser はTokenParserを生成する。
func NewTokenParser(secret string) *TokenParser {
	return &TokenParser{secret: []byte(secret)}
}

// Parse はトークン文字列をAccessClaimsに変換する。
func (p *TokenParser) Parse(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	if len(p.secret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("failed to parse access token: %w", err)
		}
		return claims, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to verify access token: %w", err)
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Verifies は署名検証用のsecretが設定されているかどうかを返す。
func (p *TokenParser) Verifies() bool {
	return len(p.secret) > 0
}

// VerifySignature はトークンの署名だけを検証する。有効期限は確認しない。
// 保存済みのセッションは期限切れでもリフレッシュに使えるため、読み込み時はこちらを使う。
// secretが未設定の場合は常にnilを返す。
func (p *TokenParser) VerifySignature(tokenString string) error {
	if !p.Verifies() {
		return nil
	}
	_, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return fmt.Errorf("failed to verify access token: %w", err)
	}
	return nil
}
