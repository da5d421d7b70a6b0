// Package validation はサインアップ・サインインフォームのローカル検証を行う。
// 検証はネットワーク呼び出しの前に行い、最初の1件だけを表示用メッセージとして返す。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/prismworlds/portal/internal/model"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// SignUpForm はサインアップフォームの入力。
// Gradeは生徒のみ、SubjectとExperienceYearsは教師のみ使用する。
type SignUpForm struct {
	FullName        string     `json:"full_name" validate:"required"`
	Email           string     `json:"email" validate:"required,email"`
	Password        string     `json:"password" validate:"required,min=6"`
	ConfirmPassword string     `json:"confirm_password" validate:"required,eqfield=Password"`
	Role            model.Role `json:"role" validate:"required,oneof=student teacher"`
	School          string     `json:"school" validate:"required"`
	State           string     `json:"state" validate:"required"`
	Grade           string     `json:"grade" validate:"required_if=Role student"`
	Subject         string     `json:"subject"`
	ExperienceYears int        `json:"experience_years" validate:"min=0,max=50"`
}

// Metadata はアカウント作成時にユーザーメタデータとして保存する値を返す。
func (f *SignUpForm) Metadata() map[string]any {
	return map[string]any{
		"full_name": f.FullName,
		"role":      string(f.Role),
	}
}

// SignInForm はサインインフォームの入力。
type SignInForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// tagPriority は複数の違反があるときに報告する順序。
// 必須項目の欠落が最優先で、次にパスワードの不一致、長さ、学年の順。
var tagPriority = map[string]int{
	"required":    0,
	"email":       1,
	"eqfield":     2,
	"min":         3,
	"max":         3,
	"required_if": 4,
	"oneof":       5,
}

// messages はフィールドとタグごとの表示用メッセージ。
var messages = map[string]map[string]string{
	"full_name":        {"required": "Please enter your full name"},
	"email":            {"required": "Please enter your email", "email": "Please enter a valid email address"},
	"password":         {"required": "Please enter your password", "min": "Password must be at least 6 characters"},
	"confirm_password": {"required": "Please confirm your password", "eqfield": "Passwords do not match"},
	"role":             {"required": "Please choose student or teacher", "oneof": "Please choose student or teacher"},
	"school":           {"required": "Please enter your school name"},
	"state":            {"required": "Please select your state"},
	"grade":            {"required_if": "Please select your grade"},
	"experience_years": {"min": "Experience must be between 0 and 50 years", "max": "Experience must be between 0 and 50 years"},
}

// Validator はフォーム検証を行う。
type Validator struct {
	validate *validator.Validate
}

// New はValidatorを生成する。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// SignUp はサインアップフォームの前後の空白を取り除いてから検証する。
// パスワードは入力どおりに扱う。違反があれば *model.ValidationError を返す。
func (v *Validator) SignUp(form *SignUpForm) error {
	form.FullName = strings.TrimSpace(form.FullName)
	form.Email = strings.TrimSpace(form.Email)
	form.School = strings.TrimSpace(form.School)
	form.State = strings.TrimSpace(form.State)
	form.Grade = strings.TrimSpace(form.Grade)
	form.Subject = strings.TrimSpace(form.Subject)
	form.Role = model.Role(strings.TrimSpace(string(form.Role)))
	return v.check(form)
}

// SignIn はサインインフォームを検証する。
func (v *Validator) SignIn(form *SignInForm) error {
	form.Email = strings.TrimSpace(form.Email)
	return v.check(form)
}

func (v *Validator) check(form any) error {
	err := v.validate.Struct(form)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate form: %w", err)
	}
	return firstViolation(fieldErrs)
}

// firstViolation は優先度が最も高い違反をValidationErrorに変換する。
// 同じ優先度ではフォーム上の順序に従う。
func firstViolation(fieldErrs validator.ValidationErrors) *model.ValidationError {
	best := fieldErrs[0]
	bestRank := rank(best.Tag())
	for _, fe := range fieldErrs[1:] {
		if r := rank(fe.Tag()); r < bestRank {
			best, bestRank = fe, r
		}
	}

	msg, ok := messages[best.Field()][best.Tag()]
	if !ok {
		msg = fmt.Sprintf("Please check the %s field", strings.ReplaceAll(best.Field(), "_", " "))
	}
	return &model.ValidationError{Field: best.Field(), Message: msg}
}

func rank(tag string) int {
	if r, ok := tagPriority[tag]; ok {
		return r
	}
	return len(tagPriority)
}
