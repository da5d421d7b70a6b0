// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"slices"
	"time"
)

// Role はユーザーの役割を表す。表示するプロフィールとルート群を決定する。
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid は既知のロールかどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// UserProfile は user_profiles テーブルの行を表す。Identityと1対1で、IDを共有する。
type UserProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleProfile はロール別プロフィールの直和型。
// *StudentProfile と *TeacherProfile のみが実装する。
type RoleProfile interface {
	ProfileRole() Role
	roleProfile()
}

// StudentProfile は students テーブルの行を表す。
// eco_points、level、streak は学習履歴から導出され、負にならない。
type StudentProfile struct {
	ID                  string            `json:"id"`
	Grade               string            `json:"grade"`
	School              string            `json:"school"`
	State               string            `json:"state"`
	EcoPoints           int               `json:"eco_points"`
	Level               int               `json:"level"`
	Streak              int               `json:"streak"`
	CompletedLessons    []string          `json:"completed_lessons"`
	CompletedChallenges []string          `json:"completed_challenges"`
	EarnedBadges        []json.RawMessage `json:"earned_badges"`
	TotalImpactScore    float64           `json:"total_impact_score"`
	WeeklyGoal          int               `json:"weekly_goal"`
	MonthlyGoal         int               `json:"monthly_goal"`
	JoinDate            string            `json:"join_date"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// ProfileRole はRoleProfileを実装する。
func (*StudentProfile) ProfileRole() Role { return RoleStudent }
func (*StudentProfile) roleProfile()      {}

// TeacherProfile は teachers テーブルの行を表す。
type TeacherProfile struct {
	ID              string    `json:"id"`
	School          string    `json:"school"`
	Subject         *string   `json:"subject,omitempty"`
	ExperienceYears int       `json:"experience_years"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProfileRole はRoleProfileを実装する。
func (*TeacherProfile) ProfileRole() Role { return RoleTeacher }
func (*TeacherProfile) roleProfile()      {}

// UserProfileUpdate は user_profiles の部分更新。nilのフィールドは変更しない。
// roleはロール別プロフィールとの整合を崩すため更新対象に含めない。
type UserProfileUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	// AvatarURL はnullを指定するとアバターを外す。
	AvatarURL Nullable[string] `json:"avatar_url,omitzero"`
}

// Empty は更新対象のフィールドが1つもない場合にtrueを返す。
func (u UserProfileUpdate) Empty() bool {
	return u.FullName == nil && !u.AvatarURL.Set
}

// Apply はpを複製し、部分更新をマージした新しいプロフィールを返す。
func (u UserProfileUpdate) Apply(p *UserProfile) *UserProfile {
	if p == nil {
		return nil
	}
	next := *p
	if u.FullName != nil {
		next.FullName = *u.FullName
	}
	if u.AvatarURL.Set {
		next.AvatarURL = nil
		if u.AvatarURL.Value != nil {
			v := *u.AvatarURL.Value
			next.AvatarURL = &v
		}
	}
	return &next
}

// StudentProfileUpdate は students の部分更新。nilのフィールドは変更しない。
// リスト項目は空のリストを指定すると空にする。
type StudentProfileUpdate struct {
	Grade               *string            `json:"grade,omitempty"`
	School              *string            `json:"school,omitempty"`
	State               *string            `json:"state,omitempty"`
	EcoPoints           *int               `json:"eco_points,omitempty"`
	Level               *int               `json:"level,omitempty"`
	Streak              *int               `json:"streak,omitempty"`
	CompletedLessons    *[]string          `json:"completed_lessons,omitempty"`
	CompletedChallenges *[]string          `json:"completed_challenges,omitempty"`
	EarnedBadges        *[]json.RawMessage `json:"earned_badges,omitempty"`
	TotalImpactScore    *float64           `json:"total_impact_score,omitempty"`
	WeeklyGoal          *int               `json:"weekly_goal,omitempty"`
	MonthlyGoal         *int               `json:"monthly_goal,omitempty"`
}

// Empty は更新対象のフィールドが1つもない場合にtrueを返す。
func (u StudentProfileUpdate) Empty() bool {
	return u.Grade == nil && u.School == nil && u.State == nil &&
		u.EcoPoints == nil && u.Level == nil && u.Streak == nil &&
		u.CompletedLessons == nil && u.CompletedChallenges == nil && u.EarnedBadges == nil &&
		u.TotalImpactScore == nil && u.WeeklyGoal == nil && u.MonthlyGoal == nil
}

// Apply はpを複製し、部分更新をマージした新しいプロフィールを返す。
// スライスは複製するため、元のプロフィールとメモリを共有しない。
func (u StudentProfileUpdate) Apply(p *StudentProfile) *StudentProfile {
	if p == nil {
		return nil
	}
	next := *p
	next.CompletedLessons = slices.Clone(p.CompletedLessons)
	next.CompletedChallenges = slices.Clone(p.CompletedChallenges)
	next.EarnedBadges = slices.Clone(p.EarnedBadges)

	if u.Grade != nil {
		next.Grade = *u.Grade
	}
	if u.School != nil {
		next.School = *u.School
	}
	if u.State != nil {
		next.State = *u.State
	}
	if u.EcoPoints != nil {
		next.EcoPoints = *u.EcoPoints
	}
	if u.Level != nil {
		next.Level = *u.Level
	}
	if u.Streak != nil {
		next.Streak = *u.Streak
	}
	if u.CompletedLessons != nil {
		next.CompletedLessons = cloneList(*u.CompletedLessons)
	}
	if u.CompletedChallenges != nil {
		next.CompletedChallenges = cloneList(*u.CompletedChallenges)
	}
	if u.EarnedBadges != nil {
		next.EarnedBadges = cloneList(*u.EarnedBadges)
	}
	if u.TotalImpactScore != nil {
		next.TotalImpactScore = *u.TotalImpactScore
	}
	if u.WeeklyGoal != nil {
		next.WeeklyGoal = *u.WeeklyGoal
	}
	if u.MonthlyGoal != nil {
		next.MonthlyGoal = *u.MonthlyGoal
	}
	return &next
}

// cloneList はsを複製する。空のリストはnilではなく空のスライスとして保持する。
func cloneList[T any](s []T) []T {
	return append(make([]T, 0, len(s)), s...)
}

// NewStudentRecord はサインアップ時に students へ挿入する行。
// 残りの列はデータベースの既定値に任せる。
type NewStudentRecord struct {
	ID     string `json:"id"`
	Grade  string `json:"grade"`
	School string `json:"school"`
	State  string `json:"state"`
}

// NewTeacherRecord はサインアップ時に teachers へ挿入する行。
type NewTeacherRecord struct {
	ID              string  `json:"id"`
	School          string  `json:"school"`
	Subject         *string `json:"subject,omitempty"`
	ExperienceYears int     `json:"experience_years"`
}
