package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleStudent, RoleTeacher, RoleAdmin} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("parent").Valid() {
		t.Error("parent should not be valid")
	}
}

func TestRoleProfile_Roles(t *testing.T) {
	var p RoleProfile = &StudentProfile{}
	if p.ProfileRole() != RoleStudent {
		t.Errorf("StudentProfile role = %q", p.ProfileRole())
	}
	p = &TeacherProfile{}
	if p.ProfileRole() != RoleTeacher {
		t.Errorf("TeacherProfile role = %q", p.ProfileRole())
	}
}

func TestUserProfileUpdate_Apply_DoesNotMutateOriginal(t *testing.T) {
	original := &UserProfile{ID: "u-1", FullName: "Ana", Role: RoleStudent}
	name := "Ana Maria"
	avatar := "https://cdn.example.com/a.png"

	next := UserProfileUpdate{FullName: &name, AvatarURL: NullableValue(avatar)}.Apply(original)

	if next.FullName != "Ana Maria" || next.AvatarURL == nil || *next.AvatarURL != avatar {
		t.Errorf("next = %+v", next)
	}
	if original.FullName != "Ana" || original.AvatarURL != nil {
		t.Errorf("original was mutated: %+v", original)
	}
	if next.Role != RoleStudent {
		t.Errorf("Role = %q, want unchanged", next.Role)
	}
}

func TestUserProfileUpdate_Apply_Nil(t *testing.T) {
	name := "x"
	if got := (UserProfileUpdate{FullName: &name}).Apply(nil); got != nil {
		t.Errorf("Apply(nil) = %+v, want nil", got)
	}
}

func TestUserProfileUpdate_Empty(t *testing.T) {
	if !(UserProfileUpdate{}).Empty() {
		t.Error("zero update should be empty")
	}
	name := "x"
	if (UserProfileUpdate{FullName: &name}).Empty() {
		t.Error("update with full_name should not be empty")
	}
}

func TestStudentProfileUpdate_Apply_MergesOnlySetFields(t *testing.T) {
	original := &StudentProfile{
		ID:               "u-1",
		Grade:            "7",
		EcoPoints:        20,
		Level:            2,
		CompletedLessons: []string{"water-cycle"},
	}
	eco := 150

	next := StudentProfileUpdate{EcoPoints: &eco}.Apply(original)

	if next.EcoPoints != 150 {
		t.Errorf("EcoPoints = %d, want 150", next.EcoPoints)
	}
	if next.Level != 2 || next.Grade != "7" {
		t.Errorf("unrelated fields changed: %+v", next)
	}
	if original.EcoPoints != 20 {
		t.Error("original was mutated")
	}
}

func TestStudentProfileUpdate_Apply_ClonesSlices(t *testing.T) {
	lessons := []string{"a", "b"}
	next := StudentProfileUpdate{CompletedLessons: &lessons}.Apply(&StudentProfile{})

	lessons[0] = "mutated"
	if next.CompletedLessons[0] != "a" {
		t.Error("Apply should copy slices")
	}
}

func TestStudentProfileUpdate_MarshalOmitsUnsetFields(t *testing.T) {
	eco := 150
	data, err := json.Marshal(StudentProfileUpdate{EcoPoints: &eco})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"eco_points":150}` {
		t.Errorf("json = %s, want only eco_points", data)
	}
}

func TestStudentProfileUpdate_EmptyListClearsAndIsSent(t *testing.T) {
	original := &StudentProfile{CompletedLessons: []string{"l1", "l2"}}
	cleared := []string{}
	upd := StudentProfileUpdate{CompletedLessons: &cleared}

	if upd.Empty() {
		t.Fatal("update with an empty list should not be empty")
	}
	next := upd.Apply(original)
	if next.CompletedLessons == nil || len(next.CompletedLessons) != 0 {
		t.Errorf("CompletedLessons = %#v, want empty list", next.CompletedLessons)
	}

	data, err := json.Marshal(upd)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"completed_lessons":[]}` {
		t.Errorf("json = %s, want the empty list to be sent", data)
	}
}

func TestStudentProfileUpdate_DecodeDistinguishesEmptyListFromMissing(t *testing.T) {
	var upd StudentProfileUpdate
	if err := json.Unmarshal([]byte(`{"completed_challenges":[]}`), &upd); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if upd.CompletedChallenges == nil || len(*upd.CompletedChallenges) != 0 {
		t.Errorf("CompletedChallenges = %v, want pointer to empty list", upd.CompletedChallenges)
	}
	if upd.CompletedLessons != nil || upd.EarnedBadges != nil {
		t.Error("missing lists should stay nil")
	}
}

func TestUserProfileUpdate_NullAvatarClears(t *testing.T) {
	avatar := "https://cdn.example.com/a.png"
	original := &UserProfile{ID: "u-1", AvatarURL: &avatar}

	var upd UserProfileUpdate
	if err := json.Unmarshal([]byte(`{"avatar_url":null}`), &upd); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if upd.Empty() {
		t.Fatal("explicit null should not be an empty update")
	}
	if next := upd.Apply(original); next.AvatarURL != nil {
		t.Errorf("AvatarURL = %v, want nil", *next.AvatarURL)
	}
	if original.AvatarURL == nil {
		t.Error("original was mutated")
	}

	data, err := json.Marshal(upd)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"avatar_url":null}` {
		t.Errorf("json = %s, want avatar_url null", data)
	}
}

func TestUserProfileUpdate_MarshalOmitsUnsetAvatar(t *testing.T) {
	name := "Ana"
	data, err := json.Marshal(UserProfileUpdate{FullName: &name})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"full_name":"Ana"}` {
		t.Errorf("json = %s, want only full_name", data)
	}

	var upd UserProfileUpdate
	if err := json.Unmarshal([]byte(`{"full_name":"Ana"}`), &upd); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if upd.AvatarURL.Set {
		t.Error("missing avatar_url should not be set")
	}
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		session *Session
		margin  time.Duration
		want    bool
	}{
		{"nil session", nil, 0, false},
		{"no expiry", &Session{}, time.Minute, false},
		{"valid", &Session{ExpiresAt: now.Add(time.Hour)}, time.Minute, false},
		{"within margin", &Session{ExpiresAt: now.Add(30 * time.Second)}, time.Minute, true},
		{"expired", &Session{ExpiresAt: now.Add(-time.Second)}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.Expired(now, tt.margin); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
