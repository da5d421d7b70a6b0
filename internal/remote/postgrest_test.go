package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prismworlds/portal/internal/model"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

func newTestRecords(t *testing.T, server *httptest.Server, tokens TokenSource) *PostgRESTRecords {
	t.Helper()
	var buf bytes.Buffer
	return NewPostgRESTRecords(server.Client(), newTestLogger(&buf), server.URL, "anon-key", tokens)
}

func TestPostgRESTRecords_FetchRecord_DecodesFirstRow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/rest/v1/user_profiles" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "eq."+testUserID {
			t.Errorf("id filter = %q, want %q", got, "eq."+testUserID)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer user-token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"` + testUserID + `","email":"a@example.com","full_name":"Ana","role":"student"}]`))
	}))
	defer server.Close()

	records := newTestRecords(t, server, staticToken("user-token"))

	var profile model.UserProfile
	found, err := records.FetchRecord(context.Background(), TableUserProfiles, testUserID, &profile)
	if err != nil {
		t.Fatalf("FetchRecord() error = %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if profile.Role != model.RoleStudent || profile.FullName != "Ana" {
		t.Errorf("profile = %+v", profile)
	}
}

func TestPostgRESTRecords_FetchRecord_EmptyResultIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	records := newTestRecords(t, server, nil)

	var teacher model.TeacherProfile
	found, err := records.FetchRecord(context.Background(), TableTeachers, testUserID, &teacher)
	if err != nil {
		t.Fatalf("FetchRecord() error = %v", err)
	}
	if found {
		t.Error("expected found=false for empty result")
	}
}

func TestPostgRESTRecords_FetchRecord_WithoutSessionUsesAnonKey(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	records := newTestRecords(t, server, staticToken(""))
	var profile model.UserProfile
	records.FetchRecord(context.Background(), TableUserProfiles, testUserID, &profile)

	if gotAuth != "Bearer anon-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer anon-key")
	}
}

func TestPostgRESTRecords_FetchRecord_ErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"PGRST301","message":"JWT expired","details":null,"hint":null}`))
	}))
	defer server.Close()

	records := newTestRecords(t, server, staticToken("user-token"))
	var profile model.UserProfile
	_, err := records.FetchRecord(context.Background(), TableUserProfiles, testUserID, &profile)

	var svcErr *model.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svcErr.Code != "PGRST301" || svcErr.Message != "JWT expired" || svcErr.Status != http.StatusUnauthorized {
		t.Errorf("svcErr = %+v", svcErr)
	}
}

func TestPostgRESTRecords_InsertRecord_PostsBody(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotPrefer string
		gotBody   map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotPrefer = r.Header.Get("Prefer")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	records := newTestRecords(t, server, staticToken("user-token"))
	err := records.InsertRecord(context.Background(), TableStudents, model.NewStudentRecord{
		ID:     testUserID,
		Grade:  "7",
		School: "Green Valley",
		State:  "Kerala",
	})
	if err != nil {
		t.Fatalf("InsertRecord() error = %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/rest/v1/students" {
		t.Errorf("request = %s %s, want POST /rest/v1/students", gotMethod, gotPath)
	}
	if gotPrefer != "return=minimal" {
		t.Errorf("Prefer = %q, want %q", gotPrefer, "return=minimal")
	}
	if gotBody["grade"] != "7" || gotBody["id"] != testUserID {
		t.Errorf("body = %v", gotBody)
	}
}

func TestPostgRESTRecords_UpdateRecord_PatchesByID(t *testing.T) {
	var (
		gotMethod string
		gotFilter string
		gotBody   map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotFilter = r.URL.Query().Get("id")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	records := newTestRecords(t, server, staticToken("user-token"))
	ecoPoints := 150
	err := records.UpdateRecord(context.Background(), TableStudents, testUserID, model.StudentProfileUpdate{EcoPoints: &ecoPoints})
	if err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}

	if gotMethod != http.MethodPatch {
		t.Errorf("method = %q, want PATCH", gotMethod)
	}
	if gotFilter != "eq."+testUserID {
		t.Errorf("id filter = %q, want %q", gotFilter, "eq."+testUserID)
	}
	if len(gotBody) != 1 || gotBody["eco_points"] != float64(150) {
		t.Errorf("body = %v, want only eco_points", gotBody)
	}
}
