// Package route はURLパスとビュー、アクセス要件の対応表を定義する。
package route

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prismworlds/portal/internal/model"
)

// Entry はルート表の1行。
// Protectedがfalseのルートはゲートを通さずに表示する。
type Entry struct {
	Path      string
	View      string
	Protected bool
	Role      model.Role
}

// ビュー名
const (
	ViewLanding      = "landing"
	ViewDemo         = "demo"
	ViewContact      = "contact"
	ViewDashboard    = "dashboard"
	ViewLessons      = "lessons"
	ViewLesson       = "lesson"
	ViewChallenges   = "challenges"
	ViewLeaderboards = "leaderboards"
	ViewBadges       = "badges"
	ViewShop         = "shop"
	ViewAnalytics    = "analytics"
	ViewProfile      = "profile"
	ViewProfileEdit  = "profile_edit"
	ViewTeacher      = "teacher_dashboard"
)

var table = []Entry{
	{Path: "/", View: ViewLanding},
	{Path: "/demo", View: ViewDemo},
	{Path: "/contact", View: ViewContact},

	{Path: "/dashboard", View: ViewDashboard, Protected: true, Role: model.RoleStudent},
	{Path: "/lessons", View: ViewLessons, Protected: true, Role: model.RoleStudent},
	{Path: "/lessons/{id}", View: ViewLesson, Protected: true, Role: model.RoleStudent},
	{Path: "/challenges", View: ViewChallenges, Protected: true, Role: model.RoleStudent},
	{Path: "/leaderboards", View: ViewLeaderboards, Protected: true, Role: model.RoleStudent},
	{Path: "/badges", View: ViewBadges, Protected: true, Role: model.RoleStudent},
	{Path: "/shop", View: ViewShop, Protected: true, Role: model.RoleStudent},
	{Path: "/analytics", View: ViewAnalytics, Protected: true, Role: model.RoleStudent},
	{Path: "/profile", View: ViewProfile, Protected: true, Role: model.RoleStudent},
	{Path: "/profile/edit", View: ViewProfileEdit, Protected: true, Role: model.RoleStudent},

	{Path: "/teacher", View: ViewTeacher, Protected: true, Role: model.RoleTeacher},
}

// Table はルート表のコピーを返す。
func Table() []Entry {
	out := make([]Entry, len(table))
	copy(out, table)
	return out
}

// matcher はルート表をchiのルーティング木に載せたもの。
// パターンからEntryを引き戻すために使う。
var matcher = newMatcher()

type routeMatcher struct {
	mux     *chi.Mux
	entries map[string]Entry
}

func newMatcher() *routeMatcher {
	m := &routeMatcher{
		mux:     chi.NewRouter(),
		entries: make(map[string]Entry, len(table)),
	}
	noop := func(http.ResponseWriter, *http.Request) {}
	for _, e := range table {
		m.mux.Get(e.Path, noop)
		m.entries[e.Path] = e
	}
	return m
}

// Match は具体的なパスに対応するEntryとパスパラメータを返す。
// 末尾のスラッシュは無視する。該当するルートがない場合はfalseを返す。
func Match(path string) (Entry, map[string]string, bool) {
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}

	rctx := chi.NewRouteContext()
	if !matcher.mux.Match(rctx, http.MethodGet, path) {
		return Entry{}, nil, false
	}
	entry, ok := matcher.entries[rctx.RoutePattern()]
	if !ok {
		return Entry{}, nil, false
	}

	var params map[string]string
	if n := len(rctx.URLParams.Keys); n > 0 {
		params = make(map[string]string, n)
		for i, k := range rctx.URLParams.Keys {
			params[k] = rctx.URLParams.Values[i]
		}
	}
	return entry, params, true
}
