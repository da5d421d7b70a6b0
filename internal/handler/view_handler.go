package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prismworlds/portal/internal/middleware"
	"github.com/prismworlds/portal/internal/model"
	"github.com/prismworlds/portal/internal/route"
)

// viewResponse はビューのAPIレスポンス。
// 描画はブラウザ側で行い、ここではビュー名と表示に必要な状態を返す。
type viewResponse struct {
	View    string                `json:"view"`
	Path    string                `json:"path"`
	Params  map[string]string     `json:"params,omitempty"`
	User    *model.UserProfile    `json:"user,omitempty"`
	Student *model.StudentProfile `json:"student,omitempty"`
	Teacher *model.TeacherProfile `json:"teacher,omitempty"`
}

// ViewHandler はルート表の1行に対応するビューを返すハンドラーを生成する。
// 保護されたルートではゲートミドルウェアを通過した後に呼ばれる。
func ViewHandler(entry route.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := viewResponse{
			View: entry.View,
			Path: r.URL.Path,
		}

		if rctx := chi.RouteContext(r.Context()); rctx != nil && len(rctx.URLParams.Keys) > 0 {
			resp.Params = make(map[string]string, len(rctx.URLParams.Keys))
			for i, k := range rctx.URLParams.Keys {
				resp.Params[k] = rctx.URLParams.Values[i]
			}
		}

		if st, ok := middleware.StateFromContext(r.Context()); ok && st.Identity() != nil && !st.Pending() {
			resp.User = st.User
			resp.Student = st.Student()
			resp.Teacher = st.Teacher()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
