package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"sticker-studio-server/modules/common/model"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Page - 모든 페이지 공통 데이터
type Page struct {
	Title string
	User  *model.User
	Error string
	Data  any
}

// Renderer holds one parsed template set per page, each wrapped in the layout.
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"since": func(t time.Time) string {
		return time.Since(t).Round(time.Second).String()
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

// NewRenderer - 임베드된 템플릿 파싱
func NewRenderer() (*Renderer, error) {
	names, err := fs.Glob(templateFiles, "templates/*.html")
	if err != nil {
		return nil, err
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, file := range names {
		name := strings.TrimSuffix(path.Base(file), ".html")
		if name == "layout" {
			continue
		}
		tmpl, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFiles, "templates/layout.html", file)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = tmpl
	}

	log.Debug().Int("pages", len(r.pages)).Msg("📄 Templates loaded")
	return r, nil
}

// Render - 페이지를 버퍼에 렌더링한 뒤 status와 함께 전송
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) {
	tmpl, ok := r.pages[name]
	if !ok {
		log.Error().Str("page", name).Msg("❌ Unknown page template")
		http.Error(w, "page not found", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", page); err != nil {
		log.Error().Err(err).Str("page", name).Msg("❌ Template execution failed")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
