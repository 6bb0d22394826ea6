package server

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"kitabghar/pkg/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageData is passed to every template: the layout reads the common fields,
// the page block reads Data.
type pageData struct {
	Title       string
	CurrentUser *domain.User
	Flash       *Flash
	Data        any
}

// IsAuthor reports whether the current user can upload.
func (d pageData) IsAuthor() bool {
	return d.CurrentUser != nil && d.CurrentUser.Role.AtLeast(domain.RoleAuthor)
}

// IsAdmin reports whether the current user can manage users and books.
func (d pageData) IsAdmin() bool {
	return d.CurrentUser != nil && d.CurrentUser.Role.AtLeast(domain.RoleAdmin)
}

var templateFuncs = template.FuncMap{
	"roleLabel": func(r domain.Role) string { return r.Label() },
}

// parseTemplates builds one template set per page, each paired with the
// shared layout.
func parseTemplates() (map[string]*template.Template, error) {
	pages := []string{"index", "login", "register", "browse", "upload", "admin", "profile"}
	out := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(
			templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		out[page] = t
	}
	return out, nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, page string, data pageData) {
	t, ok := s.templates[page]
	if !ok {
		slog.Error("unknown template", "page", page)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if data.Flash == nil {
		data.Flash = popFlash(w, r)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "layout.html", data); err != nil {
		slog.Error("template render failed", "page", page, "err", err)
	}
}
