package httpapi

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/alfredchat/alfred/internal/app/auth"
	"github.com/alfredchat/alfred/internal/app/domain/conversation"
	"github.com/alfredchat/alfred/internal/app/domain/user"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"landing", "login", "chat", "settings", "audiochat", "admin_create_user"}

// page is the data every template receives.
type page struct {
	Title    string
	Username string
	IsAdmin  bool
	Flashes  []auth.Flash

	History          []conversation.Entry
	Profile          user.Profile
	Users            []user.User
	AllowedUsernames []string
	Audit            []AuditEntry
}

type views struct {
	pages map[string]*template.Template
	loc   *time.Location
}

func loadViews(loc *time.Location) (*views, error) {
	if loc == nil {
		loc = time.UTC
	}
	funcs := template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(loc).Format(conversation.DisplayLayout)
		},
	}

	v := &views{pages: make(map[string]*template.Template, len(pageNames)), loc: loc}
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		v.pages[name] = tmpl
	}
	return v, nil
}

// render executes into a buffer first so a template error never leaves a half-written page.
func (v *views) render(w http.ResponseWriter, status int, name string, data page) error {
	tmpl, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
