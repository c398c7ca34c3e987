package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"expensedash/internal/core"
	applog "expensedash/internal/log"
)

// pageData is handed to the layout. View carries the page's own model and is
// what its partials receive.
type pageData struct {
	Title  string
	Active string
	User   *core.User
	Flash  string
	View   any
}

var templateFuncs = template.FuncMap{
	"euros":          core.FormatEuros,
	"date":           core.DisplayDate,
	"datetime":       core.DisplayDateTime,
	"severity":       core.NormalizeSeverity,
	"thresholdField": core.ThresholdField,
	"pathEscape":     url.PathEscape,
	"pct": func(f float64) string {
		return fmt.Sprintf("%.1f%%", f)
	},
	"utc": func(t time.Time) string {
		return t.UTC().Format("Mon, Jan 02 2006 15:04 UTC")
	},
	"positive": func(d decimal.Decimal) bool { return d.IsPositive() },
	"initial":  initial,
	"dict": func(kv ...any) (map[string]any, error) {
		if len(kv)%2 != 0 {
			return nil, fmt.Errorf("dict: odd number of arguments")
		}
		m := make(map[string]any, len(kv)/2)
		for i := 0; i < len(kv); i += 2 {
			k, ok := kv[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
			}
			m[k] = kv[i+1]
		}
		return m, nil
	},
}

// initial is the avatar letter for email.
func initial(email string) string {
	r, _ := utf8.DecodeRuneInString(email)
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}

// parseTemplates loads the shared layout and partials, then clones them once
// per page so every page can define its own "content".
func parseTemplates(fsys fs.FS) (*template.Template, map[string]*template.Template, error) {
	base, err := template.New("").Funcs(templateFuncs).ParseFS(fsys, "templates/*.html")
	if err != nil {
		return nil, nil, fmt.Errorf("parse templates: %w", err)
	}

	files, err := fs.Glob(fsys, "templates/pages/*.html")
	if err != nil {
		return nil, nil, fmt.Errorf("list page templates: %w", err)
	}
	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		clone, err := base.Clone()
		if err != nil {
			return nil, nil, fmt.Errorf("clone templates for %s: %w", f, err)
		}
		if _, err := clone.ParseFS(fsys, f); err != nil {
			return nil, nil, fmt.Errorf("parse page %s: %w", f, err)
		}
		pages[strings.TrimSuffix(path.Base(f), ".html")] = clone
	}
	return base, pages, nil
}

// renderPage writes a full page through the layout.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	t, ok := s.pages[page]
	if !ok {
		s.logger.ErrorContext(r.Context(), "Unknown page template", "page", page)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if sess := sessionFrom(r.Context()); sess != nil {
		data.User = &sess.User
		if data.Flash == "" {
			data.Flash = s.popFlash(sess.ID)
		}
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).ErrorContext(r.Context(), "Template render failed",
			"page", page, applog.FieldOperation, applog.OpRender,
			applog.FieldErrorType, applog.ErrorTypeInternal, applog.FieldError, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// partial renders one named template into a response builder.
func (s *Server) partial(r *http.Request, name string, data any) *HTMXResponseBuilder {
	var buf bytes.Buffer
	if err := s.partials.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).ErrorContext(r.Context(), "Partial render failed",
			"template", name, applog.FieldOperation, applog.OpRender,
			applog.FieldErrorType, applog.ErrorTypeInternal, applog.FieldError, err)
		return InternalServerError("Something went wrong rendering this view.")
	}
	return NewHTMXResponse().BodyHTML(buf.String())
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect sends HTMX requests an HX-Redirect and everyone else a 303.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect(target).Write(w)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
