// Package web holds the server-rendered templates and static assets.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Static serves the stylesheet and other assets under /static.
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

// Templates parses every page with the helper functions bound to loc.
func Templates(loc *time.Location) (*template.Template, error) {
	return template.New("").Funcs(FuncMap(loc)).ParseFS(templateFS, "templates/*.html")
}

// FuncMap returns the template helpers. Times are shown in loc.
func FuncMap(loc *time.Location) template.FuncMap {
	if loc == nil {
		loc = time.Local
	}
	format := func(layout string) func(any) string {
		return func(v any) string {
			t, ok := asTime(v)
			if !ok {
				return ""
			}
			return t.In(loc).Format(layout)
		}
	}
	return template.FuncMap{
		"date":       format("Jan 2, 2006"),
		"datetime":   format("Mon Jan 2, 2006 3:04 PM"),
		"money":      Money,
		"spots":      spots,
		"statusText": http.StatusText,
		"list":       func(items ...string) []string { return items },
		"title":      title,
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return *t, true
	}
	return time.Time{}, false
}

// Money formats an amount as US dollars with thousands separators.
func Money(amount float64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := fmt.Sprintf("%.2f", amount)
	whole, cents := s[:len(s)-3], s[len(s)-2:]
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String() + "." + cents
	if neg {
		return "-" + out
	}
	return out
}

func spots(n int) string {
	if n < 0 {
		return "Unlimited"
	}
	if n == 0 {
		return "Full"
	}
	return fmt.Sprint(n)
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
