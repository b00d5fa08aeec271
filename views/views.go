// Package views holds the HTML templates and the helpers they call.
package views

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"github.com/go-extras/go-kit/must"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/*.html
var files embed.FS

// Post text is rendered without raw HTML passthrough: authors are untrusted.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
	),
)

// Templates parses every page. mediaURL prefixes stored image paths.
func Templates(mediaURL string) *template.Template {
	return must.Must(template.New("").Funcs(Funcs(mediaURL)).ParseFS(files, "templates/*.html"))
}

func Funcs(mediaURL string) template.FuncMap {
	if !strings.HasSuffix(mediaURL, "/") {
		mediaURL += "/"
	}
	return template.FuncMap{
		"now": func() time.Time {
			return time.Now()
		},
		"markdown": func(s string) template.HTML {
			return template.HTML(RenderMarkdown(s))
		},
		"media": func(stored string) string {
			if stored == "" {
				return ""
			}
			return mediaURL + stored
		},
		"date": func(t time.Time) string {
			return t.Format("2 January 2006, 15:04")
		},
		"inputDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02T15:04")
		},
		"truncate": truncateWords,
		"add": func(a, b int) int {
			return a + b
		},
		"deref": func(id *uint) uint {
			if id == nil {
				return 0
			}
			return *id
		},
	}
}

func RenderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return template.HTMLEscapeString(content)
	}
	return buf.String()
}

// truncateWords keeps the first n words, adding an ellipsis when text was cut.
func truncateWords(n int, s string) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + " ..."
}
