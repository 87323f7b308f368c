// Package render turns Markdown job output into HTML.
package render

import (
	"bytes"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Markdown renders CommonMark plus GFM tables, strikethrough and autolinks.
// Raw HTML in the source is escaped. Safe for concurrent use.
type Markdown struct {
	md   goldmark.Markdown
	pool sync.Pool
}

func NewMarkdown() *Markdown {
	m := &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
	m.pool.New = func() any { return new(bytes.Buffer) }
	return m
}

func (m *Markdown) Render(text string) (string, error) {
	buf := m.pool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		m.pool.Put(buf)
	}()
	if err := m.md.Convert([]byte(text), buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
