package extract

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

var spaceRun = regexp.MustCompile(`[ \t]+`)

// Page wraps one fetched detail page: the parsed DOM plus a lazily built
// plain-text rendering used by the text-based strategies.
type Page struct {
	doc *goquery.Document

	textOnce sync.Once
	text     string
}

// NewPage parses rendered HTML into a Page.
func NewPage(html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Page{doc: doc}, nil
}

// Doc exposes the parsed DOM for selector-based strategies.
func (p *Page) Doc() *goquery.Document {
	return p.doc
}

// Text returns the page rendered as plain text, with script and style
// content removed and whitespace collapsed. Document order is preserved,
// which the positional price fallback depends on.
func (p *Page) Text() string {
	p.textOnce.Do(func() {
		clone := p.doc.Clone()
		clone.Find("script, style, noscript").Remove()
		raw := clone.Find("body").Text()
		if raw == "" {
			raw = clone.Text()
		}
		lines := strings.Split(raw, "\n")
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			l = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
			if l != "" {
				out = append(out, l)
			}
		}
		p.text = strings.Join(out, "\n")
	})
	return p.text
}
