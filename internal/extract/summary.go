package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"carwatch/internal/domain"
)

var detailPath = regexp.MustCompile(`/pr/(\d+)`)

// ParseSummaries pulls listing summaries out of a rendered search-results
// page. A summary is intentionally coarse: just enough (id, detail URL,
// title, rough price text) to decide whether a detail fetch is needed.
// Summaries are returned in document order, deduplicated by listing id.
func ParseSummaries(html, baseURL string) ([]domain.ListingSummary, error) {
	page, err := NewPage(html)
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(baseURL)
	seen := make(map[string]bool)
	var summaries []domain.ListingSummary

	page.Doc().Find(`a[href*="/pr/"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		m := detailPath.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		if seen[id] {
			return
		}
		seen[id] = true

		abs := href
		if base != nil {
			if u, err := url.Parse(href); err == nil {
				abs = base.ResolveReference(u).String()
			}
		}

		// The anchor (or its card container) carries title and coarse price
		// as plain text.
		card := sel
		if t := strings.TrimSpace(sel.Text()); t == "" {
			card = sel.Parent()
		}
		text := strings.TrimSpace(card.Text())

		s := domain.ListingSummary{ID: id, URL: abs}
		lines := strings.Split(text, "\n")
		for _, l := range lines {
			l = strings.TrimSpace(l)
			if l == "" {
				continue
			}
			if s.Title == "" {
				s.Title = l
				continue
			}
			if s.Price == "" && strings.IndexFunc(l, isDigit) >= 0 {
				s.Price = l
			}
		}
		summaries = append(summaries, s)
	})

	return summaries, nil
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
