package extract

import (
	"strconv"
	"strings"

	"carwatch/internal/domain"
)

// headingStrategy parses the page's primary heading, which the site renders
// as "<year> <make> <model...>" plain text. Cheapest source and the most
// precise when present, so it runs first.
type headingStrategy struct{}

func (s *headingStrategy) Name() string { return "heading" }

func (s *headingStrategy) Extract(p *Page, _ *domain.ListingRecord) *domain.ListingRecord {
	heading := strings.TrimSpace(p.Doc().Find("h1").First().Text())
	if heading == "" {
		return nil
	}
	v, ok := parseHeadingLine(heading)
	if !ok {
		return nil
	}
	rec := &domain.ListingRecord{}
	rec.Vehicle = v
	return rec
}

// parseHeadingLine splits "<year> <make> <model...>": first token numeric
// year, second make, remainder model.
func parseHeadingLine(text string) (domain.Vehicle, bool) {
	tokens := strings.Fields(text)
	if len(tokens) < 2 {
		return domain.Vehicle{}, false
	}
	year, err := strconv.Atoi(tokens[0])
	if err != nil || year < 1900 || year > 2100 {
		return domain.Vehicle{}, false
	}
	v := domain.Vehicle{Year: year, Make: tokens[1]}
	if len(tokens) > 2 {
		v.Model = strings.Join(tokens[2:], " ")
	}
	return v, true
}
