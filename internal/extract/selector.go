package extract

import (
	"strings"

	"carwatch/internal/domain"
)

// targetedSelectorStrategy tries a short list of class-name-substring
// selectors the site has used across redesigns for the price and heading
// blocks. First non-empty match wins per field.
type targetedSelectorStrategy struct{}

func (s *targetedSelectorStrategy) Name() string { return "targeted-selector" }

var priceSelectors = []string{
	`[class*="product-price"]`,
	`[class*="price-box"]`,
	`[class*="d-price"]`,
	`[class*="price"]`,
}

var headingSelectors = []string{
	`[class*="product-title"]`,
	`[class*="d-heading"]`,
	`[class*="heading"]`,
}

func (s *targetedSelectorStrategy) Extract(p *Page, sofar *domain.ListingRecord) *domain.ListingRecord {
	rec := &domain.ListingRecord{}
	found := false

	if sofar.Pricing.Empty() {
		for _, sel := range priceSelectors {
			text := strings.TrimSpace(p.Doc().Find(sel).First().Text())
			if text == "" {
				continue
			}
			if pricing := ResolvePrice(text); pricing != nil {
				rec.Pricing = *pricing
				found = true
				break
			}
		}
	}

	if sofar.Vehicle.Make == "" {
		for _, sel := range headingSelectors {
			text := strings.TrimSpace(p.Doc().Find(sel).First().Text())
			if text == "" {
				continue
			}
			if v, ok := parseHeadingLine(text); ok {
				rec.Vehicle = v
				found = true
				break
			}
		}
	}

	if !found {
		return nil
	}
	return rec
}
