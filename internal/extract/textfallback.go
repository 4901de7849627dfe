package extract

import (
	"strings"

	"carwatch/internal/domain"
)

// textFallbackStrategy is the last resort: it works over the page's rendered
// plain text and only targets fields the earlier strategies tend to miss,
// in particular the price and the seller location.
type textFallbackStrategy struct{}

func (s *textFallbackStrategy) Name() string { return "text-fallback" }

// knownLocations is the fixed dictionary of location names the site uses.
var knownLocations = []string{
	"თბილისი",
	"ბათუმი",
	"ქუთაისი",
	"რუსთავი",
	"გორი",
	"ზუგდიდი",
	"ფოთი",
	"თელავი",
	"ახალციხე",
	"მარნეული",
}

func (s *textFallbackStrategy) Extract(p *Page, sofar *domain.ListingRecord) *domain.ListingRecord {
	rec := &domain.ListingRecord{}
	found := false
	text := p.Text()

	if sofar.Pricing.Empty() {
		if pricing := ResolvePrice(text); pricing != nil {
			rec.Pricing = *pricing
			found = true
		}
	}

	if sofar.Seller.Location == "" {
		for _, loc := range knownLocations {
			if strings.Contains(text, loc) {
				rec.Seller.Location = loc
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
