package extract

import (
	"github.com/sirupsen/logrus"

	"carwatch/internal/domain"
)

// Strategy is one self-contained method of recovering structured fields from
// a page. It receives the record assembled so far (read-only, so it can skip
// work for fields that are already present) and returns its own partial
// result. It must not mutate sofar; the engine merges partials centrally.
type Strategy interface {
	Name() string
	Extract(p *Page, sofar *domain.ListingRecord) *domain.ListingRecord
}

// Engine runs an ordered list of strategies over a page and merges their
// partial results under a fill-if-absent policy: once a field is populated
// it is never overwritten, so earlier strategies take precedence and later
// ones act purely as fallbacks.
type Engine struct {
	strategies []Strategy
	log        logrus.FieldLogger
}

// NewEngine builds the production pipeline. Order matters: the cheap
// syntactic strategies run before the embedded payload so explicit
// heading/label data is not shadowed by possibly stale hydration state, and
// the slow text fallbacks run last.
func NewEngine(logger logrus.FieldLogger) *Engine {
	return &Engine{
		strategies: []Strategy{
			&headingStrategy{},
			&labelScanStrategy{},
			&embeddedPayloadStrategy{},
			&targetedSelectorStrategy{},
			&textFallbackStrategy{},
		},
		log: logger.WithField("component", "extract"),
	}
}

// NewEngineWith builds an engine over an explicit strategy list. Used by
// tests to probe the merge policy.
func NewEngineWith(logger logrus.FieldLogger, strategies ...Strategy) *Engine {
	return &Engine{strategies: strategies, log: logger.WithField("component", "extract")}
}

// Extract assembles a ListingRecord from rendered page HTML. A failing
// strategy contributes nothing but never aborts the pipeline; a record with
// zero populated fields is returned as-is and the caller treats it as
// "no usable data", not as an error.
func (e *Engine) Extract(html, listingID, url string) (*domain.ListingRecord, error) {
	page, err := NewPage(html)
	if err != nil {
		return nil, err
	}

	rec := &domain.ListingRecord{ID: listingID, URL: url}
	log := e.log.WithField("listing_id", listingID)

	for _, s := range e.strategies {
		partial := s.Extract(page, rec)
		if partial == nil {
			continue
		}
		filled := mergeFillAbsent(rec, partial)
		if len(filled) > 0 {
			log.WithFields(logrus.Fields{
				"strategy": s.Name(),
				"fields":   filled,
			}).Debug("Strategy contributed fields")
		}
	}

	if rec.Pricing.Positional {
		// Distinguishable level so mis-priced listings can be audited.
		log.WithField("price", rec.Pricing.Display()).
			Warn("Price resolved by position-order fallback")
	}
	if rec.Empty() {
		log.Debug("No usable fields extracted")
	}
	return rec, nil
}
