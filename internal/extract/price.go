package extract

import (
	"regexp"
	"strconv"
	"strings"

	"carwatch/internal/domain"
)

// The site shows most prices twice, once in GEL and once converted to USD,
// with no machine-readable currency tag. ResolvePrice implements the
// documented disambiguation heuristic: currency-hinted buckets first, then
// plausible-magnitude buckets, then a ratio check against the exchange-rate
// band, then position order. The heuristic is known to misfire on some
// inputs; it is preserved as documented rather than "corrected", because no
// general rule is established.

const (
	usdMin = 5_000
	usdMax = 300_000
	gelMin = 20_000
	gelMax = 2_000_000

	// Plausible GEL/USD exchange-rate band.
	rateBandLow  = 2.0
	rateBandHigh = 3.5
)

var (
	groupedNumber = regexp.MustCompile(`\d{1,3}(?:,\d{3})+`)
	bareNumber    = regexp.MustCompile(`\b\d{4,7}\b`)
	priceLabel    = regexp.MustCompile(`(?:ფასი|[Pp]rice)\s*[:=]\s*([\d,]+)`)
)

var (
	usdMarkers = []string{"$", "USD"}
	gelMarkers = []string{"₾", "GEL", "ლარი"}
)

type priceCandidate struct {
	value int
	pos   int
	hint  string // "USD", "GEL" or ""
}

// ResolvePrice scans page text for price candidates and disambiguates them.
// Returns nil when no price information can be recovered at all.
func ResolvePrice(text string) *domain.Pricing {
	cands := scanCandidates(text)
	if len(cands) == 0 {
		return labelAdjacentPrice(text)
	}

	var hintedUSD, hintedGEL, unclassified []priceCandidate
	for _, c := range cands {
		switch c.hint {
		case "USD":
			hintedUSD = append(hintedUSD, c)
		case "GEL":
			hintedGEL = append(hintedGEL, c)
		default:
			unclassified = append(unclassified, c)
		}
	}

	// No currency hints anywhere: take the candidate appearing earliest in
	// document order, defaulting the currency to USD, and flag the result
	// for auditing.
	if len(hintedUSD) == 0 && len(hintedGEL) == 0 {
		c, ok := earliestPlausible(cands)
		if !ok {
			return labelAdjacentPrice(text)
		}
		return &domain.Pricing{Amount: c.value, Currency: "USD", Positional: true}
	}

	usdBucket := append([]priceCandidate{}, hintedUSD...)
	gelBucket := append([]priceCandidate{}, hintedGEL...)
	for _, c := range unclassified {
		if c.value >= usdMin && c.value <= usdMax {
			usdBucket = append(usdBucket, c)
		}
		if c.value >= gelMin && c.value <= gelMax {
			gelBucket = append(gelBucket, c)
		}
	}

	// Smallest plausible USD price guards against a GEL-magnitude number
	// misclassified as USD; largest GEL is the symmetric guard.
	usd, hasUSD := minValue(usdBucket)
	gel, hasGEL := maxValue(gelBucket)

	if hasUSD && hasGEL && gel != usd {
		ratio := float64(gel) / float64(usd)
		if ratio >= rateBandLow && ratio <= rateBandHigh {
			return &domain.Pricing{AmountUSD: usd, AmountGEL: gel}
		}
	}
	if hasUSD {
		return &domain.Pricing{Amount: usd, Currency: "USD"}
	}
	if hasGEL {
		return &domain.Pricing{Amount: gel, Currency: "GEL"}
	}
	return labelAdjacentPrice(text)
}

// scanCandidates finds numbers in both representations: digit groups with
// thousands separators and bare 4-7 digit runs, classifying each by any
// adjacent currency symbol/code.
func scanCandidates(text string) []priceCandidate {
	var cands []priceCandidate
	taken := make([][2]int, 0, 8)

	for _, span := range groupedNumber.FindAllStringIndex(text, -1) {
		v, err := strconv.Atoi(strings.ReplaceAll(text[span[0]:span[1]], ",", ""))
		if err != nil {
			continue
		}
		cands = append(cands, priceCandidate{value: v, pos: span[0], hint: currencyHint(text, span)})
		taken = append(taken, [2]int{span[0], span[1]})
	}

	for _, span := range bareNumber.FindAllStringIndex(text, -1) {
		if overlapsAny(span, taken) {
			continue
		}
		v, err := strconv.Atoi(text[span[0]:span[1]])
		if err != nil {
			continue
		}
		cands = append(cands, priceCandidate{value: v, pos: span[0], hint: currencyHint(text, span)})
	}
	return cands
}

// currencyHint inspects the few characters around a number for a currency
// symbol or code.
func currencyHint(text string, span []int) string {
	lo := span[0] - 8
	if lo < 0 {
		lo = 0
	}
	hi := span[1] + 8
	if hi > len(text) {
		hi = len(text)
	}
	window := text[lo:hi]
	for _, m := range usdMarkers {
		if strings.Contains(window, m) {
			return "USD"
		}
	}
	for _, m := range gelMarkers {
		if strings.Contains(window, m) {
			return "GEL"
		}
	}
	return ""
}

func overlapsAny(span []int, taken [][2]int) bool {
	for _, t := range taken {
		if span[0] < t[1] && span[1] > t[0] {
			return true
		}
	}
	return false
}

// earliestPlausible returns the position-earliest candidate whose magnitude
// falls in either currency range, or the earliest candidate of any size when
// none do.
func earliestPlausible(cands []priceCandidate) (priceCandidate, bool) {
	var best priceCandidate
	found := false
	for _, c := range cands {
		inRange := (c.value >= usdMin && c.value <= usdMax) || (c.value >= gelMin && c.value <= gelMax)
		if !inRange {
			continue
		}
		if !found || c.pos < best.pos {
			best, found = c, true
		}
	}
	if found {
		return best, true
	}
	for _, c := range cands {
		if !found || c.pos < best.pos {
			best, found = c, true
		}
	}
	return best, found
}

func minValue(cands []priceCandidate) (int, bool) {
	if len(cands) == 0 {
		return 0, false
	}
	v := cands[0].value
	for _, c := range cands[1:] {
		if c.value < v {
			v = c.value
		}
	}
	return v, true
}

func maxValue(cands []priceCandidate) (int, bool) {
	if len(cands) == 0 {
		return 0, false
	}
	v := cands[0].value
	for _, c := range cands[1:] {
		if c.value > v {
			v = c.value
		}
	}
	return v, true
}

// labelAdjacentPrice is the final fallback: a "<price-label>: <number>"
// pattern with the currency inferred from the surrounding context.
func labelAdjacentPrice(text string) *domain.Pricing {
	loc := priceLabel.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil
	}
	v, err := strconv.Atoi(strings.ReplaceAll(text[loc[2]:loc[3]], ",", ""))
	if err != nil || v == 0 {
		return nil
	}
	lo := loc[0] - 100
	if lo < 0 {
		lo = 0
	}
	hi := loc[1] + 100
	if hi > len(text) {
		hi = len(text)
	}
	currency := "USD"
	window := text[lo:hi]
	for _, m := range gelMarkers {
		if strings.Contains(window, m) {
			currency = "GEL"
			break
		}
	}
	return &domain.Pricing{Amount: v, Currency: currency}
}
