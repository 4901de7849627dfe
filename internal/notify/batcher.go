package notify

import (
	"fmt"
	"strings"

	"carwatch/internal/domain"
)

// Limits bounds one outbound message.
type Limits struct {
	MaxItems int // records per batch
	MaxChars int // rendered message size
}

// Batch is one size-bounded outbound message for a single recipient.
// Batches are never persisted; a batch is built, sent once, and discarded.
type Batch struct {
	Index int // 1-based
	Total int
	Text  string

	// PhotoURL is set for single-record batches that have an image, so the
	// dispatcher can use the send-photo variant with Text as caption.
	PhotoURL string
}

// headerReserve keeps room for the "batch i/n" header line, which can only
// be rendered once the total batch count is known.
const headerReserve = 64

// BuildBatches splits an ordered run of new listings into batches within the
// limits. One record renders with the detailed template; several render as
// condensed per-item lines, with a "batch i of n" header when more than one
// batch results. Input order is preserved.
func BuildBatches(records []*domain.ListingRecord, limits Limits) []Batch {
	if len(records) == 0 {
		return nil
	}

	if len(records) == 1 {
		rec := records[0]
		b := Batch{Index: 1, Total: 1, Text: truncate(renderDetailed(rec), limits.MaxChars)}
		if len(rec.Media.ImageURLs) > 0 {
			b.PhotoURL = rec.Media.ImageURLs[0]
		}
		return []Batch{b}
	}

	budget := limits.MaxChars - headerReserve
	var groups [][]string
	var cur []string
	size := 0
	for _, rec := range records {
		line := renderCondensed(rec)
		if len(cur) > 0 && (len(cur) >= limits.MaxItems || size+len(line)+1 > budget) {
			groups = append(groups, cur)
			cur, size = nil, 0
		}
		cur = append(cur, line)
		size += len(line) + 1
	}
	groups = append(groups, cur)

	total := len(groups)
	batches := make([]Batch, 0, total)
	for i, lines := range groups {
		header := fmt.Sprintf("🚗 %d new listings", len(lines))
		if total > 1 {
			header = fmt.Sprintf("%s (batch %d/%d)", header, i+1, total)
		}
		text := header + "\n\n" + strings.Join(lines, "\n")
		batches = append(batches, Batch{
			Index: i + 1,
			Total: total,
			Text:  truncate(text, limits.MaxChars),
		})
	}
	return batches
}

// renderDetailed is the single-item template: every extracted group gets a
// line when populated.
func renderDetailed(rec *domain.ListingRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", escapeMarkdown(rec.Title()))
	fmt.Fprintf(&b, "%s\n", rec.Pricing.Display())

	var engine []string
	if rec.Engine.FuelType != "" {
		engine = append(engine, rec.Engine.FuelType)
	}
	if rec.Engine.Displacement > 0 {
		engine = append(engine, fmt.Sprintf("%.1fL", rec.Engine.Displacement))
	}
	if rec.Engine.Transmission != "" {
		engine = append(engine, rec.Engine.Transmission)
	}
	if len(engine) > 0 {
		fmt.Fprintf(&b, "%s\n", strings.Join(engine, " / "))
	}

	if rec.Condition.Mileage > 0 {
		fmt.Fprintf(&b, "Mileage: %d km\n", rec.Condition.Mileage)
	}
	if rec.Condition.CustomsCleared {
		b.WriteString("Customs cleared\n")
	}

	var seller []string
	if rec.Seller.Name != "" {
		seller = append(seller, escapeMarkdown(rec.Seller.Name))
	}
	if rec.Seller.Location != "" {
		seller = append(seller, escapeMarkdown(rec.Seller.Location))
	}
	if rec.Seller.IsDealer {
		seller = append(seller, "dealer")
	}
	if len(seller) > 0 {
		fmt.Fprintf(&b, "Seller: %s\n", strings.Join(seller, ", "))
	}

	if rec.PostedDate != "" {
		fmt.Fprintf(&b, "Posted: %s\n", escapeMarkdown(rec.PostedDate))
	}
	fmt.Fprintf(&b, "[Open listing](%s)", rec.URL)
	return b.String()
}

// renderCondensed is the per-item line used inside multi-record batches.
func renderCondensed(rec *domain.ListingRecord) string {
	line := fmt.Sprintf("• [%s](%s) — %s", escapeMarkdown(rec.Title()), rec.URL, rec.Pricing.Display())
	if rec.Seller.Location != "" {
		line += ", " + escapeMarkdown(rec.Seller.Location)
	}
	return line
}

// escapeMarkdown neutralizes the Markdown control characters Telegram's
// legacy Markdown mode understands.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("_", `\_`, "*", `\*`, "[", `\[`, "`", "'")
	return r.Replace(s)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	cut := s[:max-3] // room for the ellipsis
	// Do not split a multi-byte rune.
	for len(cut) > 0 && cut[len(cut)-1]&0xC0 == 0x80 {
		cut = cut[:len(cut)-1]
	}
	return cut + "…"
}
