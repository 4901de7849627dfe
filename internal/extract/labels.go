package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"carwatch/internal/domain"
)

// labelScanStrategy walks text-bearing elements looking for "label: value"
// pairs where the label is one of the site's Georgian field labels, and maps
// matched pairs onto the record through an explicit lookup table.
type labelScanStrategy struct{}

func (s *labelScanStrategy) Name() string { return "label-scan" }

type labelRule struct {
	label  string
	assign func(rec *domain.ListingRecord, value string)
}

var firstNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// affirmative tokens used by the site for boolean spec rows.
var affirmatives = []string{"კი", "დიახ", "განბაჟებული", "გავლილი"}

func isAffirmative(value string) bool {
	for _, tok := range affirmatives {
		if strings.Contains(value, tok) {
			return true
		}
	}
	return false
}

func numberIn(value string) int {
	m := firstNumber.FindString(strings.ReplaceAll(value, ",", ""))
	if m == "" {
		return 0
	}
	n, _ := strconv.Atoi(strings.SplitN(m, ".", 2)[0])
	return n
}

func floatIn(value string) float64 {
	m := firstNumber.FindString(value)
	if m == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(m, 64)
	return f
}

// labelRules is the label dictionary: site label token → target field plus
// coercion. Labels are matched by prefix of the element text before ":".
var labelRules = []labelRule{
	{"გამოშვების წელი", func(r *domain.ListingRecord, v string) { r.Vehicle.Year = numberIn(v) }},
	{"კატეგორია", func(r *domain.ListingRecord, v string) { r.Vehicle.BodyType = strings.TrimSpace(v) }},
	{"ფერი", func(r *domain.ListingRecord, v string) { r.Vehicle.Color = strings.TrimSpace(v) }},
	{"კარის რაოდენობა", func(r *domain.ListingRecord, v string) { r.Vehicle.Doors = numberIn(v) }},
	{"ადგილების რაოდენობა", func(r *domain.ListingRecord, v string) { r.Vehicle.Seats = numberIn(v) }},
	{"წამყვანი თვლები", func(r *domain.ListingRecord, v string) { r.Vehicle.Drive = strings.TrimSpace(v) }},
	{"საჭე", func(r *domain.ListingRecord, v string) { r.Vehicle.Wheel = strings.TrimSpace(v) }},

	{"საწვავის ტიპი", func(r *domain.ListingRecord, v string) { r.Engine.FuelType = strings.TrimSpace(v) }},
	{"ძრავის მოცულობა", func(r *domain.ListingRecord, v string) { r.Engine.Displacement = floatIn(v) }},
	{"გადაცემათა კოლოფი", func(r *domain.ListingRecord, v string) { r.Engine.Transmission = strings.TrimSpace(v) }},
	{"ცილინდრები", func(r *domain.ListingRecord, v string) { r.Engine.Cylinders = numberIn(v) }},

	{"გარბენი", func(r *domain.ListingRecord, v string) { r.Condition.Mileage = numberIn(v) }},
	{"განბაჟება", func(r *domain.ListingRecord, v string) { r.Condition.CustomsCleared = isAffirmative(v) }},
	{"ტექდათვალიერება", func(r *domain.ListingRecord, v string) { r.Condition.Inspected = isAffirmative(v) }},

	{"მდებარეობა", func(r *domain.ListingRecord, v string) { r.Seller.Location = strings.TrimSpace(v) }},
	{"გამყიდველი", func(r *domain.ListingRecord, v string) { r.Seller.Name = strings.TrimSpace(v) }},
}

// skipLabels is known non-data text that happens to contain a colon
// (navigation, UI chrome). Matching elements are ignored outright.
var skipLabels = []string{"ძებნა", "ფილტრი", "დალაგება", "შესვლა", "განცხადების დამატება"}

func (s *labelScanStrategy) Extract(p *Page, _ *domain.ListingRecord) *domain.ListingRecord {
	rec := &domain.ListingRecord{}
	found := false

	p.Doc().Find("div, span, li, td, dt, dd, p").Each(func(_ int, sel *goquery.Selection) {
		// Only leaf-ish elements: a container's text would glue many
		// label/value pairs together.
		if sel.Children().Length() > 2 {
			return
		}
		text := strings.TrimSpace(sel.Text())
		label, value, ok := strings.Cut(text, ":")
		if !ok {
			return
		}
		label = strings.TrimSpace(label)
		value = strings.TrimSpace(value)
		if label == "" || value == "" {
			return
		}
		for _, skip := range skipLabels {
			if strings.Contains(label, skip) {
				return
			}
		}
		for _, rule := range labelRules {
			if strings.HasPrefix(label, rule.label) {
				rule.assign(rec, value)
				found = true
				break
			}
		}
	})

	if !found {
		return nil
	}
	return rec
}
