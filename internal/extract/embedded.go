package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"carwatch/internal/domain"
)

// embeddedPayloadStrategy digs the hydration payload the site's client
// framework embeds in a script tag. When present it is the most complete
// single source, but it runs after the syntactic strategies so explicit
// heading/label data is never shadowed by stale hydration state.
type embeddedPayloadStrategy struct{}

func (s *embeddedPayloadStrategy) Name() string { return "embedded-payload" }

type embeddedListing struct {
	Vehicle struct {
		Make     string `json:"make"`
		Model    string `json:"model"`
		Year     int    `json:"year"`
		BodyType string `json:"body_type"`
		Color    string `json:"color"`
		Doors    int    `json:"doors"`
		Seats    int    `json:"seats"`
		Drive    string `json:"drive"`
	} `json:"vehicle"`
	Engine struct {
		FuelType     string  `json:"fuel_type"`
		Displacement float64 `json:"displacement"`
		Transmission string  `json:"transmission"`
		Power        int     `json:"power"`
	} `json:"engine"`
	Condition struct {
		Mileage        int  `json:"mileage"`
		CustomsCleared bool `json:"customs_cleared"`
		Inspected      bool `json:"inspected"`
	} `json:"condition"`
	Pricing struct {
		Amount    int    `json:"amount"`
		Currency  string `json:"currency"`
		AmountUSD int    `json:"amount_usd"`
		AmountGEL int    `json:"amount_gel"`
	} `json:"pricing"`
	Seller struct {
		Name     string `json:"name"`
		Location string `json:"location"`
		IsDealer bool   `json:"is_dealer"`
	} `json:"seller"`
	Images      []string `json:"images"`
	PostedDate  string   `json:"posted_date"`
	Description string   `json:"description"`
}

func (s *embeddedPayloadStrategy) Extract(p *Page, _ *domain.ListingRecord) *domain.ListingRecord {
	var payload *embeddedListing

	p.Doc().Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !strings.Contains(text, `"vehicle"`) && !strings.Contains(text, `"pricing"`) {
			return true
		}
		raw := jsonObjectIn(text)
		if raw == "" {
			return true
		}
		if found := decodeListingPayload([]byte(raw)); found != nil {
			payload = found
			return false
		}
		return true
	})

	if payload == nil {
		return nil
	}

	rec := &domain.ListingRecord{}
	rec.Vehicle.Make = payload.Vehicle.Make
	rec.Vehicle.Model = payload.Vehicle.Model
	rec.Vehicle.Year = payload.Vehicle.Year
	rec.Vehicle.BodyType = payload.Vehicle.BodyType
	rec.Vehicle.Color = payload.Vehicle.Color
	rec.Vehicle.Doors = payload.Vehicle.Doors
	rec.Vehicle.Seats = payload.Vehicle.Seats
	rec.Vehicle.Drive = payload.Vehicle.Drive
	rec.Engine.FuelType = payload.Engine.FuelType
	rec.Engine.Displacement = payload.Engine.Displacement
	rec.Engine.Transmission = payload.Engine.Transmission
	rec.Engine.Power = payload.Engine.Power
	rec.Condition.Mileage = payload.Condition.Mileage
	rec.Condition.CustomsCleared = payload.Condition.CustomsCleared
	rec.Condition.Inspected = payload.Condition.Inspected
	if payload.Pricing.AmountUSD != 0 && payload.Pricing.AmountGEL != 0 {
		rec.Pricing.AmountUSD = payload.Pricing.AmountUSD
		rec.Pricing.AmountGEL = payload.Pricing.AmountGEL
	} else if payload.Pricing.Amount != 0 {
		rec.Pricing.Amount = payload.Pricing.Amount
		rec.Pricing.Currency = payload.Pricing.Currency
		if rec.Pricing.Currency == "" {
			rec.Pricing.Currency = "USD"
		}
	}
	rec.Seller.Name = payload.Seller.Name
	rec.Seller.Location = payload.Seller.Location
	rec.Seller.IsDealer = payload.Seller.IsDealer
	rec.Media.ImageURLs = payload.Images
	rec.PostedDate = payload.PostedDate
	rec.Description = payload.Description
	return rec
}

// jsonObjectIn slices the outermost {...} out of a script body such as
// "window.__INITIAL_STATE__ = {...};".
func jsonObjectIn(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// decodeListingPayload decodes raw JSON into an embeddedListing, descending
// through wrapper objects until it finds one with recognizable keys.
func decodeListingPayload(raw []byte) *embeddedListing {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	if _, ok := obj["vehicle"]; ok {
		var l embeddedListing
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil
		}
		return &l
	}
	if _, ok := obj["pricing"]; ok {
		var l embeddedListing
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil
		}
		return &l
	}
	for _, v := range obj {
		if len(v) == 0 || v[0] != '{' {
			continue
		}
		if l := decodeListingPayload(v); l != nil {
			return l
		}
	}
	return nil
}
