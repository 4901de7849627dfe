package domain

import (
	"fmt"
	"strings"
	"time"
)

// ListingSummary holds the minimal fields recoverable from a search-results
// page. It is transient: only used to decide whether a detail fetch is
// needed, never persisted.
type ListingSummary struct {
	ID       string
	Title    string
	Price    string
	Location string
	URL      string
}

// Vehicle groups the car-identity fields of a listing.
type Vehicle struct {
	Make     string `json:"make,omitempty"`
	Model    string `json:"model,omitempty"`
	Year     int    `json:"year,omitempty"`
	BodyType string `json:"body_type,omitempty"`
	Color    string `json:"color,omitempty"`
	Doors    int    `json:"doors,omitempty"`
	Seats    int    `json:"seats,omitempty"`
	Drive    string `json:"drive,omitempty"`
	Wheel    string `json:"wheel,omitempty"`
}

// Engine groups the drivetrain fields.
type Engine struct {
	FuelType     string  `json:"fuel_type,omitempty"`
	Displacement float64 `json:"displacement,omitempty"`
	Transmission string  `json:"transmission,omitempty"`
	Power        int     `json:"power,omitempty"`
	Cylinders    int     `json:"cylinders,omitempty"`
}

// Condition groups mileage and legal-status fields.
type Condition struct {
	Mileage        int  `json:"mileage,omitempty"`
	CustomsCleared bool `json:"customs_cleared,omitempty"`
	Inspected      bool `json:"inspected,omitempty"`
}

// Pricing holds the resolved price. Either Amount+Currency is set, or both
// AmountUSD and AmountGEL are set when the page showed the same price in two
// currencies. Positional reports that the resolver had to fall back to
// document order with no currency hint, so the value should be audited.
type Pricing struct {
	Amount     int    `json:"amount,omitempty"`
	Currency   string `json:"currency,omitempty"`
	AmountUSD  int    `json:"amount_usd,omitempty"`
	AmountGEL  int    `json:"amount_gel,omitempty"`
	Positional bool   `json:"positional,omitempty"`
}

// Empty reports whether no price information was resolved at all.
func (p Pricing) Empty() bool {
	return p.Amount == 0 && p.AmountUSD == 0 && p.AmountGEL == 0
}

// Display renders the price for a notification line, preferring USD when a
// currency pair was resolved.
func (p Pricing) Display() string {
	switch {
	case p.AmountUSD != 0 && p.AmountGEL != 0:
		return fmt.Sprintf("$%d (₾%d)", p.AmountUSD, p.AmountGEL)
	case p.Amount != 0 && p.Currency == "GEL":
		return fmt.Sprintf("₾%d", p.Amount)
	case p.Amount != 0:
		return fmt.Sprintf("$%d", p.Amount)
	default:
		return "price n/a"
	}
}

// Seller groups seller identity fields.
type Seller struct {
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
	IsDealer bool   `json:"is_dealer,omitempty"`
}

// Media holds image URLs found on the listing page.
type Media struct {
	ImageURLs []string `json:"image_urls,omitempty"`
}

// ListingRecord is the full structured record extracted from a detail page.
// It is immutable once returned by the extraction engine; every populated
// field was written by exactly one strategy (fill-if-absent merge).
type ListingRecord struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Vehicle     Vehicle   `json:"vehicle"`
	Engine      Engine    `json:"engine"`
	Condition   Condition `json:"condition"`
	Pricing     Pricing   `json:"pricing"`
	Seller      Seller    `json:"seller"`
	Media       Media     `json:"media"`
	PostedDate  string    `json:"posted_date,omitempty"`
	Description string    `json:"description,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Empty reports whether the record carries no usable data, i.e. no strategy
// populated anything beyond the identifiers passed in. Upstream treats an
// empty record as skip-not-error.
func (r *ListingRecord) Empty() bool {
	return r.Vehicle == (Vehicle{}) &&
		r.Engine == (Engine{}) &&
		r.Condition == (Condition{}) &&
		r.Pricing.Empty() &&
		r.Seller == (Seller{}) &&
		len(r.Media.ImageURLs) == 0 &&
		r.Description == ""
}

// Title builds a display line like "2018 Toyota Camry" from whatever vehicle
// fields are present, falling back to the listing id.
func (r *ListingRecord) Title() string {
	parts := make([]string, 0, 3)
	if r.Vehicle.Year != 0 {
		parts = append(parts, fmt.Sprintf("%d", r.Vehicle.Year))
	}
	if r.Vehicle.Make != "" {
		parts = append(parts, r.Vehicle.Make)
	}
	if r.Vehicle.Model != "" {
		parts = append(parts, r.Vehicle.Model)
	}
	if len(parts) == 0 {
		return "Listing " + r.ID
	}
	return strings.Join(parts, " ")
}
