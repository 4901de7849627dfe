package extract

import "carwatch/internal/domain"

// fieldMerger copies one field from src to dst when dst's slot is still
// empty. Returns true when it wrote.
type fieldMerger struct {
	name  string
	merge func(dst, src *domain.ListingRecord) bool
}

func textField(name string, get func(*domain.ListingRecord) *string) fieldMerger {
	return fieldMerger{name, func(dst, src *domain.ListingRecord) bool {
		d, s := get(dst), get(src)
		if *d == "" && *s != "" {
			*d = *s
			return true
		}
		return false
	}}
}

func intField(name string, get func(*domain.ListingRecord) *int) fieldMerger {
	return fieldMerger{name, func(dst, src *domain.ListingRecord) bool {
		d, s := get(dst), get(src)
		if *d == 0 && *s != 0 {
			*d = *s
			return true
		}
		return false
	}}
}

func boolField(name string, get func(*domain.ListingRecord) *bool) fieldMerger {
	return fieldMerger{name, func(dst, src *domain.ListingRecord) bool {
		d, s := get(dst), get(src)
		if !*d && *s {
			*d = *s
			return true
		}
		return false
	}}
}

// fieldMergers is the authoritative field list for the fill-if-absent
// policy. Pricing and media merge as whole groups: a strategy either
// resolved a price or it did not, and partial image lists are not mixed
// across strategies.
var fieldMergers = []fieldMerger{
	textField("vehicle.make", func(r *domain.ListingRecord) *string { return &r.Vehicle.Make }),
	textField("vehicle.model", func(r *domain.ListingRecord) *string { return &r.Vehicle.Model }),
	intField("vehicle.year", func(r *domain.ListingRecord) *int { return &r.Vehicle.Year }),
	textField("vehicle.body_type", func(r *domain.ListingRecord) *string { return &r.Vehicle.BodyType }),
	textField("vehicle.color", func(r *domain.ListingRecord) *string { return &r.Vehicle.Color }),
	intField("vehicle.doors", func(r *domain.ListingRecord) *int { return &r.Vehicle.Doors }),
	intField("vehicle.seats", func(r *domain.ListingRecord) *int { return &r.Vehicle.Seats }),
	textField("vehicle.drive", func(r *domain.ListingRecord) *string { return &r.Vehicle.Drive }),
	textField("vehicle.wheel", func(r *domain.ListingRecord) *string { return &r.Vehicle.Wheel }),

	textField("engine.fuel_type", func(r *domain.ListingRecord) *string { return &r.Engine.FuelType }),
	textField("engine.transmission", func(r *domain.ListingRecord) *string { return &r.Engine.Transmission }),
	intField("engine.power", func(r *domain.ListingRecord) *int { return &r.Engine.Power }),
	intField("engine.cylinders", func(r *domain.ListingRecord) *int { return &r.Engine.Cylinders }),
	{"engine.displacement", func(dst, src *domain.ListingRecord) bool {
		if dst.Engine.Displacement == 0 && src.Engine.Displacement != 0 {
			dst.Engine.Displacement = src.Engine.Displacement
			return true
		}
		return false
	}},

	intField("condition.mileage", func(r *domain.ListingRecord) *int { return &r.Condition.Mileage }),
	boolField("condition.customs_cleared", func(r *domain.ListingRecord) *bool { return &r.Condition.CustomsCleared }),
	boolField("condition.inspected", func(r *domain.ListingRecord) *bool { return &r.Condition.Inspected }),

	{"pricing", func(dst, src *domain.ListingRecord) bool {
		if dst.Pricing.Empty() && !src.Pricing.Empty() {
			dst.Pricing = src.Pricing
			return true
		}
		return false
	}},

	textField("seller.name", func(r *domain.ListingRecord) *string { return &r.Seller.Name }),
	textField("seller.location", func(r *domain.ListingRecord) *string { return &r.Seller.Location }),
	boolField("seller.is_dealer", func(r *domain.ListingRecord) *bool { return &r.Seller.IsDealer }),

	{"media.image_urls", func(dst, src *domain.ListingRecord) bool {
		if len(dst.Media.ImageURLs) == 0 && len(src.Media.ImageURLs) > 0 {
			dst.Media.ImageURLs = src.Media.ImageURLs
			return true
		}
		return false
	}},

	textField("posted_date", func(r *domain.ListingRecord) *string { return &r.PostedDate }),
	textField("description", func(r *domain.ListingRecord) *string { return &r.Description }),
}

// mergeFillAbsent copies src fields into dst where dst is still empty and
// returns the names of the fields written. This is the single place the
// merge policy lives; strategies never write into the accumulated record.
func mergeFillAbsent(dst, src *domain.ListingRecord) []string {
	var filled []string
	for _, m := range fieldMergers {
		if m.merge(dst, src) {
			filled = append(filled, m.name)
		}
	}
	return filled
}
