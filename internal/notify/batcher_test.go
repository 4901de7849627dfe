package notify

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carwatch/internal/domain"
)

func testLimits() Limits {
	return Limits{MaxItems: 10, MaxChars: 4096}
}

func makeRecords(n int) []*domain.ListingRecord {
	recs := make([]*domain.ListingRecord, 0, n)
	for i := 0; i < n; i++ {
		r := &domain.ListingRecord{
			ID:  fmt.Sprintf("%d", 1000+i),
			URL: fmt.Sprintf("https://example.ge/pr/%d", 1000+i),
		}
		r.Vehicle.Year = 2015 + i%10
		r.Vehicle.Make = "Toyota"
		r.Vehicle.Model = "Camry Hybrid LE"
		r.Pricing.AmountUSD = 15500 + i*100
		r.Pricing.AmountGEL = 42800 + i*270
		r.Seller.Location = "თბილისი"
		recs = append(recs, r)
	}
	return recs
}

func TestBuildBatches_SplitSizes(t *testing.T) {
	batches := BuildBatches(makeRecords(11), testLimits())
	require.Len(t, batches, 2, "11 records with a 10-item cap make 2 batches")
	assert.Equal(t, 10, strings.Count(batches[0].Text, "• "))
	assert.Equal(t, 1, strings.Count(batches[1].Text, "• "))

	batches = BuildBatches(makeRecords(30), testLimits())
	require.Len(t, batches, 3)
	for i, b := range batches {
		assert.Equal(t, 10, strings.Count(b.Text, "• "), "batch %d", i+1)
		assert.LessOrEqual(t, len(b.Text), 4096, "batch %d stays under the message bound", i+1)
		assert.Equal(t, i+1, b.Index)
		assert.Equal(t, 3, b.Total)
		assert.Contains(t, b.Text, fmt.Sprintf("(batch %d/3)", i+1))
	}
}

func TestBuildBatches_SingleUsesDetailedTemplate(t *testing.T) {
	rec := makeRecords(1)[0]
	rec.Condition.Mileage = 92000
	rec.Media.ImageURLs = []string{"https://img.example.ge/1.jpg"}

	batches := BuildBatches([]*domain.ListingRecord{rec}, testLimits())
	require.Len(t, batches, 1)

	b := batches[0]
	assert.Equal(t, 1, b.Index)
	assert.Equal(t, 1, b.Total)
	assert.Equal(t, "https://img.example.ge/1.jpg", b.PhotoURL)
	assert.Contains(t, b.Text, "*2015 Toyota Camry Hybrid LE*")
	assert.Contains(t, b.Text, "Mileage: 92000 km")
	assert.Contains(t, b.Text, "[Open listing](https://example.ge/pr/1000)")
	assert.NotContains(t, b.Text, "batch", "Single batch carries no batch header")
}

func TestBuildBatches_NoHeaderForSingleMultiItemBatch(t *testing.T) {
	batches := BuildBatches(makeRecords(3), testLimits())
	require.Len(t, batches, 1)
	assert.Contains(t, batches[0].Text, "3 new listings")
	assert.NotContains(t, batches[0].Text, "batch 1")
}

func TestBuildBatches_OrderPreserved(t *testing.T) {
	batches := BuildBatches(makeRecords(12), testLimits())
	require.Len(t, batches, 2)
	assert.Contains(t, batches[0].Text, "example.ge/pr/1000")
	assert.Contains(t, batches[0].Text, "example.ge/pr/1009")
	assert.Contains(t, batches[1].Text, "example.ge/pr/1010")
	assert.Contains(t, batches[1].Text, "example.ge/pr/1011")
	assert.NotContains(t, batches[1].Text, "pr/1000")
}

func TestBuildBatches_Empty(t *testing.T) {
	assert.Nil(t, BuildBatches(nil, testLimits()))
}
