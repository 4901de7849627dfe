package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carwatch/internal/domain"
)

// setupTestDB creates a temporary BadgerDB instance for testing.
func setupTestDB(t *testing.T) *BadgerRepository {
	t.Helper()

	testLogger := logrus.New()
	testLogger.SetOutput(os.Stderr)
	testLogger.SetLevel(logrus.ErrorLevel)

	repo, err := NewBadgerRepository(t.TempDir(), testLogger)
	require.NoError(t, err, "Failed to create test BadgerDB repository")

	t.Cleanup(func() {
		assert.NoError(t, repo.Close(), "Failed to close test BadgerDB repository")
	})
	return repo
}

func TestBadgerRepository_SeenMarkers(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	scope := int64(111)

	seen, err := repo.HasSeen(ctx, scope, "12345")
	require.NoError(t, err)
	assert.False(t, seen, "Unknown pair should not be seen")

	require.NoError(t, repo.MarkSeen(ctx, scope, "12345"))

	seen, err = repo.HasSeen(ctx, scope, "12345")
	require.NoError(t, err)
	assert.True(t, seen)

	// Marking again must be a no-op, never an error.
	require.NoError(t, repo.MarkSeen(ctx, scope, "12345"))

	// Different scope, same listing: independent.
	seen, err = repo.HasSeen(ctx, int64(222), "12345")
	require.NoError(t, err)
	assert.False(t, seen, "Seen markers must be scoped")
}

func TestBadgerRepository_PurgeSeenBefore(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	scope := int64(7)

	require.NoError(t, repo.MarkSeen(ctx, scope, "old"))
	require.NoError(t, repo.MarkSeen(ctx, scope, "fresh"))

	// Backdate the "old" marker well past any retention window.
	old := time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339)
	require.NoError(t, repo.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seenKey(scope, "old"), []byte(old))
	}))

	purged, err := repo.PurgeSeenBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	seen, err := repo.HasSeen(ctx, scope, "old")
	require.NoError(t, err)
	assert.False(t, seen, "Marker older than the window should be purged")

	seen, err = repo.HasSeen(ctx, scope, "fresh")
	require.NoError(t, err)
	assert.True(t, seen, "Marker inside the window should be retained")
}

func TestBadgerRepository_PurgeBoundary(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	scope := int64(9)

	require.NoError(t, repo.MarkSeen(ctx, scope, "boundary"))

	// A marker created one second inside the window must survive a purge at
	// the window boundary.
	purged, err := repo.PurgeSeenBefore(ctx, time.Now().Add(-time.Second))
	require.NoError(t, err)
	assert.Zero(t, purged)

	seen, err := repo.HasSeen(ctx, scope, "boundary")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestBadgerRepository_Subscriptions(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	scope := int64(42)

	sub1 := domain.SearchSubscription{
		Scope: scope, ID: "a", QueryURL: "https://example.ge/s?q=1",
		Name: "first", Active: true, CreatedAt: time.Now().Add(-time.Hour),
	}
	sub2 := domain.SearchSubscription{
		Scope: scope, ID: "b", QueryURL: "https://example.ge/s?q=2",
		Name: "second", Active: true, CreatedAt: time.Now(),
	}
	require.NoError(t, repo.SaveSubscription(ctx, sub1))
	require.NoError(t, repo.SaveSubscription(ctx, sub2))

	subs, err := repo.ListSubscriptions(ctx, scope)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "b", subs[0].ID, "Newest subscription should come first")

	// Another scope sees nothing.
	other, err := repo.ListSubscriptions(ctx, int64(43))
	require.NoError(t, err)
	assert.Empty(t, other)

	// Touch advances LastCheckedAt.
	now := time.Now()
	require.NoError(t, repo.TouchSubscription(ctx, scope, "a", now))
	got, err := repo.GetSubscription(ctx, scope, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.WithinDuration(t, now, got.LastCheckedAt, time.Second)

	// Deactivation is a soft delete: the row survives, /list-active skips it.
	require.NoError(t, repo.DeactivateSubscription(ctx, scope, "a"))
	got, err = repo.GetSubscription(ctx, scope, "a")
	require.NoError(t, err)
	require.NotNil(t, got, "Deactivated subscription row must survive")
	assert.False(t, got.Active)

	active, err := repo.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].ID)
}

func TestBadgerRepository_DeactivateUncheckedSince(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	stale := domain.SearchSubscription{
		Scope: 1, ID: "stale", QueryURL: "https://example.ge/s?q=old",
		Active: true, CreatedAt: time.Now().Add(-100 * 24 * time.Hour),
		LastCheckedAt: time.Now().Add(-100 * 24 * time.Hour),
	}
	fresh := domain.SearchSubscription{
		Scope: 1, ID: "fresh", QueryURL: "https://example.ge/s?q=new",
		Active: true, CreatedAt: time.Now(),
		LastCheckedAt: time.Now(),
	}
	require.NoError(t, repo.SaveSubscription(ctx, stale))
	require.NoError(t, repo.SaveSubscription(ctx, fresh))

	n, err := repo.DeactivateUncheckedSince(ctx, time.Now().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := repo.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "fresh", active[0].ID)
}

func TestBadgerRepository_Listings(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	rec := &domain.ListingRecord{ID: "987", URL: "https://example.ge/pr/987"}
	rec.Vehicle.Make = "Toyota"
	rec.Vehicle.Model = "Camry"
	rec.Vehicle.Year = 2018
	rec.Pricing.AmountUSD = 15500
	rec.Pricing.AmountGEL = 42800

	require.NoError(t, repo.SaveListing(ctx, rec))

	got, err := repo.GetListing(ctx, "987")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Toyota", got.Vehicle.Make)
	assert.Equal(t, 15500, got.Pricing.AmountUSD)
	assert.False(t, got.FetchedAt.IsZero(), "FetchedAt should be defaulted on save")

	missing, err := repo.GetListing(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
