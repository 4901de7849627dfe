package storage

import (
	"context"
	"time"

	"carwatch/internal/domain"
)

// Repository defines the data-store contract: subscription rows, seen
// markers (the dedup store) and full listing records. The interface keeps
// the scheduler and bot independent of the backing store.
type Repository interface {
	// SaveSubscription stores a new subscription or updates an existing one.
	// (Scope, ID) is the unique key.
	SaveSubscription(ctx context.Context, sub domain.SearchSubscription) error

	// GetSubscription returns the subscription or nil when absent.
	GetSubscription(ctx context.Context, scope int64, id string) (*domain.SearchSubscription, error)

	// ListSubscriptions returns all of a scope's subscriptions, newest first.
	ListSubscriptions(ctx context.Context, scope int64) ([]domain.SearchSubscription, error)

	// ListActiveSubscriptions returns every active subscription across all
	// scopes, in stable enumeration order.
	ListActiveSubscriptions(ctx context.Context) ([]domain.SearchSubscription, error)

	// TouchSubscription advances LastCheckedAt.
	TouchSubscription(ctx context.Context, scope int64, id string, at time.Time) error

	// DeactivateSubscription soft-deletes: the row stays, Active goes false.
	DeactivateSubscription(ctx context.Context, scope int64, id string) error

	// DeactivateUncheckedSince deactivates active subscriptions whose
	// LastCheckedAt is older than cutoff. Returns how many were touched.
	DeactivateUncheckedSince(ctx context.Context, cutoff time.Time) (int, error)

	// HasSeen reports whether the (scope, listing) pair was already surfaced.
	HasSeen(ctx context.Context, scope int64, listingID string) (bool, error)

	// MarkSeen records the pair. Idempotent: marking an already-seen pair is
	// a no-op, never an error.
	MarkSeen(ctx context.Context, scope int64, listingID string) error

	// PurgeSeenBefore deletes markers created before cutoff. Returns how
	// many were removed.
	PurgeSeenBefore(ctx context.Context, cutoff time.Time) (int, error)

	// SaveListing persists a full listing record keyed by listing id.
	SaveListing(ctx context.Context, rec *domain.ListingRecord) error

	// GetListing returns the stored record or nil when absent.
	GetListing(ctx context.Context, listingID string) (*domain.ListingRecord, error)

	// Close gracefully shuts down the repository.
	Close() error
}
