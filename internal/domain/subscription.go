package domain

import "time"

// SearchSubscription is a saved search owned by one notification scope
// (a Telegram chat). Subscriptions are deactivated rather than deleted so
// the chat's history of searches survives.
type SearchSubscription struct {
	// Scope is the Telegram chat id the subscription belongs to. It is also
	// the deduplication scope: a listing is notified at most once per scope.
	Scope int64 `json:"scope"`

	// ID is unique within the scope.
	ID string `json:"id"`

	// QueryURL is the search-results URL polled each cycle, with the filter
	// criteria encoded in its query parameters.
	QueryURL string `json:"query_url"`

	// Name is an optional human label shown by /list.
	Name string `json:"name,omitempty"`

	Active bool `json:"active"`

	// LastCheckedAt advances only after a cycle processed this subscription
	// without error (zero new listings still counts). A failed subscription
	// stays stale so the next cycle picks it up sooner.
	LastCheckedAt time.Time `json:"last_checked_at"`

	CreatedAt time.Time `json:"created_at"`
}
