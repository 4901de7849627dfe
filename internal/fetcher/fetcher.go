package fetcher

import (
	"context"
	"fmt"
)

// Fetcher retrieves the fully rendered content of a page, i.e. the markup
// after the site's client-side framework has run, not the raw server HTML.
type Fetcher interface {
	// Fetch returns the rendered HTML for the URL. A non-success HTTP
	// response is reported as a *StatusError so callers can classify it.
	Fetch(ctx context.Context, url string) (html string, err error)
}

// StatusError reports a non-success HTTP status observed while loading a
// page. The retry layer uses the code to decide whether to retry.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}
