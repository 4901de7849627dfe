package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carwatch/internal/domain"
	"carwatch/internal/extract"
	"carwatch/internal/fetcher"
	"carwatch/internal/notify"
	"carwatch/internal/storage"
)

// fakeFetcher serves canned pages by URL and counts hits.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	hits  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{}, errs: map[string]error{}, hits: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[url]++
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	html, ok := f.pages[url]
	if !ok {
		return "", &fetcher.StatusError{Code: 404, URL: url}
	}
	return html, nil
}

// fakeNotifier records every send and can be told to fail, either always or
// for the next failNext sends only.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	fail     bool
	failNext int
}

func (n *fakeNotifier) SendMessage(_ context.Context, _ int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("telegram: 500")
	}
	if n.failNext > 0 {
		n.failNext--
		return errors.New("telegram: 500")
	}
	n.messages = append(n.messages, text)
	return nil
}

func (n *fakeNotifier) SendPhoto(_ context.Context, chatID int64, _ string, caption string) error {
	return n.SendMessage(context.Background(), chatID, caption)
}

func searchPage(ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<a href="/pr/%s">Listing %s</a>`, id, id)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func detailPage(year int, brand, model string) string {
	return fmt.Sprintf(`<html><body><h1>%d %s %s</h1><div class="price-box">$15,500 ₾42,800</div></body></html>`,
		year, brand, model)
}

func testScheduler(t *testing.T, f fetcher.Fetcher, n *fakeNotifier, tweaks ...func(*Options)) (*Scheduler, storage.Repository) {
	t.Helper()
	repo, err := storage.NewBadgerRepository(t.TempDir(), testLog())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	opts := Options{
		PollInterval:           time.Hour,
		RetryAttempts:          2,
		RetryBaseDelay:         time.Millisecond,
		BatchLimits:            notify.Limits{MaxItems: 10, MaxChars: 4096},
		InterBatchDelay:        time.Millisecond,
		SeenRetention:          24 * time.Hour,
		SubscriptionInactivity: 90 * 24 * time.Hour,
		OnDemandTimeout:        5 * time.Second,
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	return NewScheduler(repo, f, extract.NewEngine(testLog()), n, opts, testLog()), repo
}

func addSub(t *testing.T, repo storage.Repository, scope int64, id, queryURL string) {
	t.Helper()
	require.NoError(t, repo.SaveSubscription(context.Background(), domain.SearchSubscription{
		Scope: scope, ID: id, QueryURL: queryURL, Active: true, CreatedAt: time.Now(),
	}))
}

func TestScheduler_NoListingDispatchedTwice(t *testing.T) {
	f := newFakeFetcher()
	n := &fakeNotifier{}
	s, repo := testScheduler(t, f, n)
	ctx := context.Background()

	const search = "https://example.ge/s?q=camry"
	f.pages[search] = searchPage("111")
	f.pages["https://example.ge/pr/111"] = detailPage(2018, "Toyota", "Camry")
	addSub(t, repo, 42, "a", search)

	s.RunCycle(ctx)
	require.Len(t, n.messages, 1, "First cycle notifies the new listing")
	assert.Contains(t, n.messages[0], "Toyota")

	s.RunCycle(ctx)
	assert.Len(t, n.messages, 1, "Second cycle must not re-dispatch the same listing")
	assert.Equal(t, 1, f.hits["https://example.ge/pr/111"], "Seen listings are not re-fetched")

	// Even an explicit duplicate mark stays a no-op.
	require.NoError(t, repo.MarkSeen(ctx, 42, "111"))
	s.RunCycle(ctx)
	assert.Len(t, n.messages, 1)
}

func TestScheduler_FailingSubscriptionIsIsolated(t *testing.T) {
	f := newFakeFetcher()
	n := &fakeNotifier{}
	s, repo := testScheduler(t, f, n)
	ctx := context.Background()

	const bad = "https://example.ge/s?q=bad"
	const good = "https://example.ge/s?q=good"
	f.errs[bad] = &fetcher.StatusError{Code: 500, URL: bad}
	f.pages[good] = searchPage("222")
	f.pages["https://example.ge/pr/222"] = detailPage(2020, "BMW", "X5")

	addSub(t, repo, 1, "bad", bad)
	addSub(t, repo, 2, "good", good)

	s.RunCycle(ctx)

	require.Len(t, n.messages, 1, "The healthy subscription still dispatches")
	assert.Contains(t, n.messages[0], "BMW")
	assert.Equal(t, 2, f.hits[bad], "Failing fetch was retried up to the attempt limit")

	// The failed subscription stays stale; the healthy one advanced.
	badSub, err := repo.GetSubscription(ctx, 1, "bad")
	require.NoError(t, err)
	assert.True(t, badSub.LastCheckedAt.IsZero(), "Failure leaves the subscription stale")

	goodSub, err := repo.GetSubscription(ctx, 2, "good")
	require.NoError(t, err)
	assert.False(t, goodSub.LastCheckedAt.IsZero())
}

func TestScheduler_ZeroResultsStillAdvancesLastChecked(t *testing.T) {
	f := newFakeFetcher()
	n := &fakeNotifier{}
	s, repo := testScheduler(t, f, n)
	ctx := context.Background()

	const search = "https://example.ge/s?q=rare"
	f.pages[search] = searchPage() // no listings
	addSub(t, repo, 5, "a", search)

	s.RunCycle(ctx)

	assert.Empty(t, n.messages)
	sub, err := repo.GetSubscription(ctx, 5, "a")
	require.NoError(t, err)
	assert.False(t, sub.LastCheckedAt.IsZero(), "Zero results is a successful check")
}

func TestScheduler_SendFailureStillMarksSeen(t *testing.T) {
	f := newFakeFetcher()
	n := &fakeNotifier{fail: true}
	s, repo := testScheduler(t, f, n)
	ctx := context.Background()

	const search = "https://example.ge/s?q=x"
	f.pages[search] = searchPage("333")
	f.pages["https://example.ge/pr/333"] = detailPage(2017, "Audi", "Q7")
	addSub(t, repo, 9, "a", search)

	s.RunCycle(ctx)
	assert.Empty(t, n.messages)

	seen, err := repo.HasSeen(ctx, 9, "333")
	require.NoError(t, err)
	assert.True(t, seen, "A surfaced listing counts as seen even when the send fails")

	// Recovering the notifier must not bring the listing back.
	n.fail = false
	s.RunCycle(ctx)
	assert.Empty(t, n.messages)
}

func TestScheduler_GroupsRecipientAcrossSubscriptions(t *testing.T) {
	f := newFakeFetcher()
	n := &fakeNotifier{}
	s, repo := testScheduler(t, f, n)
	ctx := context.Background()

	const s1 = "https://example.ge/s?q=one"
	const s2 = "https://example.ge/s?q=two"
	f.pages[s1] = searchPage("444")
	f.pages[s2] = searchPage("555")
	f.pages["https://example.ge/pr/444"] = detailPage(2019, "Honda", "CRV")
	f.pages["https://example.ge/pr/555"] = detailPage(2021, "Kia", "Sportage")

	addSub(t, repo, 77, "a", s1)
	addSub(t, repo, 77, "b", s2)

	s.RunCycle(ctx)

	require.Len(t, n.messages, 1, "Both subscriptions' listings land in one batch sequence")
	assert.Contains(t, n.messages[0], "Honda")
	assert.Contains(t, n.messages[0], "Kia")
}

func TestScheduler_EmptyExtractionIsSkippedNotSeen(t *testing.T) {
	f := newFakeFetcher()
	n := &fakeNotifier{}
	s, repo := testScheduler(t, f, n)
	ctx := context.Background()

	const search = "https://example.ge/s?q=y"
	f.pages[search] = searchPage("666")
	f.pages["https://example.ge/pr/666"] = "<html><body><nav>nothing here</nav></body></html>"
	addSub(t, repo, 3, "a", search)

	s.RunCycle(ctx)

	assert.Empty(t, n.messages)
	seen, err := repo.HasSeen(ctx, 3, "666")
	require.NoError(t, err)
	assert.False(t, seen, "Unusable pages stay eligible for a later attempt")
}

// gatedFetcher blocks on one URL until the caller's context expires.
type gatedFetcher struct {
	inner    *fakeFetcher
	blockURL string
}

func (g *gatedFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if url == g.blockURL {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.inner.Fetch(ctx, url)
}

func TestScheduler_TimedOutCheckStillDispatchesAcceptedListings(t *testing.T) {
	f := newFakeFetcher()
	const search = "https://example.ge/s?q=t"
	f.pages[search] = searchPage("111", "222")
	f.pages["https://example.ge/pr/111"] = detailPage(2018, "Toyota", "Camry")
	f.pages["https://example.ge/pr/222"] = detailPage(2020, "BMW", "X5")
	g := &gatedFetcher{inner: f, blockURL: "https://example.ge/pr/222"}

	n := &fakeNotifier{}
	s, repo := testScheduler(t, g, n, func(o *Options) { o.OnDemandTimeout = 200 * time.Millisecond })
	ctx := context.Background()
	addSub(t, repo, 7, "a", search)

	count, err := s.RunOnDemand(ctx, 7)
	require.Error(t, err, "The timeout is surfaced")
	assert.Equal(t, 1, count, "The listing accepted before the timeout is still dispatched")
	require.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0], "Toyota")

	seen, err := repo.HasSeen(ctx, 7, "111")
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = repo.HasSeen(ctx, 7, "222")
	require.NoError(t, err)
	assert.False(t, seen, "The abandoned fetch leaves its listing eligible")

	// The interrupted listing surfaces on the next run.
	g.blockURL = ""
	count, err = s.RunOnDemand(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, n.messages, 2)
	assert.Contains(t, n.messages[1], "BMW")
}

func TestScheduler_AbortedCycleStillDispatchesAcceptedListings(t *testing.T) {
	f := newFakeFetcher()
	const search = "https://example.ge/s?q=c"
	f.pages[search] = searchPage("111", "222")
	f.pages["https://example.ge/pr/111"] = detailPage(2018, "Toyota", "Camry")
	f.pages["https://example.ge/pr/222"] = detailPage(2020, "BMW", "X5")
	g := &gatedFetcher{inner: f, blockURL: "https://example.ge/pr/222"}

	n := &fakeNotifier{}
	s, repo := testScheduler(t, g, n)
	addSub(t, repo, 13, "a", search)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s.RunCycle(ctx)

	require.Len(t, n.messages, 1, "The listing accepted before the abort is still dispatched")
	assert.Contains(t, n.messages[0], "Toyota")

	seen, err := repo.HasSeen(context.Background(), 13, "222")
	require.NoError(t, err)
	assert.False(t, seen)

	sub, err := repo.GetSubscription(context.Background(), 13, "a")
	require.NoError(t, err)
	assert.True(t, sub.LastCheckedAt.IsZero(), "A failed subscription stays stale")
}

func TestScheduler_DispatchFailureNotifiesRecipient(t *testing.T) {
	f := newFakeFetcher()
	n := &fakeNotifier{failNext: 1}
	s, repo := testScheduler(t, f, n, func(o *Options) {
		o.BatchLimits = notify.Limits{MaxItems: 1, MaxChars: 4096}
	})
	ctx := context.Background()

	const search = "https://example.ge/s?q=d"
	f.pages[search] = searchPage("111", "222")
	f.pages["https://example.ge/pr/111"] = detailPage(2018, "Toyota", "Camry")
	f.pages["https://example.ge/pr/222"] = detailPage(2020, "BMW", "X5")
	addSub(t, repo, 21, "a", search)

	s.RunCycle(ctx)

	// First batch dropped, second delivered, then the status notice.
	require.Len(t, n.messages, 2)
	assert.Contains(t, n.messages[0], "BMW")
	assert.Contains(t, n.messages[1], "1 of 2 notification batches could not be delivered")
}

func TestScheduler_RunOnDemand(t *testing.T) {
	f := newFakeFetcher()
	n := &fakeNotifier{}
	s, repo := testScheduler(t, f, n)
	ctx := context.Background()

	const search = "https://example.ge/s?q=z"
	f.pages[search] = searchPage("888")
	f.pages["https://example.ge/pr/888"] = detailPage(2022, "Mazda", "CX5")
	addSub(t, repo, 11, "a", search)

	count, err := s.RunOnDemand(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, n.messages, 1)

	// Second on-demand run finds nothing new.
	count, err = s.RunOnDemand(ctx, 11)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, n.messages, 1)
}
