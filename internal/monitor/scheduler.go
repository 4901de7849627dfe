package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"carwatch/internal/domain"
	"carwatch/internal/extract"
	"carwatch/internal/fetcher"
	"carwatch/internal/notify"
	"carwatch/internal/storage"
)

// Options carries the scheduler's tunables, normally taken from config.
type Options struct {
	PollInterval           time.Duration
	RetryAttempts          int
	RetryBaseDelay         time.Duration
	BatchLimits            notify.Limits
	InterBatchDelay        time.Duration
	SeenRetention          time.Duration
	SubscriptionInactivity time.Duration
	OnDemandTimeout        time.Duration
}

// Scheduler drives the polling cycles: enumerate active subscriptions, fetch
// search results, extract details for unseen listings, batch and dispatch
// notifications, then clean up. One failing subscription never aborts the
// cycle.
type Scheduler struct {
	repo     storage.Repository
	fetch    fetcher.Fetcher
	engine   *extract.Engine
	notifier notify.Notifier
	opts     Options
	retry    *retrier
	cron     *cron.Cron
	log      logrus.FieldLogger
}

// NewScheduler wires the cycle dependencies together.
func NewScheduler(repo storage.Repository, f fetcher.Fetcher, engine *extract.Engine, notifier notify.Notifier, opts Options, logger logrus.FieldLogger) *Scheduler {
	log := logger.WithField("component", "scheduler")
	return &Scheduler{
		repo:     repo,
		fetch:    f,
		engine:   engine,
		notifier: notifier,
		opts:     opts,
		retry:    newRetrier(opts.RetryAttempts, opts.RetryBaseDelay, log),
		cron:     cron.New(),
		log:      log,
	}
}

// Start registers the cycle on a cron schedule and runs one cycle
// immediately so subscribers do not wait a full interval after startup.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.opts.PollInterval)
	_, err := s.cron.AddFunc(spec, func() {
		s.RunCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.log.WithField("spec", spec).Info("Polling scheduler started")

	go s.RunCycle(ctx)
	return nil
}

// Stop halts the cron loop. In-flight cycles finish on their own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info("Polling scheduler stopped")
}

// RunCycle processes every active subscription, then dispatches all
// accumulated notifications grouped per recipient, then cleans up. New
// listings from several subscriptions of the same recipient land in one
// batch sequence.
func (s *Scheduler) RunCycle(ctx context.Context) {
	started := time.Now()
	s.log.Info("Cycle started")

	subs, err := s.repo.ListActiveSubscriptions(ctx)
	if err != nil {
		// Dedup store unreachable: nothing in this cycle can run safely.
		s.log.WithError(err).Error("Cannot enumerate subscriptions, aborting cycle")
		return
	}

	var recipients []int64
	pending := make(map[int64][]*domain.ListingRecord)

	for _, sub := range subs {
		records, err := s.processSubscription(ctx, sub)
		if err != nil {
			// Isolated failure: the subscription stays stale (LastCheckedAt
			// untouched) so the next cycle picks it up sooner. Listings
			// accepted before the failure are already marked seen, so they
			// still go out below.
			s.log.WithError(err).WithFields(logrus.Fields{
				"scope": sub.Scope, "sub_id": sub.ID,
			}).Error("Subscription failed this cycle")
		} else if err := s.repo.TouchSubscription(ctx, sub.Scope, sub.ID, time.Now()); err != nil {
			s.log.WithError(err).Warn("Failed to advance last-checked timestamp")
		}
		if len(records) == 0 {
			continue
		}
		if _, ok := pending[sub.Scope]; !ok {
			recipients = append(recipients, sub.Scope)
		}
		pending[sub.Scope] = append(pending[sub.Scope], records...)
	}

	for _, scope := range recipients {
		s.dispatch(ctx, scope, pending[scope])
	}

	s.cleanup(ctx)
	s.log.WithField("took", time.Since(started).Round(time.Millisecond)).Info("Cycle complete")
}

// RunOnDemand checks one scope's subscriptions right now, hard-bounded by
// the on-demand timeout. On timeout the in-flight fetch is abandoned and its
// listing stays unmarked, so it remains eligible next time; listings already
// accepted before the timeout are dispatched regardless. Returns how many
// new listings were dispatched.
func (s *Scheduler) RunOnDemand(ctx context.Context, scope int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OnDemandTimeout)
	defer cancel()

	subs, err := s.repo.ListSubscriptions(ctx, scope)
	if err != nil {
		return 0, err
	}

	var records []*domain.ListingRecord
	var firstErr error
	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		recs, err := s.processSubscription(ctx, sub)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.log.WithError(err).WithField("sub_id", sub.ID).Warn("On-demand check failed for subscription")
			// Listings accepted before the failure are already marked seen,
			// so they still have to be dispatched.
			records = append(records, recs...)
			continue
		}
		if err := s.repo.TouchSubscription(ctx, sub.Scope, sub.ID, time.Now()); err != nil {
			s.log.WithError(err).Warn("Failed to advance last-checked timestamp")
		}
		records = append(records, recs...)
	}

	if len(records) > 0 {
		// The check budget may already be spent by a timeout; delivery of
		// accepted listings is not bounded by it.
		s.dispatch(context.WithoutCancel(ctx), scope, records)
	}
	return len(records), firstErr
}

// processSubscription fetches one subscription's search results and returns
// the full records of listings not yet surfaced to its scope. Each accepted
// listing is marked seen immediately: "seen" means surfaced for processing,
// not delivered, so a later send failure cannot grow into an endless
// re-fetch loop.
func (s *Scheduler) processSubscription(ctx context.Context, sub domain.SearchSubscription) ([]*domain.ListingRecord, error) {
	log := s.log.WithFields(logrus.Fields{"scope": sub.Scope, "sub_id": sub.ID})

	var searchHTML string
	err := s.retry.do(ctx, "search "+sub.QueryURL, func(ctx context.Context) error {
		var ferr error
		searchHTML, ferr = s.fetch.Fetch(ctx, sub.QueryURL)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch search page: %w", err)
	}

	summaries, err := extract.ParseSummaries(searchHTML, sub.QueryURL)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	log.WithField("summaries", len(summaries)).Debug("Search page parsed")

	var records []*domain.ListingRecord
	for _, sum := range summaries {
		seen, err := s.repo.HasSeen(ctx, sub.Scope, sum.ID)
		if err != nil {
			return records, fmt.Errorf("dedup lookup: %w", err)
		}
		if seen {
			continue
		}

		var detailHTML string
		err = s.retry.do(ctx, "detail "+sum.URL, func(ctx context.Context) error {
			var ferr error
			detailHTML, ferr = s.fetch.Fetch(ctx, sum.URL)
			return ferr
		})
		if err != nil {
			if ctx.Err() != nil {
				// Abandoned (timeout/shutdown): leave the listing unmarked.
				return records, ctx.Err()
			}
			log.WithError(err).WithField("listing_id", sum.ID).Warn("Detail fetch failed, listing skipped")
			continue
		}

		rec, err := s.engine.Extract(detailHTML, sum.ID, sum.URL)
		if err != nil {
			log.WithError(err).WithField("listing_id", sum.ID).Warn("Extraction failed, listing skipped")
			continue
		}
		if rec.Empty() {
			log.WithField("listing_id", sum.ID).Debug("No usable data, listing skipped")
			continue
		}

		if err := s.repo.MarkSeen(ctx, sub.Scope, sum.ID); err != nil {
			return records, fmt.Errorf("mark seen: %w", err)
		}
		if err := s.repo.SaveListing(ctx, rec); err != nil {
			log.WithError(err).WithField("listing_id", sum.ID).Warn("Failed to persist listing record")
		}
		records = append(records, rec)
	}
	return records, nil
}

// dispatch sends one recipient's batches in order with a small delay in
// between. A send failure is never retried (the listings were already
// marked seen when accepted); dropped batches are reported to the recipient
// with a short status notice so the loss does not vanish into the log.
func (s *Scheduler) dispatch(ctx context.Context, scope int64, records []*domain.ListingRecord) {
	batches := notify.BuildBatches(records, s.opts.BatchLimits)
	log := s.log.WithFields(logrus.Fields{"scope": scope, "batches": len(batches)})

	failed := 0
	for i, b := range batches {
		var err error
		if b.PhotoURL != "" {
			err = s.notifier.SendPhoto(ctx, scope, b.PhotoURL, b.Text)
			if err != nil {
				// Some image URLs are rejected by the API; the text still
				// has the listing link.
				err = s.notifier.SendMessage(ctx, scope, b.Text)
			}
		} else {
			err = s.notifier.SendMessage(ctx, scope, b.Text)
		}
		if err != nil {
			failed++
			log.WithError(err).WithField("batch", b.Index).Error("Dispatch failed, batch dropped")
		}
		if i < len(batches)-1 {
			if sleepCtx(ctx, s.opts.InterBatchDelay) != nil {
				return
			}
		}
	}
	if failed > 0 {
		notice := fmt.Sprintf("⚠️ %d of %d notification batches could not be delivered.", failed, len(batches))
		if err := s.notifier.SendMessage(ctx, scope, notice); err != nil {
			log.WithError(err).Error("Delivery-failure notice could not be sent")
		}
	}
	log.WithField("records", len(records)).Info("Notifications dispatched")
}

// cleanup purges expired dedup markers and deactivates long-unchecked
// subscriptions. Runs at the end of every cycle regardless of outcome.
func (s *Scheduler) cleanup(ctx context.Context) {
	now := time.Now()
	if _, err := s.repo.PurgeSeenBefore(ctx, now.Add(-s.opts.SeenRetention)); err != nil {
		s.log.WithError(err).Error("Seen-marker purge failed")
	}
	if _, err := s.repo.DeactivateUncheckedSince(ctx, now.Add(-s.opts.SubscriptionInactivity)); err != nil {
		s.log.WithError(err).Error("Stale-subscription cleanup failed")
	}
}
