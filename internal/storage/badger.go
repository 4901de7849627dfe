package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"carwatch/internal/domain"
)

// BadgerRepository implements Repository on an embedded BadgerDB.
//
// Keyspaces:
//
//	sub:{scope}:{id}        -> SearchSubscription JSON
//	seen:{scope}:{listing}  -> RFC 3339 creation timestamp (UTC)
//	listing:{id}            -> ListingRecord JSON
//
// Every write is a single-key idempotent operation, so the two loops
// (background cycles and on-demand checks) can share the store without any
// cross-row transactional coordination.
type BadgerRepository struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// NewBadgerRepository opens the database at the given path.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}

	return &BadgerRepository{
		db:  db,
		log: logger.WithField("component", "repository"),
	}, nil
}

// Close closes the underlying database.
func (r *BadgerRepository) Close() error {
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	return nil
}

func subKey(scope int64, id string) []byte {
	return []byte(fmt.Sprintf("sub:%d:%s", scope, id))
}

func subScopePrefix(scope int64) []byte {
	return []byte(fmt.Sprintf("sub:%d:", scope))
}

func seenKey(scope int64, listingID string) []byte {
	return []byte(fmt.Sprintf("seen:%d:%s", scope, listingID))
}

func listingKey(listingID string) []byte {
	return []byte("listing:" + listingID)
}

var (
	subPrefix  = []byte("sub:")
	seenPrefix = []byte("seen:")
)

// --- Subscriptions ---

func (r *BadgerRepository) SaveSubscription(ctx context.Context, sub domain.SearchSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(subKey(sub.Scope, sub.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	r.log.WithFields(logrus.Fields{"scope": sub.Scope, "sub_id": sub.ID}).Debug("Subscription saved")
	return nil
}

func (r *BadgerRepository) GetSubscription(ctx context.Context, scope int64, id string) (*domain.SearchSubscription, error) {
	var sub *domain.SearchSubscription
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(subKey(scope, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var s domain.SearchSubscription
			if err := json.Unmarshal(val, &s); err != nil {
				return fmt.Errorf("failed to unmarshal subscription: %w", err)
			}
			sub = &s
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %d/%s: %w", scope, id, err)
	}
	return sub, nil
}

func (r *BadgerRepository) ListSubscriptions(ctx context.Context, scope int64) ([]domain.SearchSubscription, error) {
	subs, err := r.scanSubscriptions(subScopePrefix(scope), nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
	return subs, nil
}

func (r *BadgerRepository) ListActiveSubscriptions(ctx context.Context) ([]domain.SearchSubscription, error) {
	return r.scanSubscriptions(subPrefix, func(s *domain.SearchSubscription) bool {
		return s.Active
	})
}

func (r *BadgerRepository) scanSubscriptions(prefix []byte, keep func(*domain.SearchSubscription) bool) ([]domain.SearchSubscription, error) {
	var subs []domain.SearchSubscription
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var s domain.SearchSubscription
				if err := json.Unmarshal(val, &s); err != nil {
					return fmt.Errorf("failed to unmarshal subscription for key %s: %w", string(item.Key()), err)
				}
				if keep == nil || keep(&s) {
					subs = append(subs, s)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscriptions: %w", err)
	}
	return subs, nil
}

func (r *BadgerRepository) TouchSubscription(ctx context.Context, scope int64, id string, at time.Time) error {
	return r.updateSubscription(ctx, scope, id, func(s *domain.SearchSubscription) {
		s.LastCheckedAt = at.UTC()
	})
}

func (r *BadgerRepository) DeactivateSubscription(ctx context.Context, scope int64, id string) error {
	return r.updateSubscription(ctx, scope, id, func(s *domain.SearchSubscription) {
		s.Active = false
	})
}

func (r *BadgerRepository) updateSubscription(ctx context.Context, scope int64, id string, mutate func(*domain.SearchSubscription)) error {
	sub, err := r.GetSubscription(ctx, scope, id)
	if err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("subscription %d/%s not found", scope, id)
	}
	mutate(sub)
	return r.SaveSubscription(ctx, *sub)
}

func (r *BadgerRepository) DeactivateUncheckedSince(ctx context.Context, cutoff time.Time) (int, error) {
	subs, err := r.ListActiveSubscriptions(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, s := range subs {
		// Never-checked subscriptions are judged by creation time instead.
		ref := s.LastCheckedAt
		if ref.IsZero() {
			ref = s.CreatedAt
		}
		if ref.Before(cutoff) {
			if err := r.DeactivateSubscription(ctx, s.Scope, s.ID); err != nil {
				return count, err
			}
			r.log.WithFields(logrus.Fields{"scope": s.Scope, "sub_id": s.ID}).Info("Deactivated stale subscription")
			count++
		}
	}
	return count, nil
}

// --- Seen markers ---

func (r *BadgerRepository) HasSeen(ctx context.Context, scope int64, listingID string) (bool, error) {
	seen := false
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(seenKey(scope, listingID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		seen = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check seen marker: %w", err)
	}
	return seen, nil
}

func (r *BadgerRepository) MarkSeen(ctx context.Context, scope int64, listingID string) error {
	key := seenKey(scope, listingID)
	err := r.db.Update(func(txn *badger.Txn) error {
		// Idempotent: an existing marker keeps its original timestamp so a
		// repeated mark never extends retention.
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return fmt.Errorf("failed to mark seen: %w", err)
	}
	return nil
}

func (r *BadgerRepository) PurgeSeenBefore(ctx context.Context, cutoff time.Time) (int, error) {
	// Timestamps are stored as RFC 3339 UTC strings, so string order is
	// chronological order.
	cutoffStr := cutoff.UTC().Format(time.RFC3339)

	var stale [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(seenPrefix); it.ValidForPrefix(seenPrefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				if string(val) < cutoffStr {
					stale = append(stale, item.KeyCopy(nil))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan seen markers: %w", err)
	}

	for _, key := range stale {
		err := r.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			return 0, fmt.Errorf("failed to purge seen marker %s: %w", string(key), err)
		}
	}
	if len(stale) > 0 {
		r.log.WithField("purged", len(stale)).Info("Purged expired seen markers")
	}
	return len(stale), nil
}

// --- Listing records ---

func (r *BadgerRepository) SaveListing(ctx context.Context, rec *domain.ListingRecord) error {
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(listingKey(rec.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save listing %s: %w", rec.ID, err)
	}
	return nil
}

func (r *BadgerRepository) GetListing(ctx context.Context, listingID string) (*domain.ListingRecord, error) {
	var rec *domain.ListingRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(listingKey(listingID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var l domain.ListingRecord
			if err := json.Unmarshal(val, &l); err != nil {
				return fmt.Errorf("failed to unmarshal listing: %w", err)
			}
			rec = &l
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %s: %w", listingID, err)
	}
	return rec, nil
}

// --- BadgerDB internal logger ---

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
