// Package replay detects reuse of single-use token identifiers within their
// validity window.
//
// The ledger-full policy is fail closed: when the ledger is at capacity, an
// unseen identifier is reported as a replay rather than evicting live
// entries. A full ledger under attack must reduce availability, never the
// replay guarantee.
package replay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/insightbridge/insightbridge/pkg/domain"
)

const (
	// DefaultMaxEntries is the default maximum number of ledger entries.
	DefaultMaxEntries = 1_000_000

	// DefaultPurgeInterval is the default interval for expired entry cleanup.
	DefaultPurgeInterval = 5 * time.Minute

	// maxTokenIDLength bounds the accepted identifier length in bytes.
	maxTokenIDLength = 1024

	// minRetention keeps entries for tokens whose expiry is already inside the
	// verifier's drift window observable for at least this long.
	minRetention = time.Second
)

// entry records when a token identifier stops being replayable.
type entry struct {
	expiresAt time.Time
}

// Ledger is an in-memory replay guard backed by sync.Map for atomic
// check-then-insert. Expired entries are purged on a fixed interval by a
// background goroutine, independent of request traffic, so the ledger size
// tracks active token volume rather than cumulative request volume.
type Ledger struct {
	entries    sync.Map
	entryCount atomic.Int64
	maxEntries int64

	stopPurge chan struct{}
	purgeDone chan struct{}
}

// NewLedger creates a ledger with the given capacity and purge interval.
// Non-positive arguments select the defaults.
func NewLedger(maxEntries int, purgeInterval time.Duration) *Ledger {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if purgeInterval <= 0 {
		purgeInterval = DefaultPurgeInterval
	}

	l := &Ledger{
		maxEntries: int64(maxEntries),
		stopPurge:  make(chan struct{}),
		purgeDone:  make(chan struct{}),
	}
	go l.purgeLoop(purgeInterval)
	return l
}

// CheckAndRecord atomically checks whether tokenID was already seen and, if
// not, records it until expiresAt. For two concurrent calls with the same
// unexpired identifier, at most one observes Fresh. A replay never refreshes
// the stored expiry.
func (l *Ledger) CheckAndRecord(_ context.Context, tokenID string, expiresAt time.Time) (domain.ReplayOutcome, error) {
	if tokenID == "" || len(tokenID) > maxTokenIDLength {
		return domain.ReplayOutcomeReplay, domain.ErrMalformedToken
	}

	now := time.Now()
	if until := expiresAt.Sub(now); until < minRetention {
		expiresAt = now.Add(minRetention)
	}
	fresh := &entry{expiresAt: expiresAt}

	existing, loaded := l.entries.LoadOrStore(tokenID, fresh)
	if loaded {
		prev := existing.(*entry)
		if now.Before(prev.expiresAt) {
			return domain.ReplayOutcomeReplay, nil
		}
		// The stored entry expired but has not been purged yet. Replace it
		// atomically; losing the race means someone else recorded first.
		if l.entries.CompareAndSwap(tokenID, existing, fresh) {
			return domain.ReplayOutcomeFresh, nil
		}
		return domain.ReplayOutcomeReplay, nil
	}

	if count := l.entryCount.Add(1); count > l.maxEntries {
		l.entries.Delete(tokenID)
		l.entryCount.Add(-1)
		return domain.ReplayOutcomeReplay, domain.ErrLedgerFull
	}

	return domain.ReplayOutcomeFresh, nil
}

// Size returns the current number of ledger entries.
func (l *Ledger) Size() int {
	return int(l.entryCount.Load())
}

// Close stops the purge goroutine.
func (l *Ledger) Close() error {
	close(l.stopPurge)
	<-l.purgeDone
	return nil
}

func (l *Ledger) purgeLoop(interval time.Duration) {
	defer close(l.purgeDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopPurge:
			return
		case <-ticker.C:
			l.purge()
		}
	}
}

// purge removes all expired entries.
func (l *Ledger) purge() {
	now := time.Now()
	l.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		if !now.Before(e.expiresAt) {
			if l.entries.CompareAndDelete(key, value) {
				l.entryCount.Add(-1)
			}
		}
		return true
	})
}
