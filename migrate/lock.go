package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// errLockHeld is the retriable "someone else holds it" signal inside the
// acquisition backoff loop.
var errLockHeld = errors.New("migration lock held by another invocation")

// locker wraps the store's lock row with bounded-backoff acquisition and
// background lease renewal. The holder id is generated per invocation and
// threaded explicitly; there is no process-wide lock state.
type locker struct {
	store    HistoryStore
	holderID string
	lease    time.Duration
}

// acquire attempts the lock with exponential backoff until timeout. Transient
// storage errors are retried alongside contention; everything else is a
// LockTimeoutError on exhaustion.
func (l *locker) acquire(ctx context.Context, timeout time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = timeout

	started := time.Now()
	attempt := func() error {
		acquired, err := l.store.TryAcquireLock(ctx, l.holderID, l.lease)
		if err != nil {
			log.Warnf("Lock acquisition attempt failed: %v", err)
			return err
		}
		if !acquired {
			return errLockHeld
		}
		return nil
	}
	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("acquiring migration lock: %w", ctx.Err())
		}
		return &LockTimeoutError{Elapsed: time.Since(started)}
	}
	return nil
}

// keepAlive renews the lease at a third of its duration until stop is called.
// The returned channel is closed if a renewal fails or is rejected; the
// coordinator must stop issuing statements once it observes that.
func (l *locker) keepAlive(ctx context.Context) (lost <-chan struct{}, stop func()) {
	lostSignal := make(chan struct{})
	done := make(chan struct{})
	var once sync.Once

	interval := l.lease / 3
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				renewed, err := l.store.RenewLock(ctx, l.holderID, l.lease)
				if err != nil || !renewed {
					log.Errorf("Failed to renew migration lock (holder %s): renewed=%t err=%v", l.holderID, renewed, err)
					close(lostSignal)
					return
				}
				log.Debugf("Renewed migration lock lease (holder %s)", l.holderID)
			}
		}
	}()
	return lostSignal, func() { once.Do(func() { close(done) }) }
}

// release is best effort: the caller is usually terminating, so a failure is
// logged rather than propagated. An unreleased lease expires on its own.
func (l *locker) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	released, err := l.store.ReleaseLock(ctx, l.holderID)
	if err != nil {
		log.Warnf("Failed to release migration lock (holder %s), lease will expire on its own: %v", l.holderID, err)
		return
	}
	if !released {
		log.Warnf("Migration lock is held by a different holder; leaving it alone (holder %s)", l.holderID)
	}
}
