package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/spec-kit/ticket-approval/internal/observability"
	apperrors "github.com/spec-kit/ticket-approval/pkg/util/errorutil"
)

const (
	serialDateLayout = "20060102"
	serialCounterLen = 4
	serialLockPrefix = "ticket:serial:"
)

// ErrLockTimeout is returned by a Locker that gave up waiting.
var ErrLockTimeout = errors.New("lock wait timeout")

// Locker provides mutual exclusion across every process that allocates
// serial numbers. The returned unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// SerialAllocator hands out <YYYYMMDD><NNNN> serial numbers where NNNN
// restarts at 0001 every day.
type SerialAllocator struct {
	locker   Locker
	location *time.Location
}

// NewSerialAllocator builds an allocator. A nil location means UTC.
func NewSerialAllocator(locker Locker, location *time.Location) *SerialAllocator {
	if location == nil {
		location = time.UTC
	}
	if locker == nil {
		locker = NewLocalLocker(0)
	}
	return &SerialAllocator{locker: locker, location: location}
}

// Prefix returns the date part of serials allocated for reference.
func (a *SerialAllocator) Prefix(reference time.Time) string {
	return reference.In(a.location).Format(serialDateLayout)
}

// Reserve takes the lock for reference's day. It must be held until the
// transaction that calls Next has committed.
func (a *SerialAllocator) Reserve(ctx context.Context, reference time.Time) (func(), error) {
	unlock, err := a.locker.Lock(ctx, serialLockPrefix+a.Prefix(reference))
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			observability.SerialConflicts.WithLabelValues("lock_timeout").Inc()
			return nil, apperrors.NewRetryableConflict(err)
		}
		return nil, fmt.Errorf("reserve serial: %w", err)
	}
	return unlock, nil
}

// Next computes the serial following the latest one of reference's day.
func (a *SerialAllocator) Next(ctx context.Context, tx Tx, reference time.Time) (string, error) {
	prefix := a.Prefix(reference)
	latest, err := tx.LatestSerial(ctx, prefix)
	if err != nil {
		return "", err
	}
	last := 0
	if latest != "" {
		last, err = parseCounter(latest, prefix)
		if err != nil {
			return "", err
		}
	}
	return FormatSerial(prefix, last+1), nil
}

// FormatSerial joins a date prefix and a counter.
func FormatSerial(prefix string, counter int) string {
	return fmt.Sprintf("%s%0*d", prefix, serialCounterLen, counter)
}

func parseCounter(serial, prefix string) (int, error) {
	if len(serial) <= len(prefix) || serial[:len(prefix)] != prefix {
		return 0, fmt.Errorf("serial %q does not start with %q", serial, prefix)
	}
	n, err := strconv.Atoi(serial[len(prefix):])
	if err != nil {
		return 0, fmt.Errorf("parse serial %q: %w", serial, err)
	}
	return n, nil
}

// LocalLocker serializes allocations inside a single process. It is only
// safe when one process owns the database.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
	wait  time.Duration
}

// NewLocalLocker builds a locker that gives up after wait. A wait of zero
// or less waits until ctx is done.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{}), wait: wait}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
