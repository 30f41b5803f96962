package appointment

import (
	"context"
	"sync"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

// LocalLocker serialises work per date inside one process. It satisfies
// redisclient.Locker. Dates are taken in ascending order, so two callers
// locking overlapping sets of dates cannot deadlock.
type LocalLocker struct {
	mu    sync.Mutex
	dates map[interval.Date]*dateLock
}

type dateLock struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{dates: make(map[interval.Date]*dateLock)}
}

func (l *LocalLocker) WithDateLock(ctx context.Context, dates []interval.Date, fn func(ctx context.Context) error) error {
	var held []interval.Date
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}()

	for _, d := range interval.UniqueDates(dates) {
		if err := l.acquire(ctx, d); err != nil {
			return err
		}
		held = append(held, d)
	}
	return fn(ctx)
}

func (l *LocalLocker) acquire(ctx context.Context, d interval.Date) error {
	l.mu.Lock()
	dl, ok := l.dates[d]
	if !ok {
		dl = &dateLock{sem: make(chan struct{}, 1)}
		l.dates[d] = dl
	}
	dl.refs++
	l.mu.Unlock()

	select {
	case dl.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(d, dl)
		return ctx.Err()
	}
}

func (l *LocalLocker) release(d interval.Date) {
	l.mu.Lock()
	dl := l.dates[d]
	l.mu.Unlock()

	<-dl.sem
	l.drop(d, dl)
}

func (l *LocalLocker) drop(d interval.Date, dl *dateLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	dl.refs--
	if dl.refs == 0 {
		delete(l.dates, d)
	}
}
