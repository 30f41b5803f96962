package appointment

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

func TestLocalLocker_SerialisesSameDate(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithDateLock(ctx, []interval.Date{monday}, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					seen := atomic.LoadInt32(&maxSeen)
					if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Empty(t, l.dates)
}

func TestLocalLocker_OppositeOrderDoesNotDeadlock(t *testing.T) {
	l := NewLocalLocker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		dates := []interval.Date{monday, tuesday}
		if i%2 == 1 {
			dates = []interval.Date{tuesday, monday}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.WithDateLock(ctx, dates, func(context.Context) error { return nil }))
		}()
	}
	wg.Wait()
	assert.Empty(t, l.dates)
}

func TestLocalLocker_ContextCancelWhileWaiting(t *testing.T) {
	l := NewLocalLocker()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.WithDateLock(context.Background(), []interval.Date{monday}, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.WithDateLock(ctx, []interval.Date{monday}, func(context.Context) error {
		t.Fatal("must not run while the date is held")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
	assert.Empty(t, l.dates)
}
