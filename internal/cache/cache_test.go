package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)}
}

func TestKindTTL(t *testing.T) {
	assert.Equal(t, 30*time.Second, KindReport.TTL())
	assert.Equal(t, 10*time.Minute, KindInstance.TTL())
	assert.Equal(t, 5*time.Minute, KindWorker.TTL())
	assert.Equal(t, 5*time.Minute, KindWorkflows.TTL())
}

func TestCache_Expiry(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))
	key := Key{Tenant: "acme", Kind: KindReport, ID: "last 7 days"}

	c.Set(key, 42, 30*time.Second)
	v, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	clock.Advance(29 * time.Second)
	_, ok = c.Get(key)
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestCache_TenantIsolation(t *testing.T) {
	c := New()
	a := Key{Tenant: "a", Kind: KindInstance, ID: "i1"}
	b := Key{Tenant: "b", Kind: KindInstance, ID: "i1"}
	c.Set(a, "from a", time.Minute)

	_, ok := c.Get(b)
	assert.False(t, ok)

	c.Set(b, "from b", time.Minute)
	assert.Equal(t, 1, c.InvalidateTenant("a"))
	_, ok = c.Get(a)
	assert.False(t, ok)
	v, ok := c.Get(b)
	assert.True(t, ok)
	assert.Equal(t, "from b", v)
}

func TestCache_EvictsOldest(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now), WithMaxSize(2))
	for i, id := range []string{"1", "2", "3"} {
		c.Set(Key{Tenant: "t", Kind: KindInstance, ID: id}, i, time.Hour)
		clock.Advance(time.Second)
	}
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(Key{Tenant: "t", Kind: KindInstance, ID: "1"})
	assert.False(t, ok)
}

func TestFetch_CachesSuccess(t *testing.T) {
	c := New()
	key := Key{Tenant: "t", Kind: KindWorker, ID: "215"}
	var calls int32
	fn := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "worker", nil
	}

	for i := 0; i < 3; i++ {
		v, err := Fetch(context.Background(), c, key, time.Minute, fn)
		require.NoError(t, err)
		assert.Equal(t, "worker", v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_DoesNotCacheErrors(t *testing.T) {
	c := New()
	key := Key{Tenant: "t", Kind: KindReport, ID: "today"}
	boom := errors.New("boom")
	var calls int32

	_, err := Fetch(context.Background(), c, key, time.Minute, func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	v, err := Fetch(context.Background(), c, key, time.Minute, func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetch_DeduplicatesConcurrentCalls(t *testing.T) {
	c := New()
	key := Key{Tenant: "t", Kind: KindInstance, ID: "i1"}
	release := make(chan struct{})
	var calls int32

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Fetch(context.Background(), c, key, time.Minute, func(context.Context) (string, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return "detail", nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "detail", r)
	}
}

func TestFetch_LateResultAfterClearIsDropped(t *testing.T) {
	c := New()
	key := Key{Tenant: "old", Kind: KindReport, ID: "today"}
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = Fetch(context.Background(), c, key, time.Minute, func(context.Context) (string, error) {
			close(started)
			<-release
			return "stale", nil
		})
	}()

	<-started
	c.Clear()
	close(release)
	<-done

	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
