package inventory

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"itinera/pkg/logger"
	"itinera/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testKey = model.InventoryKey{Origin: "LHR", Destination: "JFK", Provider: "earth-air", TravelDate: "2026-11-02"}

func newTestManager(t *testing.T, total int) (Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)}
	m := NewManager(4, logger.Discard(), WithClock(clock.Now))
	m.Provision(testKey, total)
	return m, clock
}

func assertInvariant(t *testing.T, m Manager, key model.InventoryKey) Snapshot {
	t.Helper()
	snap, err := m.Snapshot(context.Background(), key)
	require.NoError(t, err)
	assert.LessOrEqual(t, snap.Committed+snap.Held, snap.Total)
	assert.GreaterOrEqual(t, snap.Held, 0)
	assert.GreaterOrEqual(t, snap.Committed, 0)
	return snap
}

func TestReserve_TwoSeatsScenario(t *testing.T) {
	m, _ := newTestManager(t, 2)
	ctx := context.Background()

	h1, err := m.Reserve(ctx, testKey, "b1", 1, 5*time.Minute)
	require.NoError(t, err)
	_, err = m.Reserve(ctx, testKey, "b2", 1, 5*time.Minute)
	require.NoError(t, err)

	_, err = m.Reserve(ctx, testKey, "b3", 1, 5*time.Minute)
	assert.ErrorIs(t, err, ErrInsufficientInventory)

	require.NoError(t, m.Release(ctx, h1))

	_, err = m.Reserve(ctx, testKey, "b3", 1, 5*time.Minute)
	assert.NoError(t, err)

	snap := assertInvariant(t, m, testKey)
	assert.Equal(t, 2, snap.Held)
	assert.Equal(t, 0, snap.Available)
}

func TestReserve_ThreeConcurrentOnTwoSeats(t *testing.T) {
	m, _ := newTestManager(t, 2)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		granted atomic.Int32
		denied  atomic.Int32
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := m.Reserve(ctx, testKey, "b", 1, 5*time.Minute); err != nil {
				assert.ErrorIs(t, err, ErrInsufficientInventory)
				denied.Add(1)
				return
			}
			granted.Add(1)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(2), granted.Load())
	assert.Equal(t, int32(1), denied.Load())
	assertInvariant(t, m, testKey)
}

func TestReserve_RandomizedQuantitiesNeverExceedCapacity(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		const total = 25
		m, _ := newTestManager(t, total)
		ctx := context.Background()
		rnd := rand.New(rand.NewPCG(seed, seed*31))

		quantities := make([]int, 40)
		for i := range quantities {
			quantities[i] = 1 + rnd.IntN(4)
		}

		var (
			wg      sync.WaitGroup
			granted atomic.Int64
		)
		for _, q := range quantities {
			wg.Add(1)
			go func(q int) {
				defer wg.Done()
				if _, err := m.Reserve(ctx, testKey, "b", q, time.Minute); err == nil {
					granted.Add(int64(q))
				}
			}(q)
		}
		wg.Wait()

		snap := assertInvariant(t, m, testKey)
		assert.Equal(t, int(granted.Load()), snap.Held)
		assert.LessOrEqual(t, snap.Available, 3, "a request of one more seat should have fit")
	}
}

func TestReserve_InvalidQuantity(t *testing.T) {
	m, _ := newTestManager(t, 2)

	_, err := m.Reserve(context.Background(), testKey, "b1", 0, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestProvision(t *testing.T) {
	m := NewManager(2, logger.Discard())

	assert.False(t, m.Known(testKey))
	_, err := m.Reserve(context.Background(), testKey, "b", 1, time.Minute)
	assert.ErrorIs(t, err, ErrUnknownInventory)
	_, err = m.Snapshot(context.Background(), testKey)
	assert.ErrorIs(t, err, ErrUnknownInventory)

	assert.Equal(t, 3, m.Provision(testKey, 3))
	assert.Equal(t, 3, m.Provision(testKey, 100))
	assert.True(t, m.Known(testKey))

	for i := 0; i < 3; i++ {
		_, err := m.Reserve(context.Background(), testKey, "b", 1, time.Minute)
		require.NoError(t, err)
	}
	_, err = m.Reserve(context.Background(), testKey, "b", 1, time.Minute)
	assert.ErrorIs(t, err, ErrInsufficientInventory)
}

func TestProvision_ConcurrentFirstWins(t *testing.T) {
	m := NewManager(2, logger.Discard())

	var wg sync.WaitGroup
	totals := make([]int, 16)
	for i := range totals {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			totals[i] = m.Provision(testKey, i+1)
		}(i)
	}
	wg.Wait()

	for _, total := range totals {
		assert.Equal(t, totals[0], total)
	}
}

func TestCommit(t *testing.T) {
	t.Run("commit is idempotent", func(t *testing.T) {
		m, _ := newTestManager(t, 2)
		ctx := context.Background()
		h, err := m.Reserve(ctx, testKey, "b1", 2, time.Minute)
		require.NoError(t, err)

		require.NoError(t, m.Commit(ctx, h))
		require.NoError(t, m.Commit(ctx, h))

		snap := assertInvariant(t, m, testKey)
		assert.Equal(t, 2, snap.Committed)
		assert.Equal(t, 0, snap.Held)
	})

	t.Run("commit after expiry fails and frees seats", func(t *testing.T) {
		m, clock := newTestManager(t, 2)
		ctx := context.Background()
		h, err := m.Reserve(ctx, testKey, "b1", 2, time.Minute)
		require.NoError(t, err)

		clock.Advance(2 * time.Minute)

		assert.ErrorIs(t, m.Commit(ctx, h), ErrHoldExpired)
		snap := assertInvariant(t, m, testKey)
		assert.Equal(t, 2, snap.Available)
	})

	t.Run("commit of released hold", func(t *testing.T) {
		m, _ := newTestManager(t, 2)
		ctx := context.Background()
		h, err := m.Reserve(ctx, testKey, "b1", 1, time.Minute)
		require.NoError(t, err)
		require.NoError(t, m.Release(ctx, h))

		assert.ErrorIs(t, m.Commit(ctx, h), ErrHoldNotFound)
	})

	t.Run("commit on unknown key", func(t *testing.T) {
		m, _ := newTestManager(t, 2)
		other := testKey
		other.Provider = "tulip"

		assert.ErrorIs(t, m.Commit(context.Background(), &Hold{ID: "x", Key: other, Quantity: 1}), ErrHoldNotFound)
	})
}

func TestRelease(t *testing.T) {
	t.Run("release committed seats", func(t *testing.T) {
		m, _ := newTestManager(t, 2)
		ctx := context.Background()
		h, err := m.Reserve(ctx, testKey, "b1", 2, time.Minute)
		require.NoError(t, err)
		require.NoError(t, m.Commit(ctx, h))

		require.NoError(t, m.Release(ctx, h))

		snap := assertInvariant(t, m, testKey)
		assert.Equal(t, 2, snap.Available)
	})

	t.Run("release twice is a no-op", func(t *testing.T) {
		m, _ := newTestManager(t, 2)
		ctx := context.Background()
		h, err := m.Reserve(ctx, testKey, "b1", 1, time.Minute)
		require.NoError(t, err)

		require.NoError(t, m.Release(ctx, h))
		require.NoError(t, m.Release(ctx, h))

		snap := assertInvariant(t, m, testKey)
		assert.Equal(t, 2, snap.Available)
	})

	t.Run("unknown hold", func(t *testing.T) {
		m, _ := newTestManager(t, 2)

		assert.ErrorIs(t, m.Release(context.Background(), &Hold{ID: "missing", Key: testKey, Quantity: 1}), ErrHoldNotFound)
	})
}

func TestRevert(t *testing.T) {
	m, clock := newTestManager(t, 2)
	ctx := context.Background()
	h, err := m.Reserve(ctx, testKey, "b1", 2, time.Minute)
	require.NoError(t, err)
	require.NoError(t, m.Commit(ctx, h))

	require.NoError(t, m.Revert(ctx, h))

	snap := assertInvariant(t, m, testKey)
	assert.Equal(t, 0, snap.Committed)
	assert.Equal(t, 2, snap.Held)

	clock.Advance(2 * time.Minute)
	snap = assertInvariant(t, m, testKey)
	assert.Equal(t, 2, snap.Available)
}

func TestExpireStale(t *testing.T) {
	m, clock := newTestManager(t, 5)
	ctx := context.Background()
	_, err := m.Reserve(ctx, testKey, "b1", 2, time.Minute)
	require.NoError(t, err)
	_, err = m.Reserve(ctx, testKey, "b2", 1, 10*time.Minute)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, m.ExpireStale(clock.Now()))
	snap := assertInvariant(t, m, testKey)
	assert.Equal(t, 1, snap.Held)
	assert.Equal(t, 4, snap.Available)
}

func TestReserve_ConcurrentNeverOversells(t *testing.T) {
	const (
		total   = 10
		workers = 64
	)
	m, _ := newTestManager(t, total)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
		denied  atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.Reserve(ctx, testKey, "b", 1, time.Minute)
			if err != nil {
				assert.ErrorIs(t, err, ErrInsufficientInventory)
				denied.Add(1)
				return
			}
			granted.Add(1)
			_ = m.Commit(ctx, h)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(total), granted.Load())
	assert.Equal(t, int32(workers-total), denied.Load())
	snap := assertInvariant(t, m, testKey)
	assert.Equal(t, total, snap.Committed)
}

func TestReserve_ConcurrentChurnKeepsInvariant(t *testing.T) {
	m, _ := newTestManager(t, 3)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h, err := m.Reserve(ctx, testKey, "b", 1+(i%2), time.Minute)
				if err != nil {
					continue
				}
				switch j % 3 {
				case 0:
					_ = m.Release(ctx, h)
				case 1:
					_ = m.Commit(ctx, h)
					_ = m.Release(ctx, h)
				default:
					_ = m.Commit(ctx, h)
					_ = m.Revert(ctx, h)
					_ = m.Release(ctx, h)
				}
			}
		}(i)
	}
	wg.Wait()

	snap := assertInvariant(t, m, testKey)
	assert.Equal(t, 3, snap.Available)
}

func TestRestore(t *testing.T) {
	t.Run("restored seats count before provisioning", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)}
		m := NewManager(2, logger.Discard(), WithClock(clock.Now))
		ctx := context.Background()

		sold := &Hold{ID: "sold", Key: testKey, BookingID: "b1", Quantity: 2}
		pending := &Hold{ID: "pending", Key: testKey, BookingID: "b2", Quantity: 1, ExpiresAt: clock.Now().Add(time.Minute)}
		require.NoError(t, m.Restore(sold, true))
		require.NoError(t, m.Restore(pending, false))
		require.NoError(t, m.Restore(sold, true))
		assert.False(t, m.Known(testKey))

		assert.Equal(t, 4, m.Provision(testKey, 4))
		snap := assertInvariant(t, m, testKey)
		assert.Equal(t, 2, snap.Committed)
		assert.Equal(t, 1, snap.Held)
		assert.Equal(t, 1, snap.Available)

		require.NoError(t, m.Commit(ctx, pending))
		assert.Equal(t, 3, assertInvariant(t, m, testKey).Committed)
	})

	t.Run("provider capacity below restored seats", func(t *testing.T) {
		m := NewManager(2, logger.Discard())
		require.NoError(t, m.Restore(&Hold{ID: "sold", Key: testKey, BookingID: "b1", Quantity: 3}, true))

		assert.Equal(t, 3, m.Provision(testKey, 1))
		_, err := m.Reserve(context.Background(), testKey, "b2", 1, time.Minute)
		assert.ErrorIs(t, err, ErrInsufficientInventory)
		assertInvariant(t, m, testKey)
	})

	t.Run("restore onto a provisioned key keeps the invariant", func(t *testing.T) {
		m, _ := newTestManager(t, 1)
		_, err := m.Reserve(context.Background(), testKey, "b1", 1, time.Minute)
		require.NoError(t, err)

		require.NoError(t, m.Restore(&Hold{ID: "sold", Key: testKey, BookingID: "b2", Quantity: 1}, true))

		snap := assertInvariant(t, m, testKey)
		assert.Equal(t, 0, snap.Available)
	})

	t.Run("lapsed hold is not restored", func(t *testing.T) {
		m, clock := newTestManager(t, 2)
		lapsed := &Hold{ID: "old", Key: testKey, BookingID: "b1", Quantity: 1, ExpiresAt: clock.Now().Add(-time.Second)}

		assert.ErrorIs(t, m.Restore(lapsed, false), ErrHoldExpired)
		assert.ErrorIs(t, m.Commit(context.Background(), lapsed), ErrHoldExpired)
		assert.Equal(t, 2, assertInvariant(t, m, testKey).Available)
	})

	t.Run("invalid quantity", func(t *testing.T) {
		m, _ := newTestManager(t, 2)

		assert.ErrorIs(t, m.Restore(&Hold{ID: "x", Key: testKey}, true), ErrInvalidQuantity)
	})
}
