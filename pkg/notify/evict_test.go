package notify_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskbeacon/taskbeacon/pkg/notify"
)

// tickingClock hands out strictly increasing times, one millisecond apart.
func tickingClock() func() time.Time {
	base := time.Now()
	var n int
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	}
}

func fillStore(s *notify.Store, count int) {
	for i := 0; i < count; i++ {
		s.Upsert(fmt.Sprintf("proj-%04d", i), "msg", notify.StatusCompleted, nil)
	}
}

func TestStore_CleanupCapacity(t *testing.T) {
	t.Run("no-op under capacity", func(t *testing.T) {
		s, storage := newTestStore(t,
			notify.WithMaxCount(100),
			notify.WithClock(tickingClock()),
			notify.WithDebounce(time.Hour),
		)
		fillStore(s, 50)

		removed, err := s.Cleanup(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, removed)
		assert.Equal(t, 0, storage.writeCount())
	})

	t.Run("small excess takes the linear path", func(t *testing.T) {
		s, _ := newTestStore(t, notify.WithMaxCount(100), notify.WithClock(tickingClock()))
		fillStore(s, 105)

		removed, err := s.Cleanup(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, removed)
		assert.Equal(t, 100, s.Stats().Count)

		// The five oldest subjects are gone, everything newer remains.
		for i := 0; i < 5; i++ {
			_, ok := s.Get(fmt.Sprintf("proj-%04d", i))
			assert.False(t, ok, "proj-%04d should be evicted", i)
		}
		for i := 5; i < 105; i++ {
			_, ok := s.Get(fmt.Sprintf("proj-%04d", i))
			assert.True(t, ok, "proj-%04d should survive", i)
		}
	})

	t.Run("large excess takes the heap path", func(t *testing.T) {
		s, _ := newTestStore(t, notify.WithMaxCount(100), notify.WithClock(tickingClock()))
		fillStore(s, 150)

		removed, err := s.Cleanup(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 50, removed)
		assert.Equal(t, 100, s.Stats().Count)

		for i := 0; i < 50; i++ {
			_, ok := s.Get(fmt.Sprintf("proj-%04d", i))
			assert.False(t, ok, "proj-%04d should be evicted", i)
		}
		for i := 50; i < 150; i++ {
			_, ok := s.Get(fmt.Sprintf("proj-%04d", i))
			assert.True(t, ok, "proj-%04d should survive", i)
		}
	})

	t.Run("excess larger than capacity selects survivors instead", func(t *testing.T) {
		s, _ := newTestStore(t, notify.WithMaxCount(50), notify.WithClock(tickingClock()))
		fillStore(s, 200)

		removed, err := s.Cleanup(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 150, removed)
		assert.Equal(t, 50, s.Stats().Count)

		for i := 150; i < 200; i++ {
			_, ok := s.Get(fmt.Sprintf("proj-%04d", i))
			assert.True(t, ok, "proj-%04d should survive", i)
		}
	})

	t.Run("equal timestamps break ties by insertion order", func(t *testing.T) {
		frozen := time.Now()
		s, _ := newTestStore(t,
			notify.WithMaxCount(3),
			notify.WithClock(func() time.Time { return frozen }),
		)
		for i := 0; i < 5; i++ {
			s.Upsert(fmt.Sprintf("proj-%d", i), "msg", notify.StatusCompleted, nil)
		}

		removed, err := s.Cleanup(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		// Earliest writes lose.
		for _, subject := range []string{"proj-0", "proj-1"} {
			_, ok := s.Get(subject)
			assert.False(t, ok, "%s should be evicted", subject)
		}
		for _, subject := range []string{"proj-2", "proj-3", "proj-4"} {
			_, ok := s.Get(subject)
			assert.True(t, ok, "%s should survive", subject)
		}
	})
}

func TestStore_CleanupTTL(t *testing.T) {
	t.Run("expired records removed first", func(t *testing.T) {
		now := time.Now()
		current := now
		s, _ := newTestStore(t,
			notify.WithTTL(time.Hour),
			notify.WithClock(func() time.Time { return current }),
		)

		s.Upsert("stale", "old", notify.StatusCompleted, nil)
		current = now.Add(30 * time.Minute)
		s.Upsert("fresh", "new", notify.StatusCompleted, nil)

		current = now.Add(61 * time.Minute)
		removed, err := s.Cleanup(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, ok := s.Get("stale")
		assert.False(t, ok)
		_, ok = s.Get("fresh")
		assert.True(t, ok)
	})

	t.Run("no record survives past ttl", func(t *testing.T) {
		now := time.Now()
		current := now
		s, _ := newTestStore(t,
			notify.WithTTL(time.Hour),
			notify.WithClock(func() time.Time { return current }),
		)
		fillStore(s, 20)

		current = now.Add(2 * time.Hour)
		removed, err := s.Cleanup(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 20, removed)
		assert.Equal(t, 0, s.Stats().Count)
	})

	t.Run("cleanup persists removals", func(t *testing.T) {
		now := time.Now()
		current := now
		s, storage := newTestStore(t,
			notify.WithTTL(time.Hour),
			notify.WithClock(func() time.Time { return current }),
		)
		s.Upsert("stale", "old", notify.StatusCompleted, nil)

		current = now.Add(2 * time.Hour)
		_, err := s.Cleanup(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, storage.writeCount(), 1)
	})
}

func TestStore_CleanupUpdatesUnreadIndex(t *testing.T) {
	now := time.Now()
	current := now
	s, _ := newTestStore(t,
		notify.WithTTL(time.Hour),
		notify.WithClock(func() time.Time { return current }),
	)
	s.Upsert("stale", "done", notify.StatusCompleted, nil)
	require.Len(t, s.GetUnread(""), 1)

	current = now.Add(2 * time.Hour)
	_, err := s.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.GetUnread(""))
}
