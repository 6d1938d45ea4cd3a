package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Veenoway/on-chain-chess-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(clock *testClock, opts ...StoreOption) *QueueStore {
	base := []StoreOption{
		WithClock(clock.Now),
		WithMatchCleanupDelay(0),
		WithCoinFlip(func() bool { return true }),
	}
	return NewQueueStore(append(base, opts...)...)
}

func TestQueueStore_AddEntryReplacesSameAddress(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)

	require.NoError(t, store.AddEntry(*entry("p1", "0xABC", 180, "1")))
	clock.Advance(time.Second)
	require.NoError(t, store.AddEntry(*entry("p2", "0xabc", 600, "50")))

	assert.Equal(t, 1, store.GetTotalInQueue())

	got, ok := store.FindEntryByAddress("0xAbC")
	require.True(t, ok)
	assert.Equal(t, "p2", got.PlayerID)
	assert.Equal(t, 600, got.Criteria.GameTime)
	assert.Equal(t, clock.Now(), got.JoinedAt)
}

func TestQueueStore_UniquenessUnderManyJoins(t *testing.T) {
	store := newTestStore(newTestClock())

	addresses := []string{"0xa", "0xA", "0xb", " 0xB ", "0xc", "0xa"}
	for i, addr := range addresses {
		// incompatible criteria so nothing pairs
		require.NoError(t, store.AddEntry(*entry(fmt.Sprint(i), addr, 100+i*1000, "1")))
	}

	entries, _ := store.Snapshot()
	seen := make(map[string]bool)
	for _, e := range entries {
		assert.False(t, seen[e.Key()], "duplicate address %s", e.Key())
		seen[e.Key()] = true
	}
	assert.Len(t, entries, 3)
}

func TestQueueStore_PositionFollowsInsertionOrder(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)

	for i, addr := range []string{"0x1", "0x2", "0x3"} {
		require.NoError(t, store.AddEntry(*entry(addr, addr, 100+i*1000, "1")))
		clock.Advance(time.Second)
	}

	assert.Equal(t, 1, store.GetQueuePosition("0x1"))
	assert.Equal(t, 2, store.GetQueuePosition("0x2"))
	assert.Equal(t, 3, store.GetQueuePosition("0x3"))
	assert.Equal(t, 0, store.GetQueuePosition("0x4"))

	require.True(t, store.RemoveEntryByAddress("0x1"))
	assert.Equal(t, 1, store.GetQueuePosition("0x2"))
	assert.Equal(t, 2, store.GetQueuePosition("0x3"))
}

func TestQueueStore_RemoveIsIdempotent(t *testing.T) {
	store := newTestStore(newTestClock())
	require.NoError(t, store.AddEntry(*entry("p", "0xA", 180, "1")))

	assert.True(t, store.RemoveEntryByAddress("0xa"))
	assert.False(t, store.RemoveEntryByAddress("0xa"))
	assert.False(t, store.RemoveEntryByAddress("0xnever"))
}

func TestQueueStore_CapacityAndRejoin(t *testing.T) {
	store := newTestStore(newTestClock(), WithCapacity(2))

	require.NoError(t, store.AddEntry(*entry("1", "0x1", 100, "1")))
	require.NoError(t, store.AddEntry(*entry("2", "0x2", 1000, "1")))

	err := store.AddEntry(*entry("3", "0x3", 2000, "1"))
	assert.ErrorIs(t, err, ErrQueueFull)

	// re-join of a queued address never fails on capacity
	assert.NoError(t, store.AddEntry(*entry("1b", "0x1", 3000, "1")))
	assert.Equal(t, 2, store.GetTotalInQueue())
}

func TestQueueStore_MatchSymmetry(t *testing.T) {
	store := newTestStore(newTestClock())

	res, err := store.MatchOrEnqueue(*entry("a", "0xA", 180, "1"))
	require.NoError(t, err)
	require.Nil(t, res.Match)
	assert.Equal(t, 1, res.Position)

	res, err = store.MatchOrEnqueue(*entry("b", "0xB", 200, "5"))
	require.NoError(t, err)
	require.NotNil(t, res.Match)

	assert.True(t, res.Match.Involves("0xa"))
	assert.True(t, res.Match.Involves("0xb"))
	assert.Equal(t, "a", res.Matched.PlayerID)
	assert.Equal(t, 0, store.GetTotalInQueue())

	for _, addr := range []string{"0xA", "0xB"} {
		m, ok := store.FindMatchByAddress(addr)
		require.True(t, ok)
		assert.Equal(t, res.Match.MatchID, m.MatchID)
	}
}

func TestQueueStore_DelayedCleanupRemovesEntriesEventually(t *testing.T) {
	store := NewQueueStore(WithMatchCleanupDelay(20 * time.Millisecond))

	require.NoError(t, store.AddEntry(*entry("a", "0xA", 180, "1")))
	match, matched, err := store.FindMatch(*entry("b", "0xB", 200, "5"))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "a", matched.PlayerID)

	// still visible until the cleanup fires, but never matchable again
	assert.Equal(t, 1, store.GetTotalInQueue())
	again, _, err := store.FindMatch(*entry("c", "0xC", 180, "1"))
	require.NoError(t, err)
	assert.Nil(t, again)

	require.Eventually(t, func() bool { return store.GetTotalInQueue() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestQueueStore_RejoinAfterMatchSurvivesCleanup(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock, WithMatchCleanupDelay(time.Hour))

	require.NoError(t, store.AddEntry(*entry("a", "0xA", 180, "1")))
	match, _, err := store.FindMatch(*entry("b", "0xB", 200, "5"))
	require.NoError(t, err)
	require.NotNil(t, match)

	clock.Advance(time.Second)
	require.NoError(t, store.AddEntry(*entry("a2", "0xA", 180, "1")))

	store.mu.Lock()
	store.removeMatchedLocked([]string{"0xa", "0xb"}, match.CreatedAt)
	store.mu.Unlock()

	got, ok := store.FindEntryByAddress("0xA")
	require.True(t, ok)
	assert.Equal(t, "a2", got.PlayerID)
}

func TestQueueStore_NoSelfMatch(t *testing.T) {
	store := newTestStore(newTestClock())

	require.NoError(t, store.AddEntry(*entry("a1", "0xAAA", 180, "1")))
	match, _, err := store.FindMatch(*entry("a2", "0xaaa", 180, "1"))
	require.NoError(t, err)
	assert.Nil(t, match)

	res, err := store.MatchOrEnqueue(*entry("a3", "0xAaA", 180, "1"))
	require.NoError(t, err)
	assert.Nil(t, res.Match)
	assert.Equal(t, 1, store.GetTotalInQueue())
}

func TestQueueStore_FIFOPreference(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)

	for _, addr := range []string{"0x1", "0x2", "0x3"} {
		require.NoError(t, store.AddEntry(*entry(addr, addr, 180, "1")))
		clock.Advance(time.Second)
	}
	// 0x2 and 0x3 are compatible with each other too; only the new joiner matches
	res, err := store.MatchOrEnqueue(*entry("new", "0x4", 180, "1"))
	require.NoError(t, err)
	require.NotNil(t, res.Match)
	assert.Equal(t, "0x1", res.Matched.PlayerAddress)
	assert.Equal(t, 2, store.GetTotalInQueue())
}

func TestQueueStore_PlayerInOneMatchOnly(t *testing.T) {
	store := newTestStore(newTestClock(), WithMatchCleanupDelay(time.Hour))

	require.NoError(t, store.AddEntry(*entry("a", "0xA", 180, "1")))
	first, err := store.MatchOrEnqueue(*entry("b", "0xB", 180, "1"))
	require.NoError(t, err)
	require.NotNil(t, first.Match)

	// 0xA's entry lingers until cleanup but is taken
	second, err := store.MatchOrEnqueue(*entry("c", "0xC", 180, "1"))
	require.NoError(t, err)
	assert.Nil(t, second.Match)

	// a matched player joining again gets the existing match back
	again, err := store.MatchOrEnqueue(*entry("b2", "0xb", 180, "1"))
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, first.Match.MatchID, again.Match.MatchID)
	assert.Equal(t, 1, store.TotalMatches())
}

func TestQueueStore_EntryExpiry(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)

	require.NoError(t, store.AddEntry(*entry("a", "0xA", 180, "1")))

	clock.Advance(DefaultEntryTTL)
	assert.Equal(t, 1, store.GetQueuePosition("0xA"), "alive at exactly the TTL")

	clock.Advance(time.Second)
	_, ok := store.FindEntryByAddress("0xA")
	assert.False(t, ok)
	assert.Equal(t, 0, store.GetQueuePosition("0xA"))
	assert.Equal(t, 0, store.GetTotalInQueue())

	// expired entries are not matchable
	match, _, err := store.FindMatch(*entry("b", "0xB", 180, "1"))
	require.NoError(t, err)
	assert.Nil(t, match)

	// and leaving reports nothing was there
	assert.False(t, store.RemoveEntryByAddress("0xA"))
}

func TestQueueStore_MatchExpiry(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)

	require.NoError(t, store.AddEntry(*entry("a", "0xA", 180, "1")))
	res, err := store.MatchOrEnqueue(*entry("b", "0xB", 180, "1"))
	require.NoError(t, err)
	require.NotNil(t, res.Match)

	clock.Advance(DefaultMatchTTL + time.Second)
	_, ok := store.FindMatchByAddress("0xA")
	assert.False(t, ok)
	assert.Equal(t, 0, store.TotalMatches())

	entries, matches := store.CleanupExpired()
	assert.Equal(t, 0, entries)
	assert.Equal(t, 1, matches)
	_, snapMatches := store.Snapshot()
	assert.Empty(t, snapMatches)
}

func TestQueueStore_CleanupExpired(t *testing.T) {
	clock := newTestClock()
	store := newTestStore(clock)

	require.NoError(t, store.AddEntry(*entry("old", "0x1", 100, "1")))
	clock.Advance(100 * time.Second)
	require.NoError(t, store.AddEntry(*entry("new", "0x2", 5000, "1")))
	clock.Advance(30 * time.Second)

	entries, matches := store.CleanupExpired()
	assert.Equal(t, 1, entries)
	assert.Equal(t, 0, matches)

	snap, _ := store.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "new", snap[0].PlayerID)

	// second pass is a no-op
	entries, matches = store.CleanupExpired()
	assert.Zero(t, entries)
	assert.Zero(t, matches)
}

func TestQueueStore_RemoveMatch(t *testing.T) {
	store := newTestStore(newTestClock())
	store.AddMatch(&models.MatchFound{
		MatchID:     "m1",
		WhitePlayer: models.MatchPlayer{Address: "0xA"},
		BlackPlayer: models.MatchPlayer{Address: "0xB"},
	})

	_, ok := store.FindMatchByAddress("0xb")
	require.True(t, ok, "CreatedAt defaults to now")

	assert.True(t, store.RemoveMatch("m1"))
	assert.False(t, store.RemoveMatch("m1"))
}

func TestQueueStore_ConcurrentJoinsPairEveryone(t *testing.T) {
	store := NewQueueStore(WithMatchCleanupDelay(0))

	const players = 200
	var wg sync.WaitGroup
	results := make([]*JoinResult, players)
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := store.MatchOrEnqueue(*entry(fmt.Sprint(i), fmt.Sprintf("0x%03d", i), 180, "1"))
			if assert.NoError(t, err) {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	// all mutually compatible: everyone ends up in exactly one match
	assert.Equal(t, 0, store.GetTotalInQueue())
	assert.Equal(t, players/2, store.TotalMatches())

	_, matches := store.Snapshot()
	owner := make(map[string]string)
	for _, m := range matches {
		white := models.NormalizeAddress(m.WhitePlayer.Address)
		black := models.NormalizeAddress(m.BlackPlayer.Address)
		assert.NotEqual(t, white, black)
		for _, addr := range []string{white, black} {
			prev, dup := owner[addr]
			assert.False(t, dup, "%s in %s and %s", addr, prev, m.MatchID)
			owner[addr] = m.MatchID
		}
	}
	assert.Len(t, owner, players)
}

func TestQueueStore_ConcurrentReadersAndSweeper(t *testing.T) {
	store := NewQueueStore(WithMatchCleanupDelay(time.Millisecond))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					store.GetTotalInQueue()
					store.TotalMatches()
					store.CleanupExpired()
					store.Snapshot()
				}
			}
		}()
	}

	for i := 0; i < 300; i++ {
		addr := fmt.Sprintf("0x%d", i%50)
		_, _ = store.MatchOrEnqueue(*entry(fmt.Sprint(i), addr, 100+(i%7)*100, "1"))
		store.GetQueuePosition(addr)
		if i%5 == 0 {
			store.RemoveEntryByAddress(addr)
		}
	}
	close(stop)
	wg.Wait()

	entries, _ := store.Snapshot()
	seen := make(map[string]bool)
	for _, e := range entries {
		assert.False(t, seen[e.Key()])
		seen[e.Key()] = true
	}
}
