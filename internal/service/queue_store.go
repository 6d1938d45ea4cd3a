package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/Veenoway/on-chain-chess-sub001/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultQueueCapacity     = 1000
	DefaultEntryTTL          = 120 * time.Second
	DefaultMatchTTL          = 180 * time.Second
	DefaultMatchCleanupDelay = time.Second
)

// QueueStore owns the waiting list and the confirmed matches.
// Every read and write goes through mu; nothing else touches either slice.
type QueueStore struct {
	mu      sync.RWMutex
	entries []*models.QueueEntry // arrival order, oldest first
	matches []*models.MatchFound // creation order

	capacity     int
	entryTTL     time.Duration
	matchTTL     time.Duration
	cleanupDelay time.Duration
	tolerance    Tolerance
	coin         CoinFlip
	now          func() time.Time
	logger       *zap.Logger
}

type StoreOption func(*QueueStore)

// WithCapacity maximum number of waiting entries; 0 disables the limit
func WithCapacity(capacity int) StoreOption {
	return func(s *QueueStore) { s.capacity = capacity }
}

func WithEntryTTL(ttl time.Duration) StoreOption {
	return func(s *QueueStore) { s.entryTTL = ttl }
}

func WithMatchTTL(ttl time.Duration) StoreOption {
	return func(s *QueueStore) { s.matchTTL = ttl }
}

// WithMatchCleanupDelay delay before matched entries leave the waiting list.
// Zero removes them synchronously inside FindMatch.
func WithMatchCleanupDelay(delay time.Duration) StoreOption {
	return func(s *QueueStore) { s.cleanupDelay = delay }
}

func WithTolerance(t Tolerance) StoreOption {
	return func(s *QueueStore) { s.tolerance = t }
}

func WithCoinFlip(coin CoinFlip) StoreOption {
	return func(s *QueueStore) { s.coin = coin }
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *QueueStore) { s.now = now }
}

func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *QueueStore) { s.logger = logger }
}

// NewQueueStore creates an empty store. Construct one per process and share it.
func NewQueueStore(opts ...StoreOption) *QueueStore {
	s := &QueueStore{
		entries:      make([]*models.QueueEntry, 0, 64),
		matches:      make([]*models.MatchFound, 0, 16),
		capacity:     DefaultQueueCapacity,
		entryTTL:     DefaultEntryTTL,
		matchTTL:     DefaultMatchTTL,
		cleanupDelay: DefaultMatchCleanupDelay,
		tolerance:    DefaultTolerance(),
		coin:         FairCoin,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddEntry replaces any entry for the same address and appends the new one.
// JoinedAt is stamped here. A re-join never fails on capacity.
func (s *QueueStore) AddEntry(entry models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addEntryLocked(entry, s.now())
}

func (s *QueueStore) addEntryLocked(entry models.QueueEntry, now time.Time) error {
	key := entry.Key()
	replaced := s.removeByKeyLocked(key)

	if !replaced && s.capacity > 0 && s.liveCountLocked(now) >= s.capacity {
		return fmt.Errorf("%w: capacity %d", ErrQueueFull, s.capacity)
	}

	entry.JoinedAt = now
	s.entries = append(s.entries, &entry)

	s.logger.Debug("Queue entry added",
		zap.String("address", key),
		zap.String("playerId", entry.PlayerID),
		zap.Bool("replaced", replaced),
		zap.Int("total", len(s.entries)))

	return nil
}

// RemoveEntryByAddress reports whether a live entry was removed. An expired
// entry that the sweeper has not reached yet is dropped but reported absent.
func (s *QueueStore) RemoveEntryByAddress(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.NormalizeAddress(address)
	now := s.now()
	for i, e := range s.entries {
		if e.Key() == key {
			alive := s.entryAliveLocked(e, now)
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return alive
		}
	}
	return false
}

// FindEntryByAddress live entry for address, if any
func (s *QueueStore) FindEntryByAddress(address string) (*models.QueueEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := models.NormalizeAddress(address)
	now := s.now()
	for _, e := range s.entries {
		if e.Key() == key && s.entryAliveLocked(e, now) {
			clone := *e
			return &clone, true
		}
	}
	return nil, false
}

// GetQueuePosition 1-based rank among live entries, 0 if absent
func (s *QueueStore) GetQueuePosition(address string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positionLocked(models.NormalizeAddress(address), s.now())
}

func (s *QueueStore) positionLocked(key string, now time.Time) int {
	position := 0
	for _, e := range s.entries {
		if !s.entryAliveLocked(e, now) {
			continue
		}
		position++
		if e.Key() == key {
			return position
		}
	}
	return 0
}

// GetTotalInQueue number of live entries
func (s *QueueStore) GetTotalInQueue() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveCountLocked(s.now())
}

// TotalMatches number of live matches
func (s *QueueStore) TotalMatches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	count := 0
	for _, m := range s.matches {
		if s.matchAliveLocked(m, now) {
			count++
		}
	}
	return count
}

func (s *QueueStore) Capacity() int {
	return s.capacity
}

// AddMatch stores a confirmed match
func (s *QueueStore) AddMatch(match *models.MatchFound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addMatchLocked(match)
}

// RemoveMatch reports whether a match was removed
func (s *QueueStore) RemoveMatch(matchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.matches {
		if m.MatchID == matchID {
			s.matches = append(s.matches[:i], s.matches[i+1:]...)
			return true
		}
	}
	return false
}

// FindMatchByAddress live match in which address plays either side
func (s *QueueStore) FindMatchByAddress(address string) (*models.MatchFound, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.findMatchLocked(models.NormalizeAddress(address), s.now())
	if m == nil {
		return nil, false
	}
	clone := *m
	return &clone, true
}

// FindMatch pairs candidate with the earliest compatible live entry. On
// success the match is stored and both players' entries are removed after
// the cleanup delay; until then they stay visible to position lookups but
// are never matched again.
func (s *QueueStore) FindMatch(candidate models.QueueEntry) (*models.MatchFound, *models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findMatchForLocked(&candidate, s.now())
}

// JoinResult outcome of MatchOrEnqueue: either Match is set, or the
// candidate was queued at Position out of Total.
type JoinResult struct {
	Match    *models.MatchFound
	Matched  *models.QueueEntry
	Existing bool
	Position int
	Total    int
}

// MatchOrEnqueue is the join path under a single lock: an address that
// already owns a live match gets it back, otherwise the candidate is paired
// if possible and queued if not. Two compatible players joining at the same
// moment therefore always meet.
func (s *QueueStore) MatchOrEnqueue(candidate models.QueueEntry) (*JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := candidate.Key()

	if existing := s.findMatchLocked(key, now); existing != nil {
		clone := *existing
		return &JoinResult{Match: &clone, Existing: true}, nil
	}

	match, matched, err := s.findMatchForLocked(&candidate, now)
	if err != nil {
		return nil, err
	}
	if match != nil {
		return &JoinResult{Match: match, Matched: matched}, nil
	}

	if err := s.addEntryLocked(candidate, now); err != nil {
		return nil, err
	}

	result := &JoinResult{Total: s.liveCountLocked(now)}
	result.Position = s.positionLocked(key, now)
	return result, nil
}

func (s *QueueStore) findMatchForLocked(candidate *models.QueueEntry, now time.Time) (*models.MatchFound, *models.QueueEntry, error) {
	live := make([]*models.QueueEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if s.entryAliveLocked(e, now) {
			live = append(live, e)
		}
	}

	matched := FindCompatible(candidate, live, s.tolerance, func(e *models.QueueEntry) bool {
		return s.findMatchLocked(e.Key(), now) != nil
	})
	if matched == nil {
		return nil, nil, nil
	}

	match, err := NewMatch(candidate, matched, now, s.coin)
	if err != nil {
		return nil, nil, err
	}
	s.addMatchLocked(match)

	s.logger.Info("Match created",
		zap.String("matchId", match.MatchID),
		zap.String("white", models.NormalizeAddress(match.WhitePlayer.Address)),
		zap.String("black", models.NormalizeAddress(match.BlackPlayer.Address)),
		zap.Int("gameTime", match.GameTime),
		zap.String("betAmount", match.BetAmount))

	keys := []string{candidate.Key(), matched.Key()}
	if s.cleanupDelay <= 0 {
		s.removeMatchedLocked(keys, now)
	} else {
		time.AfterFunc(s.cleanupDelay, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.removeMatchedLocked(keys, now)
		})
	}

	matchedClone := *matched
	clone := *match
	return &clone, &matchedClone, nil
}

// CleanupExpired drops entries older than the entry TTL and matches older
// than the match TTL. Safe to call concurrently with any other operation.
func (s *QueueStore) CleanupExpired() (expiredEntries, expiredMatches int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	keptEntries := s.entries[:0]
	for _, e := range s.entries {
		if e != nil && s.entryAliveLocked(e, now) {
			keptEntries = append(keptEntries, e)
		} else {
			expiredEntries++
		}
	}
	clearTail(s.entries, len(keptEntries))
	s.entries = keptEntries

	keptMatches := s.matches[:0]
	for _, m := range s.matches {
		if m != nil && s.matchAliveLocked(m, now) {
			keptMatches = append(keptMatches, m)
		} else {
			expiredMatches++
		}
	}
	clearTail(s.matches, len(keptMatches))
	s.matches = keptMatches

	return expiredEntries, expiredMatches
}

// Snapshot copies of every stored entry and match, expired ones included
func (s *QueueStore) Snapshot() ([]models.QueueEntry, []models.MatchFound) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]models.QueueEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, *e)
	}
	matches := make([]models.MatchFound, 0, len(s.matches))
	for _, m := range s.matches {
		matches = append(matches, *m)
	}
	return entries, matches
}

// EntryExpired reports whether an entry joined at joinedAt is past its TTL
func (s *QueueStore) EntryExpired(joinedAt time.Time) bool {
	return s.now().Sub(joinedAt) > s.entryTTL
}

// MatchExpired reports whether a match created at createdAt is past retention
func (s *QueueStore) MatchExpired(createdAt time.Time) bool {
	return s.now().Sub(createdAt) > s.matchTTL
}

// Now the store's clock
func (s *QueueStore) Now() time.Time {
	return s.now()
}

func (s *QueueStore) addMatchLocked(match *models.MatchFound) {
	if match.CreatedAt.IsZero() {
		match.CreatedAt = s.now()
	}
	s.matches = append(s.matches, match)
}

func (s *QueueStore) findMatchLocked(key string, now time.Time) *models.MatchFound {
	for _, m := range s.matches {
		if s.matchAliveLocked(m, now) && m.Involves(key) {
			return m
		}
	}
	return nil
}

// removeMatchedLocked removes the entries of matched players that joined no
// later than the match; a re-join after the match survives.
func (s *QueueStore) removeMatchedLocked(keys []string, matchedAt time.Time) {
	kept := s.entries[:0]
	for _, e := range s.entries {
		drop := false
		if !e.JoinedAt.After(matchedAt) {
			for _, key := range keys {
				if e.Key() == key {
					drop = true
					break
				}
			}
		}
		if !drop {
			kept = append(kept, e)
		}
	}
	clearTail(s.entries, len(kept))
	s.entries = kept
}

func (s *QueueStore) removeByKeyLocked(key string) bool {
	for i, e := range s.entries {
		if e.Key() == key {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (s *QueueStore) liveCountLocked(now time.Time) int {
	count := 0
	for _, e := range s.entries {
		if s.entryAliveLocked(e, now) {
			count++
		}
	}
	return count
}

func (s *QueueStore) entryAliveLocked(e *models.QueueEntry, now time.Time) bool {
	return now.Sub(e.JoinedAt) <= s.entryTTL
}

func (s *QueueStore) matchAliveLocked(m *models.MatchFound, now time.Time) bool {
	return now.Sub(m.CreatedAt) <= s.matchTTL
}

// clearTail nils out the slots past n so dropped pointers can be collected
func clearTail[T any](items []*T, n int) {
	for i := n; i < len(items); i++ {
		items[i] = nil
	}
}
