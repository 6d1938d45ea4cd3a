package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Veenoway/on-chain-chess-sub001/internal/models"
	"go.uber.org/zap"
)

const (
	minEstimatedWait     = 30 // seconds
	waitPerPlayerSeconds = 15
	notifyTimeout        = 5 * time.Second
)

// MatchmakingService translates join/leave/status/stats calls into QueueStore operations
type MatchmakingService struct {
	store     *QueueStore
	notifiers []MatchNotifier
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func NewMatchmakingService(store *QueueStore, logger *zap.Logger, notifiers ...MatchNotifier) *MatchmakingService {
	if logger == nil {
		logger = zap.NewNop()
	}

	active := make([]MatchNotifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}

	return &MatchmakingService{
		store:     store,
		notifiers: active,
		logger:    logger,
	}
}

// JoinOutcome result of Join: a match, or a queue position
type JoinOutcome struct {
	Match             *models.MatchFound
	QueuePosition     int
	EstimatedWaitTime int
}

// StatusOutcome result of Status; Match and Entry are both nil when the
// address is neither matched nor waiting
type StatusOutcome struct {
	Match             *models.MatchFound
	Entry             *models.QueueEntry
	QueuePosition     int
	TotalInQueue      int
	EstimatedWaitTime int
	WaitingTime       int
}

// Join validates the request, then matches or enqueues the player
func (s *MatchmakingService) Join(ctx context.Context, req models.JoinQueueRequest) (*JoinOutcome, error) {
	entry, err := validateJoin(req)
	if err != nil {
		return nil, err
	}

	result, err := s.store.MatchOrEnqueue(*entry)
	if err != nil {
		return nil, err
	}

	if result.Match != nil {
		if !result.Existing {
			s.notify(result.Match)
		}
		s.logger.Info("Join resolved to match",
			zap.String("address", entry.Key()),
			zap.String("matchId", result.Match.MatchID),
			zap.Bool("existing", result.Existing))
		return &JoinOutcome{Match: result.Match}, nil
	}

	s.logger.Info("Player joined queue",
		zap.String("address", entry.Key()),
		zap.Int("gameTime", entry.Criteria.GameTime),
		zap.String("betAmount", entry.Criteria.BetAmount),
		zap.Int("position", result.Position))

	return &JoinOutcome{
		QueuePosition:     result.Position,
		EstimatedWaitTime: EstimateWait(result.Total),
	}, nil
}

// Leave removes the player's entry; wasInQueue reports whether one existed
func (s *MatchmakingService) Leave(ctx context.Context, address string) (wasInQueue bool, remaining int, err error) {
	if strings.TrimSpace(address) == "" {
		return false, 0, ErrMissingFields
	}

	wasInQueue = s.store.RemoveEntryByAddress(address)
	remaining = s.store.GetTotalInQueue()

	s.logger.Info("Player left queue",
		zap.String("address", models.NormalizeAddress(address)),
		zap.Bool("wasInQueue", wasInQueue),
		zap.Int("remaining", remaining))

	return wasInQueue, remaining, nil
}

// Status reports a match first, then a queue position, then absence
func (s *MatchmakingService) Status(ctx context.Context, address string) (*StatusOutcome, error) {
	if strings.TrimSpace(address) == "" {
		return nil, ErrMissingFields
	}

	if match, ok := s.store.FindMatchByAddress(address); ok {
		return &StatusOutcome{Match: match}, nil
	}

	entry, ok := s.store.FindEntryByAddress(address)
	if !ok {
		return &StatusOutcome{}, nil
	}

	position := s.store.GetQueuePosition(address)
	if position == 0 {
		// expired or matched between the two lookups
		return &StatusOutcome{}, nil
	}

	waiting := s.store.Now().Sub(entry.JoinedAt)
	if waiting < 0 {
		waiting = 0
	}

	return &StatusOutcome{
		Entry:             entry,
		QueuePosition:     position,
		TotalInQueue:      s.store.GetTotalInQueue(),
		EstimatedWaitTime: EstimateWaitAt(position),
		WaitingTime:       int(waiting / time.Second),
	}, nil
}

// Stats global queue figures
func (s *MatchmakingService) Stats(ctx context.Context) models.QueueStatsResponse {
	total := s.store.GetTotalInQueue()
	return models.QueueStatsResponse{
		TotalInQueue:      total,
		TotalMatches:      s.store.TotalMatches(),
		EstimatedWaitTime: EstimateWait(total),
	}
}

// Debug dumps raw store state annotated for one address
func (s *MatchmakingService) Debug(ctx context.Context, address string) (*models.QueueDebugResponse, error) {
	if strings.TrimSpace(address) == "" {
		return nil, ErrMissingFields
	}

	key := models.NormalizeAddress(address)
	now := s.store.Now()
	entries, matches := s.store.Snapshot()

	resp := &models.QueueDebugResponse{
		PlayerAddress: address,
		Normalized:    key,
		Entries:       make([]models.QueueDebugEntry, 0, len(entries)),
		Matches:       make([]models.QueueDebugMatch, 0, len(matches)),
		Timestamp:     now,
	}

	position := 0
	for i := range entries {
		e := entries[i]
		expired := s.store.EntryExpired(e.JoinedAt)
		if !expired {
			position++
		}
		item := models.QueueDebugEntry{
			QueueEntry: e,
			AgeSeconds: int(now.Sub(e.JoinedAt) / time.Second),
			Expired:    expired,
			IsCaller:   e.Key() == key,
		}
		if !expired {
			item.Position = position
		}
		if item.IsCaller {
			resp.CallerEntry = &e
		}
		resp.Entries = append(resp.Entries, item)
	}

	for i := range matches {
		m := matches[i]
		item := models.QueueDebugMatch{
			MatchFound: m,
			AgeSeconds: int(now.Sub(m.CreatedAt) / time.Second),
			Expired:    s.store.MatchExpired(m.CreatedAt),
			IsCaller:   m.Involves(key),
		}
		if item.IsCaller && !item.Expired {
			resp.CallerMatch = &m
		}
		resp.Matches = append(resp.Matches, item)
	}

	return resp, nil
}

// Capacity waiting-list ceiling reported with QUEUE_FULL
func (s *MatchmakingService) Capacity() int {
	return s.store.Capacity()
}

// Close waits for in-flight match notifications
func (s *MatchmakingService) Close() {
	s.wg.Wait()
}

func (s *MatchmakingService) notify(match *models.MatchFound) {
	if len(s.notifiers) == 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		for _, n := range s.notifiers {
			if err := n.MatchCreated(ctx, match); err != nil {
				s.logger.Warn("Match notification failed",
					zap.String("matchId", match.MatchID),
					zap.String("notifier", fmt.Sprintf("%T", n)),
					zap.Error(err))
			}
		}
	}()
}

// EstimateWait heuristic for global stats and fresh joins
func EstimateWait(totalInQueue int) int {
	return max(minEstimatedWait, totalInQueue*waitPerPlayerSeconds)
}

// EstimateWaitAt heuristic once a player holds a position
func EstimateWaitAt(position int) int {
	return max(minEstimatedWait, (position-1)*waitPerPlayerSeconds)
}

func validateJoin(req models.JoinQueueRequest) (*models.QueueEntry, error) {
	playerID := strings.TrimSpace(req.PlayerID)
	address := strings.TrimSpace(req.PlayerAddress)
	if playerID == "" || address == "" || req.Criteria == nil {
		return nil, ErrMissingFields
	}

	criteria := *req.Criteria
	if criteria.GameTime <= 0 {
		return nil, fmt.Errorf("%w: gameTime must be positive", ErrInvalidCriteria)
	}
	if strings.TrimSpace(criteria.BetAmount) == "" {
		return nil, ErrMissingFields
	}
	bet, err := ParseBetAmount(criteria.BetAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: betAmount must be a plain non-negative decimal", ErrInvalidCriteria)
	}
	if !criteria.PreferredColor.Valid() {
		return nil, fmt.Errorf("%w: unknown preferredColor %q", ErrInvalidCriteria, criteria.PreferredColor)
	}
	criteria.BetAmount = strings.TrimSpace(criteria.BetAmount)
	criteria.Bet = &bet

	return &models.QueueEntry{
		PlayerID:      playerID,
		PlayerAddress: address,
		Criteria:      criteria,
	}, nil
}
