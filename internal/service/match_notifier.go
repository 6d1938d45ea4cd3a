package service

import (
	"context"

	"github.com/Veenoway/on-chain-chess-sub001/internal/models"
	"github.com/Veenoway/on-chain-chess-sub001/pkg/distributed"
)

// MatchNotifier is told about every freshly created match, outside the store lock
type MatchNotifier interface {
	MatchCreated(ctx context.Context, match *models.MatchFound) error
}

// MatchNotifierFunc adapts a function to MatchNotifier
type MatchNotifierFunc func(ctx context.Context, match *models.MatchFound) error

func (f MatchNotifierFunc) MatchCreated(ctx context.Context, match *models.MatchFound) error {
	return f(ctx, match)
}

// MatchEventPublisher is satisfied by distributed.MatchPublisher
type MatchEventPublisher interface {
	Publish(ctx context.Context, event distributed.MatchEvent) error
}

// PublisherNotifier forwards matches to the event bus without room credentials
type PublisherNotifier struct {
	publisher MatchEventPublisher
}

func NewPublisherNotifier(publisher MatchEventPublisher) *PublisherNotifier {
	return &PublisherNotifier{publisher: publisher}
}

func (n *PublisherNotifier) MatchCreated(ctx context.Context, match *models.MatchFound) error {
	return n.publisher.Publish(ctx, distributed.MatchEvent{
		Type:         distributed.EventMatchFound,
		MatchID:      match.MatchID,
		RoomName:     match.RoomName,
		GameTime:     match.GameTime,
		BetAmount:    match.BetAmount,
		WhiteAddress: models.NormalizeAddress(match.WhitePlayer.Address),
		BlackAddress: models.NormalizeAddress(match.BlackPlayer.Address),
		Timestamp:    match.CreatedAt,
	})
}
