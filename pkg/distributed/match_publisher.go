package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultEventChannel = "matchmaking:events"
	EventMatchFound     = "match_found"
)

// MatchEvent 매치 생성 이벤트. Room credentials are never published.
type MatchEvent struct {
	Type         string    `json:"type"`
	InstanceID   string    `json:"instanceId"`
	MatchID      string    `json:"matchId"`
	RoomName     string    `json:"roomName"`
	GameTime     int       `json:"gameTime"`
	BetAmount    string    `json:"betAmount"`
	WhiteAddress string    `json:"whiteAddress"`
	BlackAddress string    `json:"blackAddress"`
	Timestamp    time.Time `json:"timestamp"`
}

// MatchPublisher Redis Pub/Sub 기반 매치 이벤트 발행/구독
type MatchPublisher struct {
	client     *redis.Client
	logger     *zap.Logger
	instanceID string // 인스턴스 고유 ID
	channel    string

	mu        sync.Mutex
	cancelSub context.CancelFunc
}

// NewMatchPublisher 매치 이벤트 발행자 생성
func NewMatchPublisher(client *redis.Client, channel string, logger *zap.Logger) *MatchPublisher {
	if channel == "" {
		channel = DefaultEventChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MatchPublisher{
		client:     client,
		logger:     logger,
		instanceID: uuid.NewString(),
		channel:    channel,
	}
}

func (p *MatchPublisher) InstanceID() string {
	return p.instanceID
}

// Publish 매치 이벤트 발행
func (p *MatchPublisher) Publish(ctx context.Context, event MatchEvent) error {
	if event.Type == "" {
		event.Type = EventMatchFound
	}
	event.InstanceID = p.instanceID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Published match event",
		zap.String("type", event.Type),
		zap.String("matchId", event.MatchID))

	return nil
}

// Subscribe blocks delivering events from other instances to handler until
// ctx is cancelled or Stop is called. Events this instance published are skipped.
func (p *MatchPublisher) Subscribe(ctx context.Context, handler func(MatchEvent)) error {
	subCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancelSub = cancel
	p.mu.Unlock()
	defer cancel()

	pubsub := p.client.Subscribe(subCtx, p.channel)
	defer pubsub.Close()

	// 구독 확인
	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	p.logger.Info("Match event subscriber started",
		zap.String("instanceId", p.instanceID),
		zap.String("channel", p.channel))

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event MatchEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				p.logger.Warn("Failed to unmarshal match event", zap.Error(err))
				continue
			}
			if event.InstanceID == p.instanceID {
				continue
			}
			handler(event)

		case <-subCtx.Done():
			if errors.Is(ctx.Err(), context.Canceled) || ctx.Err() == nil {
				return nil
			}
			return ctx.Err()
		}
	}
}

// Stop 구독 중지
func (p *MatchPublisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelSub != nil {
		p.cancelSub()
		p.cancelSub = nil
	}
}
