package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Veenoway/on-chain-chess-sub001/internal/models"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle       State = "idle"
	StateSearching  State = "searching"
	StateMatchFound State = "match_found"
	StateFailed     State = "failed"
	StateConnecting State = "connecting"
)

const (
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultStatsInterval = 5 * time.Second
	DefaultAbsenceGrace  = 2 * time.Second
)

var (
	ErrAlreadySearching = errors.New("already searching")
	ErrNoMatch          = errors.New("no match to accept")
)

// API the subset of Client the poller drives
type API interface {
	Join(ctx context.Context, req models.JoinQueueRequest) (*models.JoinQueueResponse, error)
	Leave(ctx context.Context, address string) (*models.LeaveQueueResponse, error)
	Status(ctx context.Context, address string) (*models.QueueStatusResponse, error)
	Stats(ctx context.Context) (*models.QueueStatsResponse, error)
}

// SessionJoiner connects both players to the realtime room of a match
type SessionJoiner interface {
	JoinSession(ctx context.Context, match *models.MatchFound) error
}

// Snapshot poller state at one instant
type Snapshot struct {
	State             State
	Match             *models.MatchFound
	Err               error
	QueuePosition     int
	EstimatedWaitTime int
	Stats             *models.QueueStatsResponse
}

// Poller drives one player through join, status polling and accept
type Poller struct {
	api    API
	joiner SessionJoiner
	logger *zap.Logger

	pollInterval  time.Duration
	statsInterval time.Duration
	absenceGrace  time.Duration
	now           func() time.Time

	mu          sync.Mutex
	state       State
	address     string
	match       *models.MatchFound
	err         error
	position    int
	wait        int
	stats       *models.QueueStatsResponse
	absentSince time.Time
	gen         uint64
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

type PollerOption func(*Poller)

func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.pollInterval = d }
}

func WithStatsInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.statsInterval = d }
}

// WithAbsenceGrace how long status may report absence before the poller gives up
func WithAbsenceGrace(d time.Duration) PollerOption {
	return func(p *Poller) { p.absenceGrace = d }
}

func WithPollerLogger(l *zap.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

func NewPoller(api API, joiner SessionJoiner, opts ...PollerOption) *Poller {
	p := &Poller{
		api:           api,
		joiner:        joiner,
		logger:        zap.NewNop(),
		pollInterval:  DefaultPollInterval,
		statsInterval: DefaultStatsInterval,
		absenceGrace:  DefaultAbsenceGrace,
		now:           time.Now,
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Snapshot current state copy
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		State:             p.state,
		Match:             p.match,
		Err:               p.err,
		QueuePosition:     p.position,
		EstimatedWaitTime: p.wait,
		Stats:             p.stats,
	}
}

// Join enters the queue. An immediate match skips polling; otherwise status
// and stats timers start. A failed join leaves the poller in StateFailed.
func (p *Poller) Join(ctx context.Context, req models.JoinQueueRequest) error {
	p.mu.Lock()
	if p.state == StateSearching || p.state == StateConnecting {
		p.mu.Unlock()
		return ErrAlreadySearching
	}
	p.stopTimersLocked()
	p.gen++
	gen := p.gen
	p.state = StateSearching
	p.address = req.PlayerAddress
	p.match = nil
	p.err = nil
	p.position = 0
	p.wait = 0
	p.absentSince = time.Time{}
	p.mu.Unlock()

	resp, err := p.api.Join(ctx, req)

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen {
		// left or reset while the join was in flight
		return nil
	}

	if err == nil && !resp.Success {
		err = fmt.Errorf("join rejected: %s", resp.Error)
	}
	if err != nil {
		p.state = StateFailed
		p.err = err
		return err
	}

	if resp.MatchFound && resp.Match != nil {
		p.state = StateMatchFound
		p.match = resp.Match
		return nil
	}

	p.position = resp.QueuePosition
	p.wait = resp.EstimatedWaitTime
	p.startTimersLocked(gen)
	return nil
}

// Accept hands the found match to the session joiner
func (p *Poller) Accept(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateMatchFound || p.match == nil {
		p.mu.Unlock()
		return ErrNoMatch
	}
	p.state = StateConnecting
	match := p.match
	gen := p.gen
	p.mu.Unlock()

	err := p.joiner.JoinSession(ctx, match)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil && gen == p.gen {
		p.state = StateFailed
		p.err = fmt.Errorf("failed to join session: %w", err)
		return p.err
	}
	return err
}

// Leave stops both timers, tells the server and returns to idle. Local
// state is cleared even when the server call fails.
func (p *Poller) Leave(ctx context.Context) error {
	address := p.teardown()
	if address == "" {
		return nil
	}
	if _, err := p.api.Leave(ctx, address); err != nil {
		return fmt.Errorf("failed to leave queue: %w", err)
	}
	return nil
}

// Reset is Leave with the server error logged instead of returned
func (p *Poller) Reset(ctx context.Context) {
	if err := p.Leave(ctx); err != nil {
		p.logger.Warn("Leave during reset failed", zap.Error(err))
	}
}

// Close stops both timers and returns to idle without contacting the server
func (p *Poller) Close() {
	p.teardown()
}

func (p *Poller) teardown() string {
	p.mu.Lock()
	p.stopTimersLocked()
	p.gen++
	address := p.address
	p.state = StateIdle
	p.address = ""
	p.match = nil
	p.err = nil
	p.position = 0
	p.wait = 0
	p.absentSince = time.Time{}
	p.mu.Unlock()

	p.wg.Wait()
	return address
}

func (p *Poller) startTimersLocked(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(2)
	go p.pollLoop(ctx, gen, p.address)
	go p.statsLoop(ctx, gen)
}

func (p *Poller) stopTimersLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Poller) pollLoop(ctx context.Context, gen uint64, address string) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := p.api.Status(ctx, address)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Debug("Status poll failed, retrying", zap.Error(err))
			}
			continue
		}

		if !p.applyStatus(gen, status) {
			return
		}
	}
}

// applyStatus reports whether polling should continue
func (p *Poller) applyStatus(gen uint64, status *models.QueueStatusResponse) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen || p.state != StateSearching {
		return false
	}

	switch {
	case status.MatchFound && status.Match != nil:
		p.state = StateMatchFound
		p.match = status.Match
		p.stopTimersLocked()
		return false

	case status.InQueue:
		p.absentSince = time.Time{}
		p.position = status.QueuePosition
		p.wait = status.EstimatedWaitTime
		return true

	default:
		now := p.now()
		if p.absentSince.IsZero() {
			p.absentSince = now
			return true
		}
		if now.Sub(p.absentSince) < p.absenceGrace {
			return true
		}
		p.logger.Info("Queue entry gone, returning to idle", zap.String("address", p.address))
		p.state = StateIdle
		p.address = ""
		p.position = 0
		p.wait = 0
		p.absentSince = time.Time{}
		p.stopTimersLocked()
		return false
	}
}

func (p *Poller) statsLoop(ctx context.Context, gen uint64) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.statsInterval)
	defer ticker.Stop()

	for {
		if stats, err := p.api.Stats(ctx); err == nil {
			p.mu.Lock()
			if gen == p.gen {
				p.stats = stats
			}
			p.mu.Unlock()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
