package service

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/Veenoway/on-chain-chess-sub001/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// plain decimal notation, at most 30 integer and 18 fractional digits; no exponent
var betAmountPattern = regexp.MustCompile(`^\d{1,30}(\.\d{1,18})?$`)

// ParseBetAmount parses a non-negative bet written in plain decimal notation
func ParseBetAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !betAmountPattern.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("invalid bet amount %q", s)
	}
	return decimal.NewFromString(s)
}

// Tolerance maximum allowed difference between two players' criteria
type Tolerance struct {
	GameTime  int
	BetAmount decimal.Decimal
}

// DefaultTolerance 60 seconds of game time, 10 units of bet
func DefaultTolerance() Tolerance {
	return Tolerance{
		GameTime:  60,
		BetAmount: decimal.NewFromInt(10),
	}
}

// ParseTolerance builds a Tolerance from config values
func ParseTolerance(gameTime int, betAmount string) (Tolerance, error) {
	bet, err := ParseBetAmount(betAmount)
	if err != nil {
		return Tolerance{}, fmt.Errorf("invalid bet tolerance: %w", err)
	}
	if gameTime < 0 {
		return Tolerance{}, fmt.Errorf("tolerance must be non-negative")
	}
	return Tolerance{GameTime: gameTime, BetAmount: bet}, nil
}

// Compatible both differences are within tolerance, bounds inclusive
func (t Tolerance) Compatible(a, b models.MatchCriteria) bool {
	if abs(a.GameTime-b.GameTime) > t.GameTime {
		return false
	}

	betA, err := criteriaBet(a)
	if err != nil {
		return false
	}
	betB, err := criteriaBet(b)
	if err != nil {
		return false
	}

	return betA.Sub(betB).Abs().LessThanOrEqual(t.BetAmount)
}

func criteriaBet(c models.MatchCriteria) (decimal.Decimal, error) {
	if c.Bet != nil {
		return *c.Bet, nil
	}
	return ParseBetAmount(c.BetAmount)
}

// FindCompatible returns the first waiting entry, in arrival order, whose
// criteria are compatible with the candidate. Entries sharing the candidate's
// address, or for which skip returns true, are never returned.
func FindCompatible(
	candidate *models.QueueEntry,
	waiting []*models.QueueEntry,
	tolerance Tolerance,
	skip func(*models.QueueEntry) bool,
) *models.QueueEntry {
	key := candidate.Key()
	for _, other := range waiting {
		if other == nil || other.Key() == key {
			continue
		}
		if skip != nil && skip(other) {
			continue
		}
		if tolerance.Compatible(candidate.Criteria, other.Criteria) {
			return other
		}
	}
	return nil
}

// CoinFlip decides whether the candidate plays white
type CoinFlip func() bool

// FairCoin unbiased coin
func FairCoin() bool {
	return mrand.Intn(2) == 0
}

// NewMatch pairs candidate with matched. Terms come from the candidate,
// colors from the coin, room credentials from crypto/rand.
func NewMatch(candidate, matched *models.QueueEntry, now time.Time, coin CoinFlip) (*models.MatchFound, error) {
	if coin == nil {
		coin = FairCoin
	}

	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate room credentials: %w", err)
	}

	white := models.MatchPlayer{ID: candidate.PlayerID, Address: candidate.PlayerAddress}
	black := models.MatchPlayer{ID: matched.PlayerID, Address: matched.PlayerAddress}
	if !coin() {
		white, black = black, white
	}

	return &models.MatchFound{
		// {unixMillis}-{random}; CreatedAt is the authoritative age
		MatchID:      fmt.Sprintf("%d-%s", now.UnixMilli(), hex.EncodeToString(secret[18:])),
		RoomName:     "chess-" + uuid.NewString(),
		RoomPassword: base64.RawURLEncoding.EncodeToString(secret[:18]),
		GameTime:     candidate.Criteria.GameTime,
		BetAmount:    candidate.Criteria.BetAmount,
		WhitePlayer:  white,
		BlackPlayer:  black,
		CreatedAt:    now,
	}, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
