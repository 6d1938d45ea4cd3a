package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PreferredColor string

const (
	ColorWhite  PreferredColor = "white"
	ColorBlack  PreferredColor = "black"
	ColorRandom PreferredColor = "random"
)

// Valid reports whether c is empty or one of the known colors
func (c PreferredColor) Valid() bool {
	switch c {
	case "", ColorWhite, ColorBlack, ColorRandom:
		return true
	}
	return false
}

// MatchCriteria terms a player is willing to play for.
// GameTime is in whole seconds; BetAmount is a decimal string.
type MatchCriteria struct {
	GameTime       int            `json:"gameTime"`
	BetAmount      string         `json:"betAmount"`
	PreferredColor PreferredColor `json:"preferredColor,omitempty"`

	// Bet is BetAmount parsed once on join
	Bet *decimal.Decimal `json:"-"`
}

// QueueEntry a player waiting to be matched
type QueueEntry struct {
	PlayerID      string        `json:"playerId"`
	PlayerAddress string        `json:"playerAddress"`
	Criteria      MatchCriteria `json:"criteria"`
	JoinedAt      time.Time     `json:"joinedAt"`
}

// Key normalized identity of the entry's owner
func (e *QueueEntry) Key() string {
	return NormalizeAddress(e.PlayerAddress)
}

type MatchPlayer struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// MatchFound a confirmed pairing of two queue entries
type MatchFound struct {
	MatchID      string      `json:"matchId"`
	RoomName     string      `json:"roomName"`
	RoomPassword string      `json:"roomPassword"`
	GameTime     int         `json:"gameTime"`
	BetAmount    string      `json:"betAmount"`
	WhitePlayer  MatchPlayer `json:"whitePlayer"`
	BlackPlayer  MatchPlayer `json:"blackPlayer"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// Involves reports whether the normalized address plays either side
func (m *MatchFound) Involves(address string) bool {
	key := NormalizeAddress(address)
	return NormalizeAddress(m.WhitePlayer.Address) == key ||
		NormalizeAddress(m.BlackPlayer.Address) == key
}

// Addresses both sides' addresses, white first
func (m *MatchFound) Addresses() []string {
	return []string{m.WhitePlayer.Address, m.BlackPlayer.Address}
}

// NormalizeAddress wallet addresses compare case-insensitively
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// JoinQueueRequest body of POST /join
type JoinQueueRequest struct {
	PlayerID      string         `json:"playerId"`
	PlayerAddress string         `json:"playerAddress"`
	Criteria      *MatchCriteria `json:"criteria"`
}

// AddressRequest body of leave/status/debug
type AddressRequest struct {
	PlayerAddress string `json:"playerAddress"`
}

// Response shapes of the HTTP surface. Handlers render the exact variant;
// these structs decode any variant.

type JoinQueueResponse struct {
	Success           bool        `json:"success"`
	MatchFound        bool        `json:"matchFound"`
	Match             *MatchFound `json:"match,omitempty"`
	QueuePosition     int         `json:"queuePosition,omitempty"`
	EstimatedWaitTime int         `json:"estimatedWaitTime,omitempty"`
	Error             string      `json:"error,omitempty"`
	QueueCapacity     int         `json:"queueCapacity,omitempty"`
}

type LeaveQueueResponse struct {
	Success          bool `json:"success"`
	WasInQueue       bool `json:"wasInQueue"`
	RemainingInQueue int  `json:"remainingInQueue"`
}

type QueueStatusResponse struct {
	InQueue           bool        `json:"inQueue"`
	MatchFound        bool        `json:"matchFound"`
	Match             *MatchFound `json:"match,omitempty"`
	QueuePosition     int         `json:"queuePosition"`
	TotalInQueue      int         `json:"totalInQueue"`
	EstimatedWaitTime int         `json:"estimatedWaitTime"`
	WaitingTime       int         `json:"waitingTime"`
}

type QueueStatsResponse struct {
	TotalInQueue      int `json:"totalInQueue"`
	TotalMatches      int `json:"totalMatches"`
	EstimatedWaitTime int `json:"estimatedWaitTime"`
}

type QueueDebugEntry struct {
	QueueEntry
	Position   int  `json:"position"`
	AgeSeconds int  `json:"ageSeconds"`
	Expired    bool `json:"expired"`
	IsCaller   bool `json:"isCaller"`
}

type QueueDebugMatch struct {
	MatchFound
	AgeSeconds int  `json:"ageSeconds"`
	Expired    bool `json:"expired"`
	IsCaller   bool `json:"isCaller"`
}

// QueueDebugResponse diagnostic dump, not a stable contract
type QueueDebugResponse struct {
	PlayerAddress string            `json:"playerAddress"`
	Normalized    string            `json:"normalizedAddress"`
	Entries       []QueueDebugEntry `json:"entries"`
	Matches       []QueueDebugMatch `json:"matches"`
	CallerEntry   *QueueEntry       `json:"callerEntry,omitempty"`
	CallerMatch   *MatchFound       `json:"callerMatch,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}
