package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veenoway/on-chain-chess-sub001/internal/models"
)

const createMatchHistoryTable = `
	CREATE TABLE IF NOT EXISTS match_history (
		match_id      TEXT PRIMARY KEY,
		room_name     TEXT NOT NULL,
		game_time     INTEGER NOT NULL,
		bet_amount    NUMERIC NOT NULL,
		white_id      TEXT NOT NULL,
		white_address TEXT NOT NULL,
		black_id      TEXT NOT NULL,
		black_address TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)
`

// MatchHistoryRecord one row of match_history. Room passwords are not stored.
type MatchHistoryRecord struct {
	MatchID      string
	RoomName     string
	GameTime     int
	BetAmount    string
	WhiteID      string
	WhiteAddress string
	BlackID      string
	BlackAddress string
	CreatedAt    time.Time
}

// MatchHistoryRepository records every confirmed match in Postgres
type MatchHistoryRepository struct {
	db *sql.DB
}

func NewMatchHistoryRepository(db *sql.DB) *MatchHistoryRepository {
	return &MatchHistoryRepository{db: db}
}

// EnsureSchema 테이블이 없으면 생성
func (r *MatchHistoryRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createMatchHistoryTable); err != nil {
		return fmt.Errorf("failed to create match_history table: %w", err)
	}
	return nil
}

// MatchCreated inserts the match; a duplicate matchId is ignored
func (r *MatchHistoryRepository) MatchCreated(ctx context.Context, match *models.MatchFound) error {
	query := `
		INSERT INTO match_history (
			match_id, room_name, game_time, bet_amount,
			white_id, white_address, black_id, black_address, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (match_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		match.MatchID,
		match.RoomName,
		match.GameTime,
		match.BetAmount,
		match.WhitePlayer.ID,
		models.NormalizeAddress(match.WhitePlayer.Address),
		match.BlackPlayer.ID,
		models.NormalizeAddress(match.BlackPlayer.Address),
		match.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record match %s: %w", match.MatchID, err)
	}

	return nil
}

// FindByID 매치 기록 조회; nil when absent
func (r *MatchHistoryRepository) FindByID(ctx context.Context, matchID string) (*MatchHistoryRecord, error) {
	query := `
		SELECT match_id, room_name, game_time, bet_amount::text,
		       white_id, white_address, black_id, black_address, created_at
		FROM match_history
		WHERE match_id = $1
	`

	rec := &MatchHistoryRecord{}
	err := r.db.QueryRowContext(ctx, query, matchID).Scan(
		&rec.MatchID,
		&rec.RoomName,
		&rec.GameTime,
		&rec.BetAmount,
		&rec.WhiteID,
		&rec.WhiteAddress,
		&rec.BlackID,
		&rec.BlackAddress,
		&rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match %s: %w", matchID, err)
	}

	return rec, nil
}

// ListByAddress most recent matches an address played, newest first
func (r *MatchHistoryRepository) ListByAddress(ctx context.Context, address string, limit int) ([]MatchHistoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT match_id, room_name, game_time, bet_amount::text,
		       white_id, white_address, black_id, black_address, created_at
		FROM match_history
		WHERE white_address = $1 OR black_address = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, models.NormalizeAddress(address), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	records := make([]MatchHistoryRecord, 0)
	for rows.Next() {
		var rec MatchHistoryRecord
		if err := rows.Scan(
			&rec.MatchID,
			&rec.RoomName,
			&rec.GameTime,
			&rec.BetAmount,
			&rec.WhiteID,
			&rec.WhiteAddress,
			&rec.BlackID,
			&rec.BlackAddress,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
