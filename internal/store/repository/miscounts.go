package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/store"
)

// MiscountRepository persists unresolved quarters. It satisfies the pipeline's miscount
// registry, so a run can write straight to Postgres.
type MiscountRepository struct {
	db *store.Database
}

func NewMiscountRepository(db *store.Database) *MiscountRepository {
	return &MiscountRepository{db: db}
}

// RecordMiscount inserts rec unless the quarter is already recorded.
func (r *MiscountRepository) RecordMiscount(ctx context.Context, rec pbp.MiscountRecord) error {
	m := store.MiscountFromRecord(rec)
	_, err := r.db.DB().ExecContext(ctx, `
		INSERT INTO lineup_miscounts (game_id, season, quarter, side, team, magnitude, events)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (game_id, quarter, side) DO NOTHING
	`, m.GameID, m.Season, m.Quarter, m.Side, m.Team, m.Magnitude, m.Events)
	if err != nil {
		return fmt.Errorf("inserting miscount: %w", err)
	}
	return nil
}

// IsExcluded reports whether any quarter of gameID is recorded.
func (r *MiscountRepository) IsExcluded(ctx context.Context, gameID string) (bool, error) {
	var exists bool
	err := r.db.DB().QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM lineup_miscounts WHERE game_id = $1)`, gameID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("querying miscounts: %w", err)
	}
	return exists, nil
}

// List returns the miscounts of season, or of every season when season is empty.
func (r *MiscountRepository) List(ctx context.Context, season string) ([]*store.Miscount, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT game_id, season, quarter, side, team, magnitude, events, recorded_at
		FROM lineup_miscounts
		WHERE $1 = '' OR season = $1
		ORDER BY season, game_id, quarter, side
	`, season)
	if err != nil {
		return nil, fmt.Errorf("querying miscounts: %w", err)
	}
	defer rows.Close()

	var out []*store.Miscount
	for rows.Next() {
		m := &store.Miscount{}
		if err := rows.Scan(&m.GameID, &m.Season, &m.Quarter, &m.Side, &m.Team, &m.Magnitude, &m.Events, &m.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning miscount: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GameIDs returns the distinct games with at least one miscount.
func (r *MiscountRepository) GameIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.DB().QueryContext(ctx, `SELECT DISTINCT game_id FROM lineup_miscounts ORDER BY game_id`)
	if err != nil {
		return nil, fmt.Errorf("querying miscount games: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Replace swaps the records of gameID for recs in one transaction.
func (r *MiscountRepository) Replace(ctx context.Context, gameID string, recs []pbp.MiscountRecord) error {
	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lineup_miscounts WHERE game_id = $1`, gameID); err != nil {
		return fmt.Errorf("deleting miscounts: %w", err)
	}
	for _, rec := range recs {
		m := store.MiscountFromRecord(rec)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO lineup_miscounts (game_id, season, quarter, side, team, magnitude, events)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (game_id, quarter, side) DO NOTHING
		`, gameID, m.Season, m.Quarter, m.Side, m.Team, m.Magnitude, m.Events)
		if err != nil {
			return fmt.Errorf("inserting miscount: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
