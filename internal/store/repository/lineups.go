package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/janus/internal/analytics"
	"github.com/fortuna/janus/internal/store"
)

// LineupRepository stores per-game lineup contributions and serves their season totals
type LineupRepository struct {
	db *store.Database
}

func NewLineupRepository(db *store.Database) *LineupRepository {
	return &LineupRepository{db: db}
}

// ReplaceGameResults swaps the contribution of gameID for results. An empty results
// removes the game from the season totals.
func (r *LineupRepository) ReplaceGameResults(ctx context.Context, gameID string, results []analytics.LineupResult) error {
	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lineup_game_results WHERE game_id = $1`, gameID); err != nil {
		return fmt.Errorf("clearing lineups of %s: %w", gameID, err)
	}
	if len(results) == 0 {
		return tx.Commit()
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lineup_game_results (game_id, season, lineup, home, sec_elapsed, off_poss, def_poss, pts_scored, pts_allowed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		_, err := stmt.ExecContext(ctx, gameID, res.Season, res.Lineup, res.Home, res.SecElapsed,
			res.OffPoss, res.DefPoss, res.PtsScored, res.PtsAllowed)
		if err != nil {
			return fmt.Errorf("inserting lineup %s: %w", res.Lineup, err)
		}
	}
	return tx.Commit()
}

// TopBySeason returns the most used lineups of season
func (r *LineupRepository) TopBySeason(ctx context.Context, season string, limit int) ([]*store.LineupResult, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT season, lineup, home, SUM(sec_elapsed), SUM(off_poss), SUM(def_poss), SUM(pts_scored), SUM(pts_allowed)
		FROM lineup_game_results
		WHERE season = $1
		GROUP BY season, lineup, home
		ORDER BY SUM(off_poss) + SUM(def_poss) DESC, SUM(sec_elapsed) DESC
		LIMIT $2
	`, season, limit)
	if err != nil {
		return nil, fmt.Errorf("querying lineup results: %w", err)
	}
	defer rows.Close()

	var out []*store.LineupResult
	for rows.Next() {
		l := &store.LineupResult{}
		if err := rows.Scan(&l.Season, &l.Lineup, &l.Home, &l.SecElapsed, &l.OffPoss, &l.DefPoss, &l.PtsScored, &l.PtsAllowed); err != nil {
			return nil, fmt.Errorf("scanning lineup result: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
