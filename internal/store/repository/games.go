package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/store"
)

// ErrGameNotFound is returned when no timeline is stored for a game.
var ErrGameNotFound = errors.New("game not found")

// GameRepository handles processed timelines
type GameRepository struct {
	db *store.Database
}

// NewGameRepository creates a new game repository
func NewGameRepository(db *store.Database) *GameRepository {
	return &GameRepository{db: db}
}

const gameColumns = `game_id, season, game_date, home_team, away_team, home_score, away_score,
	home_poss, away_poss, final_margin, has_lineups, excluded, processed_at`

// SaveTimeline replaces the stored timeline of g.
func (r *GameRepository) SaveTimeline(ctx context.Context, g *pbp.Game, excluded bool) error {
	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	game := store.GameFromTimeline(g, excluded)
	plays, err := store.PlaysFromTimeline(g)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO games (game_id, season, game_date, home_team, away_team, home_score, away_score,
			home_poss, away_poss, final_margin, has_lineups, excluded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (game_id) DO UPDATE SET
			season = EXCLUDED.season,
			game_date = EXCLUDED.game_date,
			home_team = EXCLUDED.home_team,
			away_team = EXCLUDED.away_team,
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			home_poss = EXCLUDED.home_poss,
			away_poss = EXCLUDED.away_poss,
			final_margin = EXCLUDED.final_margin,
			has_lineups = EXCLUDED.has_lineups,
			excluded = EXCLUDED.excluded,
			processed_at = NOW()
	`,
		game.GameID, game.Season, game.GameDate, game.HomeTeam, game.AwayTeam, game.HomeScore, game.AwayScore,
		game.HomePoss, game.AwayPoss, game.FinalMargin, game.HasLineups, game.Excluded,
	)
	if err != nil {
		return fmt.Errorf("upserting game: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM plays WHERE game_id = $1`, g.ID); err != nil {
		return fmt.Errorf("clearing plays: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("plays",
		"game_id", "position", "source_row", "quarter", "sec_left", "timestamp", "sec_elapsed",
		"away_play", "home_play", "away_score", "home_score", "away_lineup", "home_lineup",
		"away_poss_end", "home_poss_end", "away_poss", "home_poss", "away_pts", "home_pts",
		"margin", "final_margin", "closest_remaining_margin", "event",
	))
	if err != nil {
		return fmt.Errorf("preparing copy: %w", err)
	}
	for _, p := range plays {
		_, err := stmt.ExecContext(ctx,
			p.GameID, p.Position, p.SourceRow, p.Quarter, p.SecLeft, p.Timestamp, p.SecElapsed,
			p.AwayPlay, p.HomePlay, p.AwayScore, p.HomeScore, p.AwayLineup, p.HomeLineup,
			p.AwayPossEnd, p.HomePossEnd, p.AwayPoss, p.HomePoss, p.AwayPts, p.HomePts,
			p.Margin, p.FinalMargin, p.ClosestRemainingMargin, string(p.Event),
		)
		if err != nil {
			stmt.Close()
			return fmt.Errorf("copying play %d: %w", p.Position, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flushing plays: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("closing copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByID returns the header row of a game
func (r *GameRepository) GetByID(ctx context.Context, gameID string) (*store.Game, error) {
	row := r.db.DB().QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE game_id = $1`, gameID)
	game, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying game: %w", err)
	}
	return game, nil
}

// GetTimeline loads the annotated timeline of a game
func (r *GameRepository) GetTimeline(ctx context.Context, gameID string) (*pbp.Game, error) {
	game, err := r.GetByID(ctx, gameID)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT game_id, position, source_row, quarter, sec_left, timestamp, sec_elapsed,
			away_play, home_play, away_score, home_score, away_lineup, home_lineup,
			away_poss_end, home_poss_end, away_poss, home_poss, away_pts, home_pts,
			margin, final_margin, closest_remaining_margin, event
		FROM plays
		WHERE game_id = $1
		ORDER BY position
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("querying plays: %w", err)
	}
	defer rows.Close()

	var plays []*store.Play
	for rows.Next() {
		p := &store.Play{}
		err := rows.Scan(
			&p.GameID, &p.Position, &p.SourceRow, &p.Quarter, &p.SecLeft, &p.Timestamp, &p.SecElapsed,
			&p.AwayPlay, &p.HomePlay, &p.AwayScore, &p.HomeScore, &p.AwayLineup, &p.HomeLineup,
			&p.AwayPossEnd, &p.HomePossEnd, &p.AwayPoss, &p.HomePoss, &p.AwayPts, &p.HomePts,
			&p.Margin, &p.FinalMargin, &p.ClosestRemainingMargin, &p.Event,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning play: %w", err)
		}
		plays = append(plays, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return store.ToTimeline(game, plays)
}

// GetBySeason returns the header rows of a season, optionally without excluded games
func (r *GameRepository) GetBySeason(ctx context.Context, season string, includeExcluded bool) ([]*store.Game, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT `+gameColumns+`
		FROM games
		WHERE season = $1 AND ($2 OR NOT excluded)
		ORDER BY game_date, game_id
	`, season, includeExcluded)
	if err != nil {
		return nil, fmt.Errorf("querying season games: %w", err)
	}
	defer rows.Close()

	var games []*store.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		games = append(games, game)
	}
	return games, rows.Err()
}

// SetExcluded flips the exclusion flag after a re-resolution.
func (r *GameRepository) SetExcluded(ctx context.Context, gameID string, excluded bool) error {
	if _, err := r.db.DB().ExecContext(ctx, `UPDATE games SET excluded = $2 WHERE game_id = $1`, gameID, excluded); err != nil {
		return fmt.Errorf("updating game: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGame(s scanner) (*store.Game, error) {
	game := &store.Game{}
	err := s.Scan(
		&game.GameID, &game.Season, &game.GameDate, &game.HomeTeam, &game.AwayTeam,
		&game.HomeScore, &game.AwayScore, &game.HomePoss, &game.AwayPoss, &game.FinalMargin,
		&game.HasLineups, &game.Excluded, &game.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return game, nil
}
