package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/store"
)

// PlayerRepository stores scraped player profiles. It satisfies roster.PlayerCache, so
// profiles survive across runs.
type PlayerRepository struct {
	db *store.Database
}

// NewPlayerRepository creates a new player repository
func NewPlayerRepository(db *store.Database) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// GetPlayer returns the stored profile of id; ok is false when none is stored.
func (r *PlayerRepository) GetPlayer(ctx context.Context, id string) (*pbp.Player, bool, error) {
	row := &store.Player{}
	err := r.db.DB().QueryRowContext(ctx, `
		SELECT player_id, name, height_cm, mass_kg, birth_date, teams_by_season, salary_by_season, stats, fetched_at
		FROM players
		WHERE player_id = $1
	`, id).Scan(
		&row.PlayerID, &row.Name, &row.HeightCM, &row.MassKG, &row.BirthDate,
		&row.TeamsBySeason, &row.SalaryBySeason, &row.Stats, &row.FetchedAt,
	)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying player: %w", err)
	}

	p, err := row.Profile()
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// PutPlayer inserts p, keeping an existing profile untouched.
func (r *PlayerRepository) PutPlayer(ctx context.Context, p *pbp.Player) error {
	row, err := store.PlayerFromProfile(p)
	if err != nil {
		return err
	}
	_, err = r.db.DB().ExecContext(ctx, `
		INSERT INTO players (player_id, name, height_cm, mass_kg, birth_date, teams_by_season, salary_by_season, stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (player_id) DO NOTHING
	`, row.PlayerID, row.Name, row.HeightCM, row.MassKG, row.BirthDate, row.TeamsBySeason, row.SalaryBySeason, row.Stats)
	if err != nil {
		return fmt.Errorf("inserting player: %w", err)
	}
	return nil
}
