package service

import (
	"context"
	"fmt"

	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/store"
)

// MiscountReader is the part of the miscount repository the read side needs.
type MiscountReader interface {
	List(ctx context.Context, season string) ([]*store.Miscount, error)
}

// MiscountService lists unresolved quarters
type MiscountService struct {
	miscounts MiscountReader
}

func NewMiscountService(miscounts MiscountReader) *MiscountService {
	return &MiscountService{miscounts: miscounts}
}

// MiscountSummary groups the unresolved quarters of one season
type MiscountSummary struct {
	Season  string               `json:"season,omitempty"`
	Games   int                  `json:"games"`
	Records []pbp.MiscountRecord `json:"records"`
}

// List returns the miscounts of season, or of every season when it is empty.
func (s *MiscountService) List(ctx context.Context, season string) (*MiscountSummary, error) {
	label := ""
	if season != "" {
		var ok bool
		if label, ok = pbp.NormalizeSeason(season); !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSeason, season)
		}
	}

	rows, err := s.miscounts.List(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("fetching miscounts: %w", err)
	}

	summary := &MiscountSummary{Season: label, Records: make([]pbp.MiscountRecord, 0, len(rows))}
	games := make(map[string]bool)
	for _, r := range rows {
		summary.Records = append(summary.Records, r.Record())
		games[r.GameID] = true
	}
	summary.Games = len(games)
	return summary, nil
}
