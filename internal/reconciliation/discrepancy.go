package reconciliation

import (
	"context"
	"math"
	"sort"

	"github.com/fortuna/janus/internal/pbp"
)

// Discrepancy is the gap between official and reconstructed minutes for one player.
type Discrepancy struct {
	PlayerID      string  `json:"player_id"`
	BoxMinutes    float64 `json:"box_minutes"`
	PlayByPlayMin float64 `json:"pbp_minutes"`
	// Delta is BoxMinutes minus PlayByPlayMin.
	Delta float64 `json:"delta"`
}

// Discrepancies computes one entry per box score line, largest Delta first. Players the
// reconstruction never saw count as zero reconstructed minutes.
func Discrepancies(lines []pbp.BoxScoreLine, reconstructed func(id string) float64) []Discrepancy {
	out := make([]Discrepancy, 0, len(lines))
	for _, l := range lines {
		pbpMin := reconstructed(l.PlayerID)
		out = append(out, Discrepancy{
			PlayerID:      l.PlayerID,
			BoxMinutes:    l.Minutes,
			PlayByPlayMin: pbpMin,
			Delta:         l.Minutes - pbpMin,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Delta > out[j].Delta })
	return out
}

// Candidates returns the players whose Delta is within tolerance of +quarterMinutes
// (undercount) or -quarterMinutes (overcount).
func Candidates(ds []Discrepancy, quarterMinutes float64, undercount bool, tolerance float64) []string {
	target := quarterMinutes
	if !undercount {
		target = -quarterMinutes
	}
	var out []string
	for _, d := range ds {
		if math.Abs(d.Delta-target) < tolerance {
			out = append(out, d.PlayerID)
		}
	}
	return out
}

// BoxScoreCache stores box scores insert-if-absent.
type BoxScoreCache interface {
	GetBoxScore(ctx context.Context, gameID string) (*pbp.BoxScore, bool, error)
	PutBoxScore(ctx context.Context, b *pbp.BoxScore) error
}

// CachedBoxScores serves box scores from cache, falling through to next on a miss.
type CachedBoxScores struct {
	cache BoxScoreCache
	next  BoxScoreProvider
}

func NewCachedBoxScores(cache BoxScoreCache, next BoxScoreProvider) *CachedBoxScores {
	return &CachedBoxScores{cache: cache, next: next}
}

func (c *CachedBoxScores) FetchBoxScore(ctx context.Context, gameID string) (*pbp.BoxScore, error) {
	if b, ok, err := c.cache.GetBoxScore(ctx, gameID); err == nil && ok {
		return b, nil
	}
	b, err := c.next.FetchBoxScore(ctx, gameID)
	if err != nil {
		return nil, err
	}
	_ = c.cache.PutBoxScore(ctx, b)
	return b, nil
}
