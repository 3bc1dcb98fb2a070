// Package cache holds the run-owned player, box score and miscount stores. Every store is
// insert-if-absent: once a key is written its value never changes.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fortuna/janus/internal/pbp"
)

// Memory is an in-process store safe for concurrent games.
type Memory struct {
	players   sync.Map // id -> *pbp.Player
	boxScores sync.Map // game id -> *pbp.BoxScore
	miscounts sync.Map // miscountKey -> pbp.MiscountRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) GetPlayer(_ context.Context, id string) (*pbp.Player, bool, error) {
	v, ok := m.players.Load(id)
	if !ok {
		return nil, false, nil
	}
	return v.(*pbp.Player), true, nil
}

func (m *Memory) PutPlayer(_ context.Context, p *pbp.Player) error {
	m.players.LoadOrStore(p.ID, p)
	return nil
}

func (m *Memory) GetBoxScore(_ context.Context, gameID string) (*pbp.BoxScore, bool, error) {
	v, ok := m.boxScores.Load(gameID)
	if !ok {
		return nil, false, nil
	}
	return v.(*pbp.BoxScore), true, nil
}

func (m *Memory) PutBoxScore(_ context.Context, b *pbp.BoxScore) error {
	m.boxScores.LoadOrStore(b.GameID, b)
	return nil
}

// RecordMiscount registers an unresolved quarter. The first record for a
// (game, quarter, side) is kept.
func (m *Memory) RecordMiscount(_ context.Context, rec pbp.MiscountRecord) error {
	m.miscounts.LoadOrStore(miscountKey(rec), rec)
	return nil
}

// Miscounts returns every record ordered by game, quarter and side.
func (m *Memory) Miscounts(_ context.Context) ([]pbp.MiscountRecord, error) {
	var out []pbp.MiscountRecord
	m.miscounts.Range(func(_, v any) bool {
		out = append(out, v.(pbp.MiscountRecord))
		return true
	})
	SortMiscounts(out)
	return out, nil
}

// IsExcluded reports whether gameID has any unresolved miscount.
func (m *Memory) IsExcluded(_ context.Context, gameID string) (bool, error) {
	excluded := false
	m.miscounts.Range(func(_, v any) bool {
		if v.(pbp.MiscountRecord).GameID == gameID {
			excluded = true
			return false
		}
		return true
	})
	return excluded, nil
}

// ClearMiscounts drops the records of a game that has been re-resolved.
func (m *Memory) ClearMiscounts(_ context.Context, gameID string) error {
	m.miscounts.Range(func(k, v any) bool {
		if v.(pbp.MiscountRecord).GameID == gameID {
			m.miscounts.Delete(k)
		}
		return true
	})
	return nil
}

func miscountKey(rec pbp.MiscountRecord) string {
	return fmt.Sprintf("%s|%d|%s", rec.GameID, rec.Quarter, rec.Side)
}

// SortMiscounts orders records by game, quarter, then side.
func SortMiscounts(recs []pbp.MiscountRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.GameID != b.GameID {
			return a.GameID < b.GameID
		}
		if a.Quarter != b.Quarter {
			return a.Quarter < b.Quarter
		}
		return a.Side < b.Side
	})
}
