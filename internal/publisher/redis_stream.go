package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/fortuna/janus/internal/engine"
	"github.com/fortuna/janus/internal/pbp"
)

const (
	GamesStream     = "games.lineups.basketball_nba"
	MiscountsStream = "games.miscounts.basketball_nba"

	// streamMaxLen caps each stream; older entries are trimmed approximately.
	streamMaxLen = 10000
)

// GameSummary is the event published for every processed game.
type GameSummary struct {
	GameID      string               `json:"game_id"`
	Season      string               `json:"season"`
	HomeTeam    string               `json:"home_team"`
	AwayTeam    string               `json:"away_team"`
	HomeScore   int                  `json:"home_score"`
	AwayScore   int                  `json:"away_score"`
	HomePoss    int                  `json:"home_poss"`
	AwayPoss    int                  `json:"away_poss"`
	FinalMargin int                  `json:"final_margin"`
	Stints      int                  `json:"stints"`
	Corrections int                  `json:"corrections"`
	Miscounts   []pbp.MiscountRecord `json:"miscounts,omitempty"`
	Excluded    bool                 `json:"excluded"`
	Error       string               `json:"error,omitempty"`
	ProcessedAt time.Time            `json:"processed_at"`
}

// Summarize builds the event of one pipeline result.
func Summarize(res *engine.Result) GameSummary {
	g := res.Game
	s := GameSummary{
		GameID:      g.ID,
		Season:      g.Season,
		HomeTeam:    g.HomeTeam,
		AwayTeam:    g.AwayTeam,
		Stints:      len(res.Stints),
		Corrections: len(res.Corrections),
		Miscounts:   res.Miscounts,
		Excluded:    res.Excluded(),
		ProcessedAt: time.Now().UTC(),
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	if n := len(g.Plays); n > 0 {
		last := g.Plays[n-1]
		s.HomeScore, s.AwayScore = last.HomeScore, last.AwayScore
		s.HomePoss, s.AwayPoss = last.HomePoss, last.AwayPoss
		s.FinalMargin = last.FinalMargin
	}
	return s
}

// Sink receives processed-game events.
type Sink interface {
	PublishGame(ctx context.Context, s GameSummary) error
	PublishMiscount(ctx context.Context, rec pbp.MiscountRecord) error
}

// StreamAdder is the part of the redis client the publisher needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamPublisher publishes events to Redis streams
type RedisStreamPublisher struct {
	client StreamAdder
}

// NewRedisStreamPublisher creates a new Redis stream publisher from existing client
func NewRedisStreamPublisher(client StreamAdder) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
	}
}

// RedisPublisher owns its connection
type RedisPublisher struct {
	*RedisStreamPublisher
	client *redis.Client
}

// NewRedisPublisher connects to redisURL and pings it
func NewRedisPublisher(redisURL string) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisPublisher{
		RedisStreamPublisher: NewRedisStreamPublisher(client),
		client:               client,
	}, nil
}

// Close closes the Redis connection
func (rp *RedisPublisher) Close() error {
	return rp.client.Close()
}

// PublishGame appends a processed game to the games stream
func (rsp *RedisStreamPublisher) PublishGame(ctx context.Context, s GameSummary) error {
	return rsp.publish(ctx, GamesStream, s)
}

// PublishMiscount appends an unresolved quarter to the miscounts stream
func (rsp *RedisStreamPublisher) PublishMiscount(ctx context.Context, rec pbp.MiscountRecord) error {
	return rsp.publish(ctx, MiscountsStream, rec)
}

func (rsp *RedisStreamPublisher) publish(ctx context.Context, stream string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", stream, err)
	}

	err = rsp.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}

// Fanout forwards events to every sink and combines their errors.
type Fanout []Sink

func (f Fanout) PublishGame(ctx context.Context, s GameSummary) error {
	var err error
	for _, sink := range f {
		err = multierr.Append(err, sink.PublishGame(ctx, s))
	}
	return err
}

func (f Fanout) PublishMiscount(ctx context.Context, rec pbp.MiscountRecord) error {
	var err error
	for _, sink := range f {
		err = multierr.Append(err, sink.PublishMiscount(ctx, rec))
	}
	return err
}

// PublishBatch sends every result and every miscount of b.
func PublishBatch(ctx context.Context, sink Sink, b *engine.Batch) error {
	var err error
	for _, res := range b.Results {
		err = multierr.Append(err, sink.PublishGame(ctx, Summarize(res)))
		for _, rec := range res.Miscounts {
			err = multierr.Append(err, sink.PublishMiscount(ctx, rec))
		}
	}
	return err
}
