package bbref

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/fortuna/janus/internal/pbp"
)

// BoxScorePath maps "/boxscores/201510270ATL.html" or "201510270ATL" to the page path.
func BoxScorePath(gameID string) string {
	key := path.Base(gameID)
	key = strings.TrimSuffix(key, path.Ext(key))
	return "/boxscores/" + key + ".html"
}

// PlayerPath returns the page path of a player id.
func PlayerPath(id string) string {
	if id == "" {
		return "/players/"
	}
	return fmt.Sprintf("/players/%c/%s.html", id[0], id)
}

// FetchBoxScore downloads and parses the box score of gameID.
func (c *Client) FetchBoxScore(ctx context.Context, gameID string) (*pbp.BoxScore, error) {
	start := time.Now()
	box, err := c.fetchBoxScore(ctx, gameID)
	c.metrics.RecordFetch("boxscore", err, time.Since(start))
	return box, err
}

func (c *Client) fetchBoxScore(ctx context.Context, gameID string) (*pbp.BoxScore, error) {
	doc, err := c.Page(ctx, BoxScorePath(gameID))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", pbp.ErrNoBoxScore, gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch box score %s: %w", gameID, err)
	}

	box, err := ParseBoxScore(gameID, doc)
	if err != nil {
		return nil, err
	}
	c.log.WithField("game_id", gameID).WithField("teams", len(box.Teams)).Debug("box score fetched")
	return box, nil
}

// FetchPlayer downloads and parses the player page of id.
func (c *Client) FetchPlayer(ctx context.Context, id string) (*pbp.Player, error) {
	if id == "" || id == pbp.TeamPlayer {
		return nil, fmt.Errorf("%w: %q", pbp.ErrPlayerNotFound, id)
	}

	start := time.Now()
	p, err := c.fetchPlayer(ctx, id)
	c.metrics.RecordFetch("player", err, time.Since(start))
	return p, err
}

func (c *Client) fetchPlayer(ctx context.Context, id string) (*pbp.Player, error) {
	doc, err := c.Page(ctx, PlayerPath(id))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", pbp.ErrPlayerNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch player %s: %w", id, err)
	}
	return ParsePlayer(id, doc)
}
