package report

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/match-tender/opendota"
)

// MatchSource fetches match detail.
type MatchSource interface {
	Match(ctx context.Context, matchID int64) (*opendota.Match, error)
}

// Catalog resolves hero and item names. Implementations never fail; they return
// placeholders instead.
type Catalog interface {
	HeroName(ctx context.Context, heroID int) string
	HeroImageURL(ctx context.Context, heroID int) string
	ItemName(ctx context.Context, itemID int) string
}

// Builder fetches what a report needs and renders it.
type Builder struct {
	Matches MatchSource
	Catalog Catalog
}

// NewBuilder returns a Builder backed by client.
func NewBuilder(client *opendota.Client) *Builder {
	return &Builder{Matches: client, Catalog: client}
}

// Individual renders recent as a report for one player. If the detail endpoint
// fails, or the player cannot be found in the roster, it degrades to BuildSummary.
func (b *Builder) Individual(ctx context.Context, steamID, displayName string, recent opendota.RecentMatch) Report {
	detail, err := b.Matches.Match(ctx, recent.MatchID)
	if err != nil {
		slog.Warn("match detail unavailable; sending summary", slog.Int64("match_id", recent.MatchID), slog.Any("err", err), slog.String("component", "report"))
		return b.summary(ctx, displayName, recent)
	}
	player, ok := detail.PlayerBySlot(recent.PlayerSlot)
	if !ok {
		player, ok = detail.PlayerBySteamID(steamID)
	}
	if !ok {
		slog.Warn("player missing from match roster; sending summary", slog.Int64("match_id", recent.MatchID), slog.String("steam_id", steamID), slog.String("component", "report"))
		return b.summary(ctx, displayName, recent)
	}

	var names Names
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	g.Go(func() error {
		names.Hero = b.Catalog.HeroName(gctx, player.HeroID)
		names.HeroImage = b.Catalog.HeroImageURL(gctx, player.HeroID)
		return nil
	})
	for i, id := range player.Items() {
		g.Go(func() error {
			names.Items[i] = b.Catalog.ItemName(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return BuildIndividual(detail, player, names, displayName)
}

func (b *Builder) summary(ctx context.Context, displayName string, recent opendota.RecentMatch) Report {
	return BuildSummary(recent, b.Catalog.HeroName(ctx, recent.HeroID), b.Catalog.HeroImageURL(ctx, recent.HeroID), displayName)
}

// Combined renders the scoreboard of a match shared by participants. If the
// detail endpoint fails it degrades to BuildCombinedSummary.
func (b *Builder) Combined(ctx context.Context, matchID int64, participants []Participant) Report {
	detail, err := b.Matches.Match(ctx, matchID)
	if err != nil {
		slog.Warn("match detail unavailable; sending combined summary", slog.Int64("match_id", matchID), slog.Any("err", err), slog.String("component", "report"))
		heroIDs := make([]int, 0, len(participants))
		for _, p := range participants {
			heroIDs = append(heroIDs, p.Recent.HeroID)
		}
		return BuildCombinedSummary(matchID, participants, b.heroNames(ctx, heroIDs))
	}

	heroIDs := make([]int, 0, len(detail.Players))
	for _, p := range detail.Players {
		heroIDs = append(heroIDs, p.HeroID)
	}
	tracked := make([]string, 0, len(participants))
	for _, p := range participants {
		tracked = append(tracked, p.SteamID)
	}
	return BuildCombined(detail, tracked, b.heroNames(ctx, heroIDs))
}

// heroNames resolves ids concurrently.
func (b *Builder) heroNames(ctx context.Context, ids []int) map[int]string {
	var mu sync.Mutex
	out := make(map[int]string, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		g.Go(func() error {
			name := b.Catalog.HeroName(gctx, id)
			mu.Lock()
			out[id] = name
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
