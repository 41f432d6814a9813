package opendota

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Placeholders returned when a catalog lookup cannot be resolved.
const (
	UnknownRole = "Unknown Role"
	UnknownItem = "Unknown Item"
	EmptySlot   = "Empty Slot"
)

const heroImageBase = "https://cdn.cloudflare.steamstatic.com/apps/dota2/images/dota_react/heroes/"

type catalogCache struct {
	ttl   time.Duration
	group singleflight.Group

	mu       sync.RWMutex
	heroes   map[int]Hero
	heroesAt time.Time
	items    map[int]string
	itemsAt  time.Time
}

func newCatalogCache(ttl time.Duration) *catalogCache {
	return &catalogCache{ttl: ttl}
}

func (c *catalogCache) fresh(at time.Time) bool {
	return !at.IsZero() && time.Since(at) < c.ttl
}

// heroCatalog returns the cached hero catalog, refreshing it when stale.
// Concurrent refreshes share one request.
func (c *Client) heroCatalog(ctx context.Context) (map[int]Hero, error) {
	c.catalog.mu.RLock()
	if c.catalog.fresh(c.catalog.heroesAt) {
		h := c.catalog.heroes
		c.catalog.mu.RUnlock()
		return h, nil
	}
	c.catalog.mu.RUnlock()

	v, err, _ := c.catalog.group.Do("heroes", func() (any, error) {
		var list []Hero
		if err := c.do(ctx, http.MethodGet, "heroes", "/heroes", &list); err != nil {
			return nil, err
		}
		m := make(map[int]Hero, len(list))
		for _, h := range list {
			m[h.ID] = h
		}
		c.catalog.mu.Lock()
		c.catalog.heroes, c.catalog.heroesAt = m, time.Now()
		c.catalog.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[int]Hero), nil
}

func (c *Client) itemCatalog(ctx context.Context) (map[int]string, error) {
	c.catalog.mu.RLock()
	if c.catalog.fresh(c.catalog.itemsAt) {
		it := c.catalog.items
		c.catalog.mu.RUnlock()
		return it, nil
	}
	c.catalog.mu.RUnlock()

	v, err, _ := c.catalog.group.Do("items", func() (any, error) {
		// keyed by internal item name
		var raw map[string]Item
		if err := c.do(ctx, http.MethodGet, "items", "/constants/items", &raw); err != nil {
			return nil, err
		}
		m := make(map[int]string, len(raw))
		for _, it := range raw {
			if it.DName != "" {
				m[it.ID] = it.DName
			}
		}
		c.catalog.mu.Lock()
		c.catalog.items, c.catalog.itemsAt = m, time.Now()
		c.catalog.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[int]string), nil
}

// HeroName returns the localized hero name, or UnknownRole if it cannot be resolved.
func (c *Client) HeroName(ctx context.Context, heroID int) string {
	heroes, err := c.heroCatalog(ctx)
	if err != nil {
		slog.Warn("hero catalog unavailable", slog.Int("hero_id", heroID), slog.Any("err", err), slog.String("component", "opendota"))
		return UnknownRole
	}
	if h, ok := heroes[heroID]; ok && h.LocalizedName != "" {
		return h.LocalizedName
	}
	return UnknownRole
}

// HeroImageURL returns the portrait URL for heroID, or "" if unknown.
func (c *Client) HeroImageURL(ctx context.Context, heroID int) string {
	heroes, err := c.heroCatalog(ctx)
	if err != nil {
		return ""
	}
	h, ok := heroes[heroID]
	if !ok || h.Name == "" {
		return ""
	}
	return heroImageBase + strings.TrimPrefix(h.Name, "npc_dota_hero_") + ".png"
}

// ItemName returns the display name for itemID. Slot id 0 is EmptySlot; anything
// that cannot be resolved is UnknownItem.
func (c *Client) ItemName(ctx context.Context, itemID int) string {
	if itemID == 0 {
		return EmptySlot
	}
	items, err := c.itemCatalog(ctx)
	if err != nil {
		slog.Warn("item catalog unavailable", slog.Int("item_id", itemID), slog.Any("err", err), slog.String("component", "opendota"))
		return UnknownItem
	}
	if name, ok := items[itemID]; ok {
		return name
	}
	return UnknownItem
}
