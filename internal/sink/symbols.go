package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/trinistocks/pipeline/internal/database"
)

const symbolsKey = "symbols"

// SymbolIndex maps symbol codes to listing ids. The map is read from
// listed_equities once and reused until it expires or the listing changes.
type SymbolIndex struct {
	db    *database.DB
	cache *cache.Cache
}

// NewSymbolIndex creates an index whose snapshot lives for ttl.
func NewSymbolIndex(db *database.DB, ttl time.Duration) *SymbolIndex {
	return &SymbolIndex{db: db, cache: cache.New(ttl, 2*ttl)}
}

// Lookup returns the current code → id map.
func (x *SymbolIndex) Lookup(ctx context.Context) (map[string]int64, error) {
	if cached, ok := x.cache.Get(symbolsKey); ok {
		return cached.(map[string]int64), nil
	}

	var rows []struct {
		ID     int64  `db:"symbol_id"`
		Symbol string `db:"symbol"`
	}
	if err := x.db.Conn().SelectContext(ctx, &rows, `SELECT symbol_id, symbol FROM listed_equities`); err != nil {
		return nil, fmt.Errorf("failed to load symbol ids: %w", err)
	}

	ids := make(map[string]int64, len(rows))
	for _, r := range rows {
		ids[r.Symbol] = r.ID
	}
	x.cache.SetDefault(symbolsKey, ids)
	return ids, nil
}

// Invalidate drops the snapshot so the next lookup rereads the listing.
func (x *SymbolIndex) Invalidate() {
	x.cache.Delete(symbolsKey)
}
