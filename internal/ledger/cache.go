package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Cache answers "most recent N entries for a strategy" without re-reading
// the whole ledger. Entries are immutable once mined, so decoded entries
// are cached forever; the per-author id list is cached for the process
// lifetime, which intentionally trades freshness for call volume.
type Cache struct {
	contract *Contract

	mu      sync.Mutex
	ids     map[common.Address][]*big.Int
	entries map[string]*Entry
}

// NewCache wraps the bound contract.
func NewCache(contract *Contract) (*Cache, error) {
	if contract == nil {
		return nil, errors.New("contract is required")
	}
	return &Cache{
		contract: contract,
		ids:      make(map[common.Address][]*big.Int),
		entries:  make(map[string]*Entry),
	}, nil
}

// RecentEntries returns up to count entries posted by author under the
// exact strategy label, oldest first. Missing authors and non-matching
// strategies yield an empty slice, not an error.
func (c *Cache) RecentEntries(ctx context.Context, author common.Address, strategy string, count int) ([]Entry, error) {
	if count <= 0 {
		return nil, nil
	}
	ids, err := c.authorIDs(ctx, author)
	if err != nil {
		return nil, err
	}
	var matched []Entry
	for i := len(ids) - 1; i >= 0 && len(matched) < count; i-- {
		entry, err := c.entry(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		if entry.Record.Strategy == strategy {
			matched = append(matched, *entry)
		}
	}
	// Walked newest-to-oldest; callers want chronological order.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched, nil
}

func (c *Cache) authorIDs(ctx context.Context, author common.Address) ([]*big.Int, error) {
	c.mu.Lock()
	cached, ok := c.ids[author]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}
	ids, err := c.contract.IDsByAuthor(ctx, author)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.ids[author] = ids
	c.mu.Unlock()
	return ids, nil
}

func (c *Cache) entry(ctx context.Context, id *big.Int) (*Entry, error) {
	key := id.String()
	c.mu.Lock()
	cached, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}
	entry, err := c.contract.EntryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return entry, nil
}
