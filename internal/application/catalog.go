package application

import (
	"context"
	"sync"

	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/ports"
	"go.uber.org/zap"
)

const DefaultCatalogPageSize = 20

// Catalog is the local cache of items the user can give away. Provider
// failures are logged and surface as an empty catalog.
type Catalog struct {
	provider ports.GiftCatalog
	pageSize int
	logger   *zap.Logger

	mu       sync.RWMutex
	items    []domain.TransferableItem
	hasNext  bool
	nextPage int
	loaded   bool
	// removed holds given-away IDs so an in-flight fetch cannot add them back.
	removed map[domain.ItemID]struct{}
}

func NewCatalog(provider ports.GiftCatalog, pageSize int, logger *zap.Logger) *Catalog {
	if pageSize <= 0 {
		pageSize = DefaultCatalogPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Catalog{provider: provider, pageSize: pageSize, logger: logger, removed: map[domain.ItemID]struct{}{}}
}

// Load replaces the cache with the first page.
func (c *Catalog) Load(ctx context.Context) []domain.TransferableItem {
	page := c.fetch(ctx, 0)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	c.appendLocked(page.Items)
	c.hasNext = page.HasNextPage
	c.nextPage = page.NextPage
	c.loaded = true

	return cloneItems(c.items)
}

// LoadMore appends the next page when there is one.
func (c *Catalog) LoadMore(ctx context.Context) []domain.TransferableItem {
	c.mu.RLock()
	hasNext, nextPage, loaded := c.hasNext, c.nextPage, c.loaded
	c.mu.RUnlock()

	if !loaded {
		return c.Load(ctx)
	}
	if !hasNext {
		return c.Items()
	}

	page := c.fetch(ctx, nextPage)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.appendLocked(page.Items)
	c.hasNext = page.HasNextPage && page.NextPage > nextPage
	c.nextPage = page.NextPage

	return cloneItems(c.items)
}

func (c *Catalog) fetch(ctx context.Context, page int) domain.CatalogPage {
	if c.provider == nil {
		return domain.CatalogPage{}
	}

	result, err := c.provider.List(ctx, page, c.pageSize)
	if err != nil {
		c.logger.Warn("load give-away items", zap.Int("page", page), zap.Error(err))
		return domain.CatalogPage{}
	}

	return result
}

func (c *Catalog) appendLocked(items []domain.TransferableItem) {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			c.logger.Debug("skip invalid catalog item", zap.String("item_id", string(item.ID)), zap.Error(err))
			continue
		}
		if _, gone := c.removed[item.ID]; gone {
			continue
		}
		if c.indexLocked(item.ID) >= 0 {
			continue
		}
		c.items = append(c.items, item)
	}
}

func (c *Catalog) indexLocked(id domain.ItemID) int {
	for i, item := range c.items {
		if item.ID == id {
			return i
		}
	}

	return -1
}

func (c *Catalog) Items() []domain.TransferableItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return cloneItems(c.items)
}

func (c *Catalog) Find(id domain.ItemID) (domain.TransferableItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexLocked(id); i >= 0 {
		return c.items[i], true
	}

	return domain.TransferableItem{}, false
}

func (c *Catalog) Contains(id domain.ItemID) bool {
	_, ok := c.Find(id)
	return ok
}

// Remove drops an item after it has been given away. Later pages never
// bring it back.
func (c *Catalog) Remove(id domain.ItemID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removed[id] = struct{}{}
	i := c.indexLocked(id)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)

	return true
}

// Removed reports whether id was given away during this session.
func (c *Catalog) Removed(id domain.ItemID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, gone := c.removed[id]
	return gone
}

func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.loaded
}

func (c *Catalog) HasNextPage() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.hasNext
}

func cloneItems(items []domain.TransferableItem) []domain.TransferableItem {
	return append([]domain.TransferableItem{}, items...)
}
