package etl

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/fragrance-etl/internal/domain/perfume"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/pkg/errors"
)

// LookupStore is an optional shared cache tier between the in-process maps
// and the repository.  Keys are normalized values.
type LookupStore interface {
	Get(ctx context.Context, table perfume.LookupTable, key string) (id string, found bool, err error)
	Set(ctx context.Context, table perfume.LookupTable, key, id string) error
}

// LookupStats counts how resolutions were served.
type LookupStats struct {
	Hits    int64 `json:"hits"`
	L2Hits  int64 `json:"l2_hits"`
	Found   int64 `json:"found"`
	Created int64 `json:"created"`
}

// LookupCache resolves brand, concentration and manufacturer text to row IDs
// with lookup-or-create semantics.  It is safe for concurrent use; concurrent
// resolutions of the same key share one round trip.
type LookupCache struct {
	repo   perfume.LookupRepository
	l2     LookupStore
	logger logging.Logger

	mu    sync.RWMutex
	ids   map[perfume.LookupTable]map[string]string
	group singleflight.Group

	hits, l2Hits, found, created atomic.Int64
}

// NewLookupCache creates a cache over repo.  l2 may be nil.
func NewLookupCache(repo perfume.LookupRepository, l2 LookupStore, logger logging.Logger) *LookupCache {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ids := make(map[perfume.LookupTable]map[string]string, len(perfume.LookupTables))
	for _, t := range perfume.LookupTables {
		ids[t] = make(map[string]string)
	}
	return &LookupCache{repo: repo, l2: l2, logger: logger.Named("lookup"), ids: ids}
}

// Prefetch warms the in-process maps with every existing row.
func (c *LookupCache) Prefetch(ctx context.Context) error {
	for _, t := range perfume.LookupTables {
		rows, err := c.repo.ListAll(ctx, t)
		if err != nil {
			return errors.Wrapf(err, errors.ErrCodeLookupFailed, "prefetch %s", t)
		}
		c.mu.Lock()
		m := c.tableMap(t)
		for name, id := range rows {
			if key := perfume.Normalize(name); key != "" {
				m[key] = id
			}
		}
		size := len(m)
		c.mu.Unlock()
		c.logger.Debug("lookup table prefetched", logging.String(logging.FieldTable, string(t)), logging.Int("rows", size))
	}
	return nil
}

// Resolve returns the ID for value in table, creating the row when absent.
// Empty values and the "unknown" sentinel resolve to "" without error.
func (c *LookupCache) Resolve(ctx context.Context, table perfume.LookupTable, value string) (string, error) {
	key := perfume.Normalize(value)
	if key == "" || key == "unknown" {
		return "", nil
	}
	if id, ok := c.cached(table, key); ok {
		c.hits.Add(1)
		return id, nil
	}

	v, err, _ := c.group.Do(string(table)+"\x00"+key, func() (interface{}, error) {
		if id, ok := c.cached(table, key); ok {
			c.hits.Add(1)
			return id, nil
		}
		id, err := c.load(ctx, table, key, value)
		if err != nil {
			return "", err
		}
		c.store(table, key, id)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *LookupCache) load(ctx context.Context, table perfume.LookupTable, key, value string) (string, error) {
	if c.l2 != nil {
		id, ok, err := c.l2.Get(ctx, table, key)
		switch {
		case err != nil:
			c.logger.Warn("lookup store read failed", logging.String(logging.FieldTable, string(table)), logging.Err(err))
		case ok:
			c.l2Hits.Add(1)
			return id, nil
		}
	}

	id, ok, err := c.repo.FindID(ctx, table, value)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrCodeLookupFailed, "find %s %q", table, value)
	}
	if ok {
		c.found.Add(1)
		c.remember(ctx, table, key, id)
		return id, nil
	}

	slug := ""
	if table.HasSlug() {
		slug = perfume.Slugify(value)
	}
	id, err = c.repo.Create(ctx, table, value, slug)
	if err != nil {
		c.logger.Warn("lookup insert failed, re-reading",
			logging.String(logging.FieldTable, string(table)),
			logging.String("value", value),
			logging.Err(err))
		id, ok, ferr := c.repo.FindID(ctx, table, value)
		if ferr != nil || !ok {
			return "", errors.Wrapf(err, errors.ErrCodeLookupNotFound, "resolve %s %q", table, value)
		}
		c.found.Add(1)
		c.remember(ctx, table, key, id)
		return id, nil
	}
	c.created.Add(1)
	c.remember(ctx, table, key, id)
	return id, nil
}

func (c *LookupCache) remember(ctx context.Context, table perfume.LookupTable, key, id string) {
	if c.l2 == nil {
		return
	}
	if err := c.l2.Set(ctx, table, key, id); err != nil {
		c.logger.Warn("lookup store write failed", logging.String(logging.FieldTable, string(table)), logging.Err(err))
	}
}

func (c *LookupCache) cached(table perfume.LookupTable, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[table][key]
	return id, ok
}

func (c *LookupCache) store(table perfume.LookupTable, key, id string) {
	c.mu.Lock()
	c.tableMap(table)[key] = id
	c.mu.Unlock()
}

// tableMap must be called with mu held.
func (c *LookupCache) tableMap(t perfume.LookupTable) map[string]string {
	m, ok := c.ids[t]
	if !ok {
		m = make(map[string]string)
		c.ids[t] = m
	}
	return m
}

// Len returns the number of cached keys of table.
func (c *LookupCache) Len(table perfume.LookupTable) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids[table])
}

// Stats returns a snapshot of the resolution counters.
func (c *LookupCache) Stats() LookupStats {
	return LookupStats{
		Hits:    c.hits.Load(),
		L2Hits:  c.l2Hits.Load(),
		Found:   c.found.Load(),
		Created: c.created.Load(),
	}
}
