package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// Cache keys mirror the two-slot layout the web client keeps: a serialized
// user record plus a string marker.
const (
	cacheKeyUser            = "user"
	cacheKeyIsAuthenticated = "isAuthenticated"
	cacheValueTrue          = "true"
)

// BunSessionCache persists the session mirror in the session_cache table so
// it survives restarts. Writes are guarded by the operation sequence: a
// write carrying a lower sequence than the last applied one is dropped,
// never an error.
type BunSessionCache struct {
	db     *bun.DB
	logger Logger

	seq     atomic.Uint64
	mu      sync.Mutex
	applied uint64
	loaded  bool
}

// NewBunSessionCache creates a cache backed by the given bun handle
func NewBunSessionCache(db *bun.DB) *BunSessionCache {
	return &BunSessionCache{
		db:     db,
		logger: defLogger{},
	}
}

// WithLogger sets the cache logger
func (c *BunSessionCache) WithLogger(logger Logger) *BunSessionCache {
	c.logger = logger
	return c
}

// Begin hands out the sequence number for a new cache-writing operation
func (c *BunSessionCache) Begin() uint64 {
	return c.seq.Add(1)
}

// Store writes the user record and marks the session authenticated. Stale
// writes are silently dropped.
func (c *BunSessionCache) Store(ctx context.Context, seq uint64, user *User) error {
	if user == nil {
		return c.Clear(ctx, seq)
	}

	payload, err := json.Marshal(user)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to serialize session user")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.claim(ctx, seq) {
		c.logger.Debug("dropping stale session store: seq %d < applied %d", seq, c.applied)
		return nil
	}

	entries := []CacheEntry{
		{Key: cacheKeyUser, Value: string(payload), Seq: int64(seq)},
		{Key: cacheKeyIsAuthenticated, Value: cacheValueTrue, Seq: int64(seq)},
	}

	_, err = c.db.NewInsert().
		Model(&entries).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("seq = EXCLUDED.seq").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to persist session cache")
	}

	return nil
}

// Clear removes both cache slots. Like Store, a stale clear is dropped.
func (c *BunSessionCache) Clear(ctx context.Context, seq uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.claim(ctx, seq) {
		c.logger.Debug("dropping stale session clear: seq %d < applied %d", seq, c.applied)
		return nil
	}

	_, err := c.db.NewDelete().
		Model((*CacheEntry)(nil)).
		Where("key IN (?)", bun.In([]string{cacheKeyUser, cacheKeyIsAuthenticated})).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to clear session cache")
	}

	return nil
}

// Read returns the cached user record, if any
func (c *BunSessionCache) Read(ctx context.Context) (*User, bool) {
	entry := new(CacheEntry)
	err := c.db.NewSelect().
		Model(entry).
		Where("key = ?", cacheKeyUser).
		Scan(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn("session cache read failed: %v", err)
		}
		return nil, false
	}

	user := new(User)
	if err := json.Unmarshal([]byte(entry.Value), user); err != nil {
		c.logger.Warn("session cache holds malformed user payload: %v", err)
		return nil, false
	}

	return user, true
}

// IsAuthenticated reports whether the authenticated marker is set
func (c *BunSessionCache) IsAuthenticated(ctx context.Context) bool {
	entry := new(CacheEntry)
	err := c.db.NewSelect().
		Model(entry).
		Where("key = ?", cacheKeyIsAuthenticated).
		Scan(ctx)
	if err != nil {
		return false
	}
	return entry.Value == cacheValueTrue
}

// claim restores the applied watermark from persisted rows on first use,
// then checks and advances it. Callers hold c.mu.
func (c *BunSessionCache) claim(ctx context.Context, seq uint64) bool {
	if !c.loaded {
		c.loaded = true
		var persisted int64
		err := c.db.NewSelect().
			Model((*CacheEntry)(nil)).
			ColumnExpr("COALESCE(MAX(seq), 0)").
			Scan(ctx, &persisted)
		if err == nil && persisted > 0 {
			c.applied = uint64(persisted)
			if c.seq.Load() < c.applied {
				c.seq.Store(c.applied)
			}
		}
	}

	if seq < c.applied {
		return false
	}
	c.applied = seq
	return true
}

// MemorySessionCache is the in-process SessionCache. It backs tests and
// deployments that do not want the session mirror on disk.
type MemorySessionCache struct {
	seq     atomic.Uint64
	mu      sync.Mutex
	applied uint64
	user    *User
	authed  bool
}

// NewMemorySessionCache creates an empty in-memory cache
func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{}
}

// Begin hands out the sequence number for a new cache-writing operation
func (c *MemorySessionCache) Begin() uint64 {
	return c.seq.Add(1)
}

// Store writes the user record and marks the session authenticated
func (c *MemorySessionCache) Store(_ context.Context, seq uint64, user *User) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq < c.applied {
		return nil
	}
	c.applied = seq

	if user == nil {
		c.user = nil
		c.authed = false
		return nil
	}

	clone := *user
	c.user = &clone
	c.authed = true
	return nil
}

// Clear removes both cache slots
func (c *MemorySessionCache) Clear(_ context.Context, seq uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq < c.applied {
		return nil
	}
	c.applied = seq

	c.user = nil
	c.authed = false
	return nil
}

// Read returns the cached user record, if any
func (c *MemorySessionCache) Read(_ context.Context) (*User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.user == nil {
		return nil, false
	}
	clone := *c.user
	return &clone, true
}

// IsAuthenticated reports whether the authenticated marker is set
func (c *MemorySessionCache) IsAuthenticated(_ context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed
}
