// Package titlecache implements the client-side Title Cache: a small
// SQLite-backed store of previously resolved titles, keyed by
// (service_tag, id), the same identity service.Title.CacheKey uses.
// Restoring this feature from the original title_cache_* settings
// avoids re-resolving a title's metadata on every run within its
// retention window.
package titlecache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ddevcap/unshackle-core/service"
)

const schema = `
CREATE TABLE IF NOT EXISTS titles (
	service_tag TEXT NOT NULL,
	id          TEXT NOT NULL,
	payload     BLOB NOT NULL,
	cached_at   INTEGER NOT NULL,
	PRIMARY KEY (service_tag, id)
);
`

// Config mirrors the original title_cache_* settings.
type Config struct {
	Enabled       bool
	TTL           time.Duration
	MaxRetention  time.Duration
}

// DefaultConfig matches the upstream defaults: 30 minutes fresh, 24 hours
// maximum retention before a row is pruned outright.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		TTL:          30 * time.Minute,
		MaxRetention: 24 * time.Hour,
	}
}

// Cache is a SQLite-backed cache of resolved titles.
type Cache struct {
	db  *sql.DB
	cfg Config
}

// Open opens (creating if needed) the SQLite database at path and ensures
// its schema exists. Pass ":memory:" for an ephemeral cache.
func Open(path string, cfg Config) (*Cache, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("titlecache: opening %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("titlecache: creating schema: %w", err)
	}
	return &Cache{db: db, cfg: cfg}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Put stores title under (serviceTag, title.ID), timestamped now.
func (c *Cache) Put(ctx context.Context, serviceTag string, title service.Title) error {
	if !c.cfg.Enabled {
		return nil
	}
	payload, err := json.Marshal(title)
	if err != nil {
		return fmt.Errorf("titlecache: encoding title: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO titles (service_tag, id, payload, cached_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(service_tag, id) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at`,
		serviceTag, title.ID, payload, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("titlecache: writing title: %w", err)
	}
	return nil
}

// Get returns the cached title for (serviceTag, id) if present and within
// the TTL window. A row older than MaxRetention is deleted here and
// reported as a miss; a row older than the TTL but within MaxRetention is
// reported as a miss and left in place.
func (c *Cache) Get(ctx context.Context, serviceTag, id string) (service.Title, bool, error) {
	var title service.Title
	if !c.cfg.Enabled {
		return title, false, nil
	}

	var payload []byte
	var cachedAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, cached_at FROM titles WHERE service_tag = ? AND id = ?`,
		serviceTag, id,
	).Scan(&payload, &cachedAt)
	if err == sql.ErrNoRows {
		return title, false, nil
	}
	if err != nil {
		return title, false, fmt.Errorf("titlecache: reading title: %w", err)
	}

	age := time.Since(time.Unix(cachedAt, 0))
	if age > c.cfg.MaxRetention {
		_, _ = c.db.ExecContext(ctx, `DELETE FROM titles WHERE service_tag = ? AND id = ?`, serviceTag, id)
		return title, false, nil
	}
	if age > c.cfg.TTL {
		return title, false, nil
	}

	if err := json.Unmarshal(payload, &title); err != nil {
		return title, false, fmt.Errorf("titlecache: decoding title: %w", err)
	}
	return title, true, nil
}

// Prune deletes every row older than MaxRetention and reports how many
// rows were removed.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-c.cfg.MaxRetention).Unix()
	res, err := c.db.ExecContext(ctx, `DELETE FROM titles WHERE cached_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("titlecache: pruning: %w", err)
	}
	return res.RowsAffected()
}
