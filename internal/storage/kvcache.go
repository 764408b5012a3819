// Package storage implements the local key-value cache replica on SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"harvester/internal/core"
	"harvester/internal/log"

	_ "modernc.org/sqlite"
)

// Keys of the persisted collections and the backup stamp.
const (
	KeyFarmers    = "hm_farmers"
	KeyExpenses   = "hm_expenses"
	KeyLastBackup = "hm_last_backup"
)

// ReplicaName identifies the cache in store errors and logs.
const ReplicaName = "local-cache"

// KVCache stores each collection as one JSON array under a fixed key. It is
// written on every mutation and read once at startup.
type KVCache struct {
	db     *sql.DB
	path   string
	logger *log.Logger
}

func NewKVCache(dbPath string) (*KVCache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &KVCache{
		db:     db,
		path:   dbPath,
		logger: log.WithComponent(log.ComponentStorage),
	}, nil
}

func (c *KVCache) Name() string { return ReplicaName }

func (c *KVCache) Path() string { return c.path }

func (c *KVCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Save writes both collections in one transaction.
func (c *KVCache) Save(ctx context.Context, doc core.Document) error {
	farmers := doc.Farmers
	if farmers == nil {
		farmers = []core.FarmerRecord{}
	}
	expenses := doc.Expenses
	if expenses == nil {
		expenses = []core.ExpenseRecord{}
	}
	farmersJSON, err := json.Marshal(farmers)
	if err != nil {
		return fmt.Errorf("encode farmers: %w", err)
	}
	expensesJSON, err := json.Marshal(expenses)
	if err != nil {
		return fmt.Errorf("encode expenses: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache write: %w", err)
	}
	defer tx.Rollback()

	if err := setTx(ctx, tx, KeyFarmers, string(farmersJSON)); err != nil {
		return err
	}
	if err := setTx(ctx, tx, KeyExpenses, string(expensesJSON)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache write: %w", err)
	}

	c.logger.DebugContext(ctx, "Cache written",
		log.FieldFarmers, len(farmers),
		log.FieldExpenses, len(expenses))
	return nil
}

// Load reads both collections. Missing keys read as empty collections; found
// reports whether anything had been saved before.
func (c *KVCache) Load(ctx context.Context) (doc core.Document, found bool, err error) {
	doc = core.Document{Farmers: []core.FarmerRecord{}, Expenses: []core.ExpenseRecord{}}

	raw, ok, err := c.Get(ctx, KeyFarmers)
	if err != nil {
		return doc, false, err
	}
	if ok {
		found = true
		if err := json.Unmarshal([]byte(raw), &doc.Farmers); err != nil {
			return core.Document{}, false, &core.PersistenceError{Replica: ReplicaName, Op: "load " + KeyFarmers, Err: err}
		}
	}

	raw, ok, err = c.Get(ctx, KeyExpenses)
	if err != nil {
		return doc, false, err
	}
	if ok {
		found = true
		if err := json.Unmarshal([]byte(raw), &doc.Expenses); err != nil {
			return core.Document{}, false, &core.PersistenceError{Replica: ReplicaName, Op: "load " + KeyExpenses, Err: err}
		}
	}

	if doc.Farmers == nil {
		doc.Farmers = []core.FarmerRecord{}
	}
	if doc.Expenses == nil {
		doc.Expenses = []core.ExpenseRecord{}
	}
	return doc, found, nil
}

func (c *KVCache) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &core.PersistenceError{Replica: ReplicaName, Op: "get " + key, Err: err}
	}
	return value, true, nil
}

func (c *KVCache) Set(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx, upsertKV, key, value)
	if err != nil {
		return &core.PersistenceError{Replica: ReplicaName, Op: "set " + key, Err: err}
	}
	return nil
}

// LastBackup returns when the data was last written to a database file or
// shared as a backup. The zero time means never.
func (c *KVCache) LastBackup(ctx context.Context) (time.Time, error) {
	raw, ok, err := c.Get(ctx, KeyLastBackup)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.logger.WarnContext(ctx, "Ignoring malformed backup stamp", log.FieldError, err)
		return time.Time{}, nil
	}
	return t, nil
}

func (c *KVCache) MarkBackup(ctx context.Context, at time.Time) error {
	return c.Set(ctx, KeyLastBackup, at.UTC().Format(time.RFC3339))
}

const upsertKV = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func setTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	if _, err := tx.ExecContext(ctx, upsertKV, key, value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
