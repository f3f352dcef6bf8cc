// Package sqlite implements the Tally storage backend on SQLite.
//
// SQLite is the query engine; one JSONL file per table in DataDir is the
// source of truth. Attach recreates the database from the JSONL files and
// every write is persisted back according to the configured sync strategy.
// The Backend implements all four store interfaces of pkg/types.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apex/log"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/tally/pkg/types"
)

const dbFileName = "tally.db"

var (
	_ types.RelationshipWriter = (*Backend)(nil)
	_ types.TermMetaStore      = (*Backend)(nil)
	_ types.TaxonomyRegistry   = (*Backend)(nil)
	_ types.TermStore          = (*Backend)(nil)
)

// Backend stores taxonomies, terms, term meta and relationships.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB

	syncStrategy  string         // effective sync strategy: immediate, on_close, batch
	batchSize     int            // number of queued tables before a batch flush
	batchInterval time.Duration  // time between batch flushes
	pendingWrites []pendingWrite // tables whose JSONL file is stale
	batchTimer    *time.Timer    // timer for interval-based batch flush
	batchMu       sync.Mutex     // protects pendingWrites and batchTimer
}

// pendingWrite is a deferred JSONL rewrite of one table.
type pendingWrite struct {
	tableName string
	persist   func() error
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach initializes the backend with the given configuration.
// Creates DataDir if it does not exist, builds a fresh SQLite database and
// loads every JSONL file into it.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	config.DataDir = dataDir

	// The database is a cache of the JSONL files; start from scratch.
	dbPath := filepath.Join(dataDir, dbFileName)
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return err
	}
	// Queries never nest; one connection serializes writers.
	db.SetMaxOpenConns(1)

	for _, ddl := range append(append([]string{}, schemaDDL...), indexDDL...) {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	if err := initJSONLFiles(dataDir); err != nil {
		db.Close()
		return err
	}

	if err := loadAllJSONL(db, dataDir); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	b.db = db
	b.config = config

	b.syncStrategy = config.SQLite.GetSyncStrategy()
	b.batchSize = config.SQLite.GetBatchSize()
	b.batchInterval = time.Duration(config.SQLite.GetBatchInterval()) * time.Second
	b.pendingWrites = nil

	b.attached = true

	if b.syncStrategy == types.SyncBatch && b.batchInterval > 0 {
		b.startBatchTimer()
	}

	log.WithFields(log.Fields{
		"data_dir": dataDir,
		"sync":     b.syncStrategy,
	}).Debug("sqlite backend attached")
	return nil
}

// Detach flushes pending JSONL writes and closes the database.
// After Detach, all operations return ErrBackendDetached.
// Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	b.stopBatchTimer()

	if err := b.flushPendingWritesLocked(); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	log.WithField("data_dir", b.config.DataDir).Debug("sqlite backend detached")
	return nil
}

// Config returns the configuration the backend was attached with.
func (b *Backend) Config() types.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

// readLock takes the read lock and fails when the backend is detached.
// The caller must call the returned func when the lock was granted.
func (b *Backend) readLock() (func(), error) {
	b.mu.RLock()
	if !b.attached {
		b.mu.RUnlock()
		return nil, types.ErrBackendDetached
	}
	return b.mu.RUnlock, nil
}

// writeLock takes the write lock and fails when the backend is detached.
// Every accessor that changes a table holds it through persist, so JSONL
// snapshots are taken and renamed in the same order as the writes.
func (b *Backend) writeLock() (func(), error) {
	b.mu.Lock()
	if !b.attached {
		b.mu.Unlock()
		return nil, types.ErrBackendDetached
	}
	return b.mu.Unlock, nil
}

// persist writes the table's JSONL file now or queues the write, depending
// on the sync strategy. The caller must hold the write lock.
func (b *Backend) persist(tableName string) error {
	write := func() error {
		return persistTableJSONL(b.db, b.config.DataDir, tableName)
	}
	if b.shouldPersistImmediately() {
		if err := write(); err != nil {
			return fmt.Errorf("persisting %s.jsonl: %w", tableName, err)
		}
		return nil
	}
	b.queueWrite(tableName, write)
	return nil
}

// shouldPersistImmediately reports whether JSONL writes happen on every change.
func (b *Backend) shouldPersistImmediately() bool {
	return b.syncStrategy == types.SyncImmediate || b.syncStrategy == ""
}

// queueWrite marks the table stale. Each table is queued at most once
// since a flush rewrites the whole file. For the batch strategy, reaching
// batchSize queued tables flushes synchronously.
func (b *Backend) queueWrite(tableName string, persist func() error) {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	for _, pw := range b.pendingWrites {
		if pw.tableName == tableName {
			return
		}
	}
	b.pendingWrites = append(b.pendingWrites, pendingWrite{
		tableName: tableName,
		persist:   persist,
	})

	if b.syncStrategy == types.SyncBatch && b.batchSize > 0 && len(b.pendingWrites) >= b.batchSize {
		if err := b.flushPendingWritesBatchLocked(); err != nil {
			log.WithError(err).Warn("batch flush failed")
		}
	}
}

// flushPendingWritesLocked flushes all pending writes to JSONL files.
// The caller must hold b.mu.
func (b *Backend) flushPendingWritesLocked() error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	return b.flushPendingWritesBatchLocked()
}

// flushPendingWritesBatchLocked executes all pending writes.
// The caller must hold b.batchMu.
func (b *Backend) flushPendingWritesBatchLocked() error {
	if len(b.pendingWrites) == 0 {
		return nil
	}

	for i, pw := range b.pendingWrites {
		if err := pw.persist(); err != nil {
			b.pendingWrites = b.pendingWrites[i:]
			return fmt.Errorf("flush %s: %w", pw.tableName, err)
		}
	}

	b.pendingWrites = nil
	return nil
}

// startBatchTimer starts the batch interval timer for periodic flushes.
func (b *Backend) startBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		return
	}

	b.batchTimer = time.AfterFunc(b.batchInterval, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if !b.attached {
			return
		}

		if err := b.flushPendingWritesLocked(); err != nil {
			log.WithError(err).Warn("batch flush failed")
		}

		b.batchMu.Lock()
		if b.batchTimer != nil && b.attached {
			b.batchTimer.Reset(b.batchInterval)
		}
		b.batchMu.Unlock()
	})
}

// stopBatchTimer stops the batch interval timer if running.
func (b *Backend) stopBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		b.batchTimer.Stop()
		b.batchTimer = nil
	}
}

// Flush writes every pending JSONL change now, whatever the sync strategy.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrBackendDetached
	}
	return b.flushPendingWritesLocked()
}
