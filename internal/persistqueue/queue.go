// Package persistqueue implements C9: a process-wide serialized access
// layer over the relational store. Reads go straight through the pooled
// *sql.DB (database/sql already bounds concurrent reads via
// SetMaxOpenConns, following the bulk-import-export-api db.go
// connection-pool texture); writes are serialized per shard key through a
// dedicated goroutine per shard, with deadlock retry and batching.
// Idempotent upserts are grounded directly on the teacher's
// internal/storage/postgres.go ON CONFLICT pattern.
package persistqueue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/deusflow/newsagg/internal/apperr"
)

// Default tuning, overridable via NewWithOptions.
const (
	DefaultMaxDeadlockRetries = 5
	DefaultBatchThreshold     = 10
	DefaultBatchWindow        = 200 * time.Millisecond
	DefaultHighWaterMark      = 500
	DefaultLowWaterMark       = 100
)

// Unit is one write, given a transaction to run in.
type Unit struct {
	ShardKey string
	BatchKey string // units sharing a non-empty BatchKey may coalesce
	Exec     func(tx *sql.Tx) error
	done     chan error
}

// Queue is the serialized write/read boundary over *sql.DB.
type Queue struct {
	db     *sql.DB
	Sq     sq.StatementBuilderType
	logger *slog.Logger

	maxDeadlockRetries int
	batchThreshold     int
	batchWindow        time.Duration
	highWater          int64
	lowWater           int64

	mu          sync.Mutex
	shardChans  map[string]chan *Unit
	batchBuffer map[string][]*Unit

	depth int64

	pausedMu sync.RWMutex
	paused   bool
}

// Open connects to databaseURL, configures the connection pool, and
// returns a ready Queue. It does not create schema; that is C10's job.
func Open(databaseURL string, maxOpenConns, maxIdleConns int, logger *slog.Logger) (*Queue, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("persistqueue: opening database: %w", err)
	}
	if maxOpenConns <= 0 {
		maxOpenConns = 20
	}
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("persistqueue: pinging database: %w", err)
	}

	return &Queue{
		db:                 db,
		Sq:                 sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger:             logger,
		maxDeadlockRetries: DefaultMaxDeadlockRetries,
		batchThreshold:     DefaultBatchThreshold,
		batchWindow:        DefaultBatchWindow,
		highWater:          DefaultHighWaterMark,
		lowWater:           DefaultLowWaterMark,
		shardChans:         make(map[string]chan *Unit),
		batchBuffer:        make(map[string][]*Unit),
	}, nil
}

// DB exposes the underlying pool for read-only queries; reads are not
// serialized, only bounded by the pool itself.
func (q *Queue) DB() *sql.DB { return q.db }

// Close closes the underlying pool.
func (q *Queue) Close() error { return q.db.Close() }

// IsPaused reports whether the write queue depth has crossed the
// high-water mark; C6 adapters should stop ingesting new items while true.
func (q *Queue) IsPaused() bool {
	q.pausedMu.RLock()
	defer q.pausedMu.RUnlock()
	return q.paused
}

func (q *Queue) updateBackpressure() {
	depth := atomic.LoadInt64(&q.depth)
	q.pausedMu.Lock()
	defer q.pausedMu.Unlock()
	if !q.paused && depth >= q.highWater {
		q.paused = true
		if q.logger != nil {
			q.logger.Warn("write queue over high-water mark, pausing ingestion", "depth", depth)
		}
	} else if q.paused && depth <= q.lowWater {
		q.paused = false
		if q.logger != nil {
			q.logger.Info("write queue back below low-water mark, resuming ingestion", "depth", depth)
		}
	}
}

func (q *Queue) shardChan(shardKey string) chan *Unit {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.shardChans[shardKey]
	if !ok {
		ch = make(chan *Unit, 256)
		q.shardChans[shardKey] = ch
		go q.runShard(shardKey, ch)
	}
	return ch
}

// runShard serializes every write for one shard key through a single
// goroutine, so writes to the same logical table never interleave while
// writes to different shards proceed independently.
func (q *Queue) runShard(shardKey string, ch chan *Unit) {
	for unit := range ch {
		atomic.AddInt64(&q.depth, -1)
		q.updateBackpressure()
		err := q.runWithDeadlockRetry(unit.Exec)
		unit.done <- err
	}
}

// Enqueue submits a write and blocks until it completes (or ctx is done),
// returning its result. Writes against the same ShardKey never run
// concurrently with each other. Units carrying a BatchKey bypass shard
// serialization entirely and instead coalesce with other pending units
// sharing that key (see enqueueBatched) — they are order-independent
// appends (e.g. extraction_attempts rows), so there is no same-row
// read-modify-write to serialize against.
func (q *Queue) Enqueue(ctx context.Context, unit Unit) error {
	if unit.BatchKey != "" {
		return q.enqueueBatched(ctx, unit)
	}

	unit.done = make(chan error, 1)
	atomic.AddInt64(&q.depth, 1)
	q.updateBackpressure()

	select {
	case q.shardChan(unit.ShardKey) <- &unit:
	case <-ctx.Done():
		atomic.AddInt64(&q.depth, -1)
		return apperr.ErrCancelled
	}

	select {
	case err := <-unit.done:
		return err
	case <-ctx.Done():
		return apperr.ErrCancelled
	}
}

// enqueueBatched buffers unit under its BatchKey and flushes the batch,
// as one transaction, once it reaches batchThreshold units or batchWindow
// has elapsed since the first unit in the batch, whichever comes first.
func (q *Queue) enqueueBatched(ctx context.Context, unit Unit) error {
	unit.done = make(chan error, 1)
	atomic.AddInt64(&q.depth, 1)
	q.updateBackpressure()

	batch, flush := q.appendToBatch(&unit)
	switch {
	case flush:
		go q.flushBatch(batch)
	case len(batch) == 1:
		key := unit.BatchKey
		time.AfterFunc(q.batchWindow, func() { q.flushBatchKey(key) })
	}

	select {
	case err := <-unit.done:
		return err
	case <-ctx.Done():
		return apperr.ErrCancelled
	}
}

// appendToBatch adds unit to its BatchKey's pending batch and reports
// whether the batch has reached batchThreshold and should flush now. When
// it flushes, the pending batch for that key is cleared.
func (q *Queue) appendToBatch(unit *Unit) (batch []*Unit, flush bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch = append(q.batchBuffer[unit.BatchKey], unit)
	if len(batch) >= q.batchThreshold {
		delete(q.batchBuffer, unit.BatchKey)
		return batch, true
	}
	q.batchBuffer[unit.BatchKey] = batch
	return batch, false
}

// flushBatchKey flushes whatever is currently pending for key, called
// after batchWindow elapses from a batch's first unit.
func (q *Queue) flushBatchKey(key string) {
	q.mu.Lock()
	batch := q.batchBuffer[key]
	delete(q.batchBuffer, key)
	q.mu.Unlock()
	if len(batch) > 0 {
		q.flushBatch(batch)
	}
}

// flushBatch executes every unit in batch inside a single transaction and
// fans the resulting error (or nil) out to each unit's waiter.
func (q *Queue) flushBatch(batch []*Unit) {
	err := q.runWithDeadlockRetry(func(tx *sql.Tx) error {
		for _, u := range batch {
			if execErr := u.Exec(tx); execErr != nil {
				return execErr
			}
		}
		return nil
	})
	atomic.AddInt64(&q.depth, -int64(len(batch)))
	q.updateBackpressure()
	for _, u := range batch {
		u.done <- err
	}
}

// runWithDeadlockRetry runs exec inside a transaction, retrying the whole
// transaction on a Postgres deadlock or lock-not-available error, shared
// by both the single-unit and batched write paths.
func (q *Queue) runWithDeadlockRetry(exec func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= q.maxDeadlockRetries; attempt++ {
		tx, err := q.db.Begin()
		if err != nil {
			return fmt.Errorf("persistqueue: begin tx: %w", err)
		}
		execErr := exec(tx)
		if execErr != nil {
			tx.Rollback()
			if isDeadlock(execErr) {
				lastErr = execErr
				if attempt < q.maxDeadlockRetries {
					time.Sleep(backoff(attempt))
				}
				continue
			}
			return execErr
		}
		if err := tx.Commit(); err != nil {
			if isDeadlock(err) {
				lastErr = err
				if attempt < q.maxDeadlockRetries {
					time.Sleep(backoff(attempt))
				}
				continue
			}
			return fmt.Errorf("persistqueue: commit: %w", err)
		}
		return nil
	}
	return &apperr.DeadlockExhaustedError{Attempts: q.maxDeadlockRetries, Cause: lastErr}
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * 100 * time.Millisecond
}

// isDeadlock recognizes Postgres deadlock (40P01) and lock_not_available
// (55P03) SQLSTATE codes reported by lib/pq.
func isDeadlock(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "40P01", "55P03":
			return true
		}
	}
	return false
}
