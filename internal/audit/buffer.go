package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"crudgate/internal/store"
)

// Transactor is the part of *store.Store the buffer flushes through.
type Transactor interface {
	ExecuteTransaction(ctx context.Context, fn store.TxFunc) error
}

var columns = []string{"request_id", "event_type", "actor", "route", "ip", "detail", "created_at"}

// Buffer collects events in memory and periodically flushes them to
// _audit_events in a single batch insert.
type Buffer struct {
	mu      sync.Mutex
	events  []Event
	db      Transactor
	logger  *zap.Logger
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	stop    sync.Once
}

// NewBuffer creates a buffer that flushes on a timer or when full.
func NewBuffer(db Transactor, logger *zap.Logger, maxSize int, flushInterval time.Duration) *Buffer {
	if maxSize <= 0 {
		maxSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Buffer{
		db:      db,
		logger:  logger,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	b.ticker = time.NewTicker(flushInterval)
	go b.run()
	return b
}

func (b *Buffer) run() {
	for {
		select {
		case <-b.done:
			return
		case <-b.ticker.C:
			b.Flush()
		}
	}
}

// Record adds an event. When the buffer reaches maxSize a flush starts in
// the background.
func (b *Buffer) Record(_ context.Context, e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	b.mu.Lock()
	b.events = append(b.events, e)
	shouldFlush := len(b.events) >= b.maxSize
	b.mu.Unlock()
	if shouldFlush {
		go b.Flush()
	}
}

// Pending reports how many events are waiting for the next flush.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush writes all buffered events in one transaction. Failures are logged
// and the batch is dropped.
func (b *Buffer) Flush() {
	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.events
	b.events = nil
	b.mu.Unlock()

	sql, args := insertSQL(batch)
	err := b.db.ExecuteTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Query(ctx, "SET LOCAL synchronous_commit = off"); err != nil {
			return fmt.Errorf("set synchronous_commit: %w", err)
		}
		if _, err := tx.Query(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
	if err != nil {
		b.logger.Error("audit flush failed", zap.Error(err), zap.Int("events", len(batch)))
	}
}

// Stop halts the ticker and flushes whatever is left.
func (b *Buffer) Stop() {
	b.stop.Do(func() {
		b.ticker.Stop()
		close(b.done)
		b.Flush()
	})
}

func insertSQL(batch []Event) (string, []any) {
	placeholders := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*len(columns))
	for i, e := range batch {
		offset := i * len(columns)
		ph := make([]string, len(columns))
		for j := range columns {
			ph[j] = fmt.Sprintf("$%d", offset+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")

		var detail any
		if e.Detail != nil {
			raw, _ := json.Marshal(e.Detail)
			detail = string(raw)
		}
		args = append(args, e.RequestID, e.EventType, e.Actor, e.Route, e.IP, detail, e.CreatedAt)
	}

	sql := fmt.Sprintf("INSERT INTO _audit_events (%s) VALUES %s",
		strings.Join(columns, ","), strings.Join(placeholders, ","))
	return sql, args
}
