package sessionlog

import (
	"chatrelay/internal/chat"
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	batchSize     = 100
	bufferSize    = 1024
	flushInterval = 2 * time.Second
	finalFlushTTL = 5 * time.Second
)

const (
	insOpened = `INSERT INTO chat_sessions (id, remote_addr, connected_at)
	             VALUES ($1, $2, $3)
	             ON CONFLICT (id) DO NOTHING`
	updNamed  = `UPDATE chat_sessions SET username = $2, named_at = $3 WHERE id = $1`
	updClosed = `UPDATE chat_sessions SET disconnected_at = $2 WHERE id = $1`
)

// Recorder persists session lifecycle events to Postgres in batches. Message
// bodies never reach it.
type Recorder struct {
	db      *sql.DB
	events  chan chat.SessionEvent
	dropped atomic.Int64
}

func New(db *sql.DB) *Recorder {
	return &Recorder{
		db:     db,
		events: make(chan chat.SessionEvent, bufferSize),
	}
}

// RecordSession queues ev without blocking; when the buffer is full the
// event is dropped and counted.
func (r *Recorder) RecordSession(ev chat.SessionEvent) {
	select {
	case r.events <- ev:
	default:
		n := r.dropped.Add(1)
		zap.L().Warn("sessionlog.dropped", zap.String("session_id", ev.SessionID), zap.Int64("total", n))
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Run flushes every flushInterval or batchSize events, and once more on
// shutdown with whatever is still queued.
func (r *Recorder) Run(ctx context.Context) {
	tk := time.NewTicker(flushInterval)
	defer tk.Stop()

	batch := make([]chat.SessionEvent, 0, batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := persist(ctx, r.db, batch); err != nil {
			zap.L().Error("sessionlog.persist", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case ev := <-r.events:
					batch = append(batch, ev)
				default:
					drained = true
				}
			}
			fctx, cancel := context.WithTimeout(context.Background(), finalFlushTTL)
			flush(fctx)
			cancel()
			return
		case ev := <-r.events:
			batch = append(batch, ev)
			if len(batch) >= batchSize {
				flush(ctx)
			}
		case <-tk.C:
			flush(ctx)
		}
	}
}

func persist(ctx context.Context, db *sql.DB, events []chat.SessionEvent) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := apply(ctx, tx, ev); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func apply(ctx context.Context, tx *sql.Tx, ev chat.SessionEvent) error {
	switch ev.Kind {
	case chat.SessionOpened:
		_, err := tx.ExecContext(ctx, insOpened, ev.SessionID, ev.RemoteAddr, ev.At)
		return err
	case chat.SessionNamed:
		res, err := tx.ExecContext(ctx, updNamed, ev.SessionID, ev.Username, ev.At)
		return checkUpdated(res, err, ev)
	case chat.SessionClosed:
		res, err := tx.ExecContext(ctx, updClosed, ev.SessionID, ev.At)
		return checkUpdated(res, err, ev)
	default:
		return fmt.Errorf("sessionlog: unknown event kind %q", ev.Kind)
	}
}

// checkUpdated warns when an update matched no row, which happens when the
// opened event was dropped or its batch failed.
func checkUpdated(res sql.Result, err error, ev chat.SessionEvent) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		zap.L().Warn("sessionlog.missing_row",
			zap.String("session_id", ev.SessionID),
			zap.String("kind", string(ev.Kind)),
		)
	}
	return nil
}
