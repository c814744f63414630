// Package ledger tracks past sends per sender identity. It is the record
// the rate limiter consults: an append-only usage log in the backing
// worksheet, mirrored by an in-memory snapshot for the duration of one
// campaign run and buffered through a local write-ahead store so that a
// send is never silently lost when the worksheet is unreachable.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/leadflowhq/leadflow/internal/senders"
)

// timestampLayout is the wire format of the usage log timestamp column (UTC)
const timestampLayout = "2006-01-02 15:04:05"

// Record is one logged send
type Record struct {
	SenderID  string          `json:"sender_id"`
	Channel   senders.Channel `json:"channel"`
	Recipient string          `json:"recipient"`
	Timestamp time.Time       `json:"timestamp"`
}

// LogSource is the backing store of the usage log
type LogSource interface {
	AllValues(ctx context.Context) ([][]string, error)
	AppendRow(ctx context.Context, values []string) error
}

// Ledger is the usage ledger for one campaign run. It is owned by a
// single campaign worker and performs no locking of its own.
type Ledger struct {
	source  LogSource
	wal     *WAL
	logger  *slog.Logger
	records []Record
}

// New creates a ledger over the given log source. wal may be nil; the
// write-ahead buffer is then disabled and sends are logged best-effort
// straight to the source.
func New(source LogSource, wal *WAL, logger *slog.Logger) *Ledger {
	return &Ledger{source: source, wal: wal, logger: logger}
}

// LoadRecent refreshes the in-memory snapshot from the backing store.
// Rows whose timestamp does not parse are discarded (this also drops the
// header row). A read failure degrades to an empty snapshot: a missing
// log is equivalent to no history. Unsynced write-ahead entries from
// earlier runs are flushed to the source and merged into the snapshot.
func (l *Ledger) LoadRecent(ctx context.Context) {
	l.records = nil

	rows, err := l.source.AllValues(ctx)
	if err != nil {
		l.logger.Warn("could not read usage log, starting with empty history", "error", err)
	}
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		ts, err := time.Parse(timestampLayout, row[3])
		if err != nil {
			continue
		}
		l.records = append(l.records, Record{
			SenderID:  row[0],
			Channel:   senders.Channel(row[1]),
			Recipient: row[2],
			Timestamp: ts.UTC(),
		})
	}

	l.reconcile(ctx)

	l.logger.Info("usage history loaded", "records", len(l.records))
}

// reconcile flushes usage records that never reached the backing store
func (l *Ledger) reconcile(ctx context.Context) {
	if l.wal == nil {
		return
	}

	entries, err := l.wal.Unsynced()
	if err != nil {
		l.logger.Warn("could not read write-ahead buffer", "error", err)
		return
	}

	for _, e := range entries {
		if err := l.source.AppendRow(ctx, rowFor(e.Record)); err != nil {
			l.logger.Warn("usage record still unsynced", "sender", e.Record.SenderID, "error", err)
			l.records = append(l.records, e.Record)
			continue
		}
		if err := l.wal.MarkSynced(e.Key); err != nil {
			l.logger.Warn("could not mark usage record synced", "error", err)
		}
		l.records = append(l.records, e.Record)
		l.logger.Info("flushed buffered usage record", "sender", e.Record.SenderID, "channel", e.Record.Channel)
	}
}

// Record logs one successful send. The record is written to the
// write-ahead buffer first, then appended to the backing store, and
// always applied to the in-memory snapshot so later sends in the same
// run observe the updated count. A persistence failure is logged and
// swallowed: the message was already delivered and its success must not
// be downgraded because the audit trail could not be written.
func (l *Ledger) Record(ctx context.Context, senderID string, channel senders.Channel, recipient string, ts time.Time) {
	rec := Record{
		SenderID:  senderID,
		Channel:   channel,
		Recipient: recipient,
		Timestamp: ts.UTC(),
	}

	var walKey uint64
	if l.wal != nil {
		key, err := l.wal.Append(rec)
		if err != nil {
			l.logger.Warn("could not buffer usage record", "sender", senderID, "error", err)
		} else {
			walKey = key
		}
	}

	if err := l.source.AppendRow(ctx, rowFor(rec)); err != nil {
		l.logger.Warn("failed to log send to usage log", "sender", senderID, "error", err)
	} else if l.wal != nil && walKey != 0 {
		if err := l.wal.MarkSynced(walKey); err != nil {
			l.logger.Warn("could not mark usage record synced", "error", err)
		}
	}

	l.records = append(l.records, rec)
}

// CountSince returns how many sends the given sender made on the given
// channel at or after the cutoff instant
func (l *Ledger) CountSince(senderID string, channel senders.Channel, since time.Time) int {
	n := 0
	for _, rec := range l.records {
		if rec.SenderID == senderID && rec.Channel == channel && !rec.Timestamp.Before(since) {
			n++
		}
	}
	return n
}

func rowFor(rec Record) []string {
	return []string{
		rec.SenderID,
		string(rec.Channel),
		rec.Recipient,
		rec.Timestamp.UTC().Format(timestampLayout),
	}
}
