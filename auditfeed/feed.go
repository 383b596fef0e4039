/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package auditfeed keeps a queryable SQLite copy of the ledger event log
// for reporting by sequence range, time window and document hash.
package auditfeed

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/api"
	"github.com/zhigui-projects/go-attest/common/crypto"
	"github.com/zhigui-projects/go-attest/common/log"
	"github.com/zhigui-projects/go-attest/ledger"
	_ "modernc.org/sqlite"
)

const pragmas = "_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

// Feed is the audit database. Writes go through a single connection;
// reads use a small pool.
type Feed struct {
	writer *sql.DB
	reader *sql.DB
	logger api.Logger
}

// Open opens or creates the feed database at path and migrates its schema.
func Open(path string) (*Feed, error) {
	if path == "" {
		return nil, errors.New("audit feed path is empty")
	}
	if _, err := log.CreateDirIfMissing(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return openDSN(fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&%s", path, pragmas))
}

func openDSN(dsn string) (*Feed, error) {
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed opening feed writer")
	}
	writer.SetMaxOpenConns(1)
	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, errors.Wrap(err, "failed pinging feed writer")
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, errors.Wrap(err, "failed opening feed reader")
	}
	reader.SetMaxOpenConns(4)
	if err := reader.Ping(); err != nil {
		reader.Close()
		writer.Close()
		return nil, errors.Wrap(err, "failed pinging feed reader")
	}

	if err := runMigrations(writer); err != nil {
		reader.Close()
		writer.Close()
		return nil, err
	}
	return &Feed{writer: writer, reader: reader, logger: log.GetLogger("module", "auditfeed")}, nil
}

// Close closes both connection pools and returns the first error.
func (f *Feed) Close() error {
	var first error
	if err := f.reader.Close(); err != nil {
		first = errors.Wrap(err, "failed closing feed reader")
	}
	if err := f.writer.Close(); err != nil && first == nil {
		first = errors.Wrap(err, "failed closing feed writer")
	}
	return first
}

// Last returns the highest stored sequence number, or 0 for an empty feed.
func (f *Feed) Last(ctx context.Context) (uint64, error) {
	var last int64
	err := f.writer.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM events`).Scan(&last)
	if err != nil {
		return 0, errors.Wrap(err, "failed reading last sequence")
	}
	return uint64(last), nil
}

// Sync copies every event after the last stored one from src in a single
// transaction and returns how many were added. Running it again without new
// events adds nothing.
func (f *Feed) Sync(ctx context.Context, src Source) (int, error) {
	last, err := f.Last(ctx)
	if err != nil {
		return 0, err
	}
	events, err := src.Events(ctx, last+1)
	if err != nil {
		return 0, errors.WithMessage(err, "failed fetching events")
	}
	n, err := f.insert(ctx, events)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		f.logger.Info("audit feed synced", "added", n, "last", events[len(events)-1].Sequence)
	}
	return n, nil
}

// Follow syncs and then keeps applying events from src as they commit,
// until ctx is done or the source stream ends.
func (f *Feed) Follow(ctx context.Context, src Source) error {
	if _, err := f.Sync(ctx, src); err != nil {
		return err
	}
	last, err := f.Last(ctx)
	if err != nil {
		return err
	}
	f.logger.Debug("following event log", "from", last+1)
	err = src.Watch(ctx, last+1, func(ev *ledger.Event) error {
		_, err := f.insert(ctx, []*ledger.Event{ev})
		return err
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (f *Feed) insert(ctx context.Context, events []*ledger.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	tx, err := f.writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed beginning transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `
		INSERT OR IGNORE INTO events (sequence, kind, doc_hash, actor, timestamp, storage_ref, role, subject)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	added := 0
	for _, ev := range events {
		var subject string
		if !ev.Subject.IsZero() {
			subject = ev.Subject.Hex()
		}
		res, err := tx.ExecContext(ctx, query,
			int64(ev.Sequence), string(ev.Kind), ev.DocHash.Hex(), ev.Actor.Hex(),
			ev.Timestamp, ev.StorageRef, string(ev.Role), subject,
		)
		if err != nil {
			return 0, errors.Wrapf(err, "failed inserting event %d", ev.Sequence)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed committing events")
	}
	return added, nil
}

const selectEvents = `SELECT sequence, kind, doc_hash, actor, timestamp, storage_ref, role, subject FROM events`

// BySequence returns the stored events with sequence numbers in [from, to].
func (f *Feed) BySequence(ctx context.Context, from, to uint64) ([]*ledger.Event, error) {
	return f.query(ctx, selectEvents+` WHERE sequence >= ? AND sequence <= ? ORDER BY sequence`,
		int64(from), int64(to))
}

// ByTimeWindow returns events stamped in [since, until), oldest first. A
// limit of 0 or less returns them all.
func (f *Feed) ByTimeWindow(ctx context.Context, since, until time.Time, limit int) ([]*ledger.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	return f.query(ctx, selectEvents+` WHERE timestamp >= ? AND timestamp < ? ORDER BY sequence LIMIT ?`,
		since.Unix(), until.Unix(), limit)
}

// ByDocHash returns the history of one credential.
func (f *Feed) ByDocHash(ctx context.Context, docHash crypto.Hash) ([]*ledger.Event, error) {
	return f.query(ctx, selectEvents+` WHERE doc_hash = ? ORDER BY sequence`, docHash.Hex())
}

func (f *Feed) query(ctx context.Context, query string, args ...interface{}) ([]*ledger.Event, error) {
	rows, err := f.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed querying events")
	}
	defer rows.Close()

	var events []*ledger.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, errors.Wrap(rows.Err(), "failed iterating events")
}

func scanEvent(rows *sql.Rows) (*ledger.Event, error) {
	var (
		seq                        int64
		kind, hash, actor, subject string
		role                       string
		ev                         = new(ledger.Event)
	)
	if err := rows.Scan(&seq, &kind, &hash, &actor, &ev.Timestamp, &ev.StorageRef, &role, &subject); err != nil {
		return nil, errors.Wrap(err, "failed scanning event")
	}
	ev.Sequence, ev.Kind, ev.Role = uint64(seq), ledger.EventKind(kind), ledger.Role(role)

	var err error
	if ev.DocHash, err = crypto.HexToHash(hash); err != nil {
		return nil, errors.WithMessagef(err, "corrupt event %d", seq)
	}
	if ev.Actor, err = crypto.HexToAddress(actor); err != nil {
		return nil, errors.WithMessagef(err, "corrupt event %d", seq)
	}
	if subject != "" {
		if ev.Subject, err = crypto.HexToAddress(subject); err != nil {
			return nil, errors.WithMessagef(err, "corrupt event %d", seq)
		}
	}
	return ev, nil
}
