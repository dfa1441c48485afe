// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/trace/store.go
// Summary: SQLite journal of protocol requests and events.
//
// Entries are queued from the server loop and written in batches by a
// background goroutine so tracing never blocks dispatch. Arguments are
// stored as a CBOR blob.

package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "modernc.org/sqlite"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("trace: store closed")

// Direction tells requests from events.
type Direction string

const (
	Request Direction = "request"
	Event   Direction = "event"
)

// Arg is one rendered message argument.
type Arg struct {
	Kind  string `cbor:"1,keyasint" json:"kind"`
	Value string `cbor:"2,keyasint" json:"value"`
}

// Entry is one traced message.
type Entry struct {
	Seq       int64     `json:"seq"`
	Time      time.Time `json:"time"`
	Direction Direction `json:"direction"`
	Client    uint32    `json:"client"`
	Object    uint32    `json:"object"`
	Interface string    `json:"interface"`
	Message   string    `json:"message"`
	Args      []Arg     `json:"args"`
}

// Options tunes batching.
type Options struct {
	// BatchSize is the number of entries written per transaction. Default: 128
	BatchSize int
	// BatchTimeout bounds how long a partial batch waits. Default: 250ms
	BatchTimeout time.Duration
	// Buffer is the queue length; entries beyond it are dropped. Default: 4096
	Buffer int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 128
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 250 * time.Millisecond
	}
	if o.Buffer <= 0 {
		o.Buffer = 4096
	}
	return o
}

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp INTEGER NOT NULL,       -- UnixNano
    direction TEXT NOT NULL,
    client INTEGER NOT NULL,
    object INTEGER NOT NULL,
    interface TEXT NOT NULL,
    message TEXT NOT NULL,
    args BLOB
);

CREATE INDEX IF NOT EXISTS idx_messages_client ON messages(client);
`

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("trace: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("trace: CBOR decoder initialization failed: " + err.Error())
	}
}

// Store is an append-only message journal.
type Store struct {
	opts    Options
	db      *sql.DB
	queue   chan Entry
	flushCh chan chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	dropped atomic.Uint64

	mu       sync.Mutex
	closed   bool
	readOnly bool
}

// Open creates or opens the journal at path.
func Open(path string, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("trace: create directory: %w", err)
	}
	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(2000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("trace: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: connect: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: create schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		opts:    opts,
		db:      db,
		queue:   make(chan Entry, opts.Buffer),
		flushCh: make(chan chan struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

func migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&current); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("trace: read schema version: %w", err)
	}
	if current == schemaVersion {
		return nil
	}
	if current > schemaVersion {
		return fmt.Errorf("trace: database schema %d is newer than %d", current, schemaVersion)
	}
	if _, err := db.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("trace: update schema version: %w", err)
	}
	return nil
}

// Record queues e. It never blocks; when the queue is full the entry is
// dropped and counted.
func (s *Store) Record(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- e:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Dropped reports how many entries were discarded because the queue was full.
func (s *Store) Dropped() uint64 { return s.dropped.Load() }

// Flush blocks until every queued entry is written.
func (s *Store) Flush() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()
	done := make(chan struct{})
	select {
	case s.flushCh <- done:
	case <-s.doneCh:
		return ErrClosed
	}
	<-done
	return nil
}

// Close writes pending entries and closes the database.
func (s *Store) Close() error {
	if s.readOnly {
		return s.db.Close()
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stopCh)
	<-s.doneCh
	return s.db.Close()
}

func (s *Store) writer() {
	defer close(s.doneCh)

	batch := make([]Entry, 0, s.opts.BatchSize)
	timer := time.NewTimer(s.opts.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.write(batch)
		batch = batch[:0]
	}
	drain := func() {
		for {
			select {
			case e := <-s.queue:
				batch = append(batch, e)
			default:
				return
			}
		}
	}

	for {
		select {
		case e := <-s.queue:
			batch = append(batch, e)
			if len(batch) >= s.opts.BatchSize {
				flush()
				timer.Reset(s.opts.BatchTimeout)
			}
		case <-timer.C:
			flush()
			timer.Reset(s.opts.BatchTimeout)
		case done := <-s.flushCh:
			drain()
			flush()
			close(done)
		case <-s.stopCh:
			drain()
			flush()
			return
		}
	}
}

func (s *Store) write(batch []Entry) {
	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("trace: begin transaction: %v", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO messages (timestamp, direction, client, object, interface, message, args)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("trace: prepare insert: %v", err)
		tx.Rollback()
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		args, err := encMode.Marshal(e.Args)
		if err != nil {
			log.Printf("trace: encode args of %s.%s: %v", e.Interface, e.Message, err)
			continue
		}
		if _, err := stmt.Exec(e.Time.UnixNano(), string(e.Direction), e.Client, e.Object, e.Interface, e.Message, args); err != nil {
			log.Printf("trace: insert %s.%s: %v", e.Interface, e.Message, err)
			tx.Rollback()
			return
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("trace: commit batch: %v", err)
	}
}

// Recent returns up to limit of the newest entries, oldest first. A client
// of zero matches every client.
func (s *Store) Recent(limit int, client uint32) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT seq, timestamp, direction, client, object, interface, message, args FROM messages`
	args := []any{}
	if client != 0 {
		query += ` WHERE client = ?`
		args = append(args, client)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("trace: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e    Entry
			ts   int64
			dir  string
			blob []byte
		)
		if err := rows.Scan(&e.Seq, &ts, &dir, &e.Client, &e.Object, &e.Interface, &e.Message, &blob); err != nil {
			return nil, fmt.Errorf("trace: scan: %w", err)
		}
		e.Time = time.Unix(0, ts)
		e.Direction = Direction(dir)
		if len(blob) > 0 {
			if err := decMode.Unmarshal(blob, &e.Args); err != nil {
				return nil, fmt.Errorf("trace: decode args of entry %d: %w", e.Seq, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("trace: rows: %w", err)
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// OpenReadOnly opens an existing journal for inspection without starting
// the writer.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)&_pragma=busy_timeout(2000)")
	if err != nil {
		return nil, fmt.Errorf("trace: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: connect: %w", err)
	}
	return &Store{db: db, closed: true, readOnly: true}, nil
}
