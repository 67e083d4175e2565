package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrClosed is returned by Storage methods when the storage has been closed.
	ErrClosed = errors.New("storage is closed")
	// ErrNotFound is returned when a document doesn't exist.
	ErrNotFound = errors.New("document not found")
)

const (
	memory = ":memory:"
)

// Storage is a persistent segment storage backed by SQLite.
type Storage struct {
	cfg *Config
	db  *sql.DB
}

// New creates a new Storage with the provided configuration functions.
//
// Default configuration:
//   - File: ":memory:" (in-memory database)
//   - Durable: false
//   - Workers: 1
//
// Returns an error if the SQLite database cannot be opened or initialized.
func New(configFuncs ...ConfigFunc) (*Storage, error) {
	cfg := &Config{}
	cfg.File(memory)
	cfg.Durable(false)
	cfg.Workers(1)
	for _, cf := range configFuncs {
		cf(cfg)
	}

	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	if err := setup(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setup: %w", err)
	}

	storage := Storage{
		cfg: cfg,
		db:  db,
	}

	return &storage, nil
}

// CreateDocument inserts a new, incomplete document.
//
// The delimiters are stored as given, in the order segment terminator, element separator,
// component separator and repetition separator. Returns a unique DocumentID.
//
// Returns [ErrClosed] if the storage has been closed.
func (s *Storage) CreateDocument(name string, delimiters [4]byte) (DocumentID, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`
		insert into document (
			id,
			name,
			delimiters,
			created_at,
			complete
		) values (
			:id,
			:name,
			:delimiters,
			:created_at,
			0
		)
		`,
		sql.Named("id", id),
		sql.Named("name", name),
		sql.Named("delimiters", delimiters[:]),
		sql.Named("created_at", toTimestamp(time.Now())),
	)
	if err != nil {
		return "", wrap(err)
	}

	return id, nil
}

// PushSegments inserts segments of a document in one transaction.
//
// Returns [ErrClosed] if the storage has been closed.
func (s *Storage) PushSegments(id DocumentID, segments []Segment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return wrap(err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.Prepare(
		`
		insert into segment (
			document_id,
			position,
			tag,
			body,
			error
		) values (
			:document_id,
			:position,
			:tag,
			:body,
			:error
		)
		`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, segment := range segments {
		if _, err := stmt.Exec(
			sql.Named("document_id", id),
			sql.Named("position", segment.Position),
			sql.Named("tag", nonNil(segment.Tag)),
			sql.Named("body", nonNil(segment.Body)),
			sql.Named("error", segment.Error),
		); err != nil {
			return fmt.Errorf("insert segment %d: %w", segment.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// Complete marks a document as completely stored.
func (s *Storage) Complete(id DocumentID) error {
	res, err := s.db.Exec(
		`update document set complete = 1 where id = :id`,
		sql.Named("id", id),
	)
	if err != nil {
		return wrap(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Document returns a document with its segment counts.
//
// Returns [ErrNotFound] if there is no such document.
func (s *Storage) Document(id DocumentID) (*Document, error) {
	row := s.db.QueryRow(
		`
		select
			d.id,
			d.name,
			d.delimiters,
			d.created_at,
			d.complete,
			(select count(*) from segment where document_id = d.id) as segments,
			(select count(*) from segment where document_id = d.id and error != '') as failed
		from
			document d
		where
			d.id = :id
		`,
		sql.Named("id", id),
	)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, wrap(err)
	}

	return doc, nil
}

// Documents returns all documents ordered by creation time (oldest first).
func (s *Storage) Documents() ([]Document, error) {
	rows, err := s.db.Query(
		`
		select
			d.id,
			d.name,
			d.delimiters,
			d.created_at,
			d.complete,
			(select count(*) from segment where document_id = d.id) as segments,
			(select count(*) from segment where document_id = d.id and error != '') as failed
		from
			document d
		order by
			d.created_at asc,
			d.rowid asc
		`,
	)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	return docs, nil
}

// Segments returns a sequence of the document's segments ordered by position.
//
// The sequence yields a single error and stops if the query fails.
func (s *Storage) Segments(id DocumentID) iter.Seq2[Segment, error] {
	return func(yield func(Segment, error) bool) {
		rows, err := s.db.Query(
			`
			select
				position,
				tag,
				body,
				error
			from
				segment
			where
				document_id = :id
			order by
				position asc
			`,
			sql.Named("id", id),
		)
		if err != nil {
			yield(Segment{}, wrap(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var segment Segment
			if err := rows.Scan(
				&segment.Position,
				&segment.Tag,
				&segment.Body,
				&segment.Error,
			); err != nil {
				yield(Segment{}, fmt.Errorf("scan: %w", err))
				return
			}
			if !yield(segment, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(Segment{}, fmt.Errorf("scan: %w", err))
		}
	}
}

// Delete permanently removes a document and its segments.
func (s *Storage) Delete(id DocumentID) error {
	_, err := s.db.Exec(
		`delete from document where id = :id`,
		sql.Named("id", id),
	)
	return wrap(err)
}

// Close closes the underlying SQLite database.
//
// After closing, all methods on Storage will return [ErrClosed].
func (s *Storage) Close() error {
	return s.db.Close()
}

// Document represents a stored document.
type Document struct {
	// ID is the unique identifier of this document.
	ID DocumentID
	// Name is the name the document was stored with, usually its file name.
	Name string
	// Delimiters of the document.
	Delimiters [4]byte
	// CreatedAt is the time when the document was created.
	CreatedAt time.Time
	// Complete indicates whether all segments of the document were stored.
	Complete bool
	// Segments is the number of stored segments, failed ones included.
	Segments int
	// Failed is the number of stored segments that failed to decode.
	Failed int
}

type DocumentID = string

// Segment represents a stored segment.
type Segment struct {
	// Position is the 0-based position of the segment in its document.
	Position int
	// Tag of the segment. Empty if the segment failed to decode.
	Tag []byte
	// Body of the segment. Empty if the segment failed to decode.
	Body []byte
	// Error is the decode failure of the segment, or empty.
	Error string
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var (
		doc        Document
		delimiters []byte
		createdAt  int64
		complete   int
	)
	if err := row.Scan(
		&doc.ID,
		&doc.Name,
		&delimiters,
		&createdAt,
		&complete,
		&doc.Segments,
		&doc.Failed,
	); err != nil {
		return nil, err
	}
	copy(doc.Delimiters[:], delimiters)
	doc.CreatedAt = fromTimestamp(createdAt)
	doc.Complete = complete != 0
	return &doc, nil
}

func open(cfg *Config) (*sql.DB, error) {
	params := url.Values{}
	params.Add("_txlock", "immediate")
	params.Add("_timeout", "5000") // 5s
	params.Add("_foreign_keys", "on")

	file := cfg.file
	if file == memory {
		file = uuid.NewString()
		params.Add("mode", "memory")
		params.Add("cache", "shared")
	} else {
		params.Add("_journal", "wal")
		params.Add("_cache_size", "-20000") // 20mb
		if cfg.durable {
			params.Add("_sync", "full")
		} else {
			params.Add("_sync", "normal")
		}
	}

	db, err := sql.Open("sqlite3", "file:"+file+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)
	if params.Get("mode") == "memory" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.workers)
		db.SetMaxIdleConns(cfg.workers)
	}

	return db, nil
}

func setup(db *sql.DB) error {
	// Create table for documents.
	if _, err := db.Exec(
		`
		create table if not exists document (
			id         text primary key,
			name       text not null,
			delimiters blob not null,
			created_at int not null,
			complete   int not null
		) strict
		`,
	); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	// Create table for segments.
	if _, err := db.Exec(
		`
		create table if not exists segment (
			document_id text not null references document (id) on delete cascade,
			position    int not null,
			tag         blob not null,
			body        blob not null,
			error       text not null,
			primary key (document_id, position)
		) strict
		`,
	); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	// Create the index for the tag lookups.
	if _, err := db.Exec(
		`
		create index if not exists idx_segment_tag
		on segment (tag, document_id)
		`,
	); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	return nil
}

func wrap(err error) error {
	if err != nil && strings.Contains(err.Error(), "database is closed") {
		return ErrClosed
	}
	return err
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func toTimestamp(time time.Time) int64 {
	return time.UnixNano()
}

func fromTimestamp(timestamp int64) time.Time {
	return time.Unix(0, timestamp)
}
