// Package archive stores decoded documents in SQLite and replays them later.
package archive

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/teenjuna/edi"
	"github.com/teenjuna/edi/internal/sqlite"
)

var (
	// ErrClosed is returned by Archive methods when the archive has been closed.
	ErrClosed = sqlite.ErrClosed
	// ErrNotFound is returned when a document doesn't exist.
	ErrNotFound = sqlite.ErrNotFound
)

// Archive is a persistent archive of decoded documents.
type Archive struct {
	cfg     *Config
	storage *sqlite.Storage
}

// Document describes a stored document.
type Document struct {
	ID         string
	Name       string
	Delimiters edi.Delimiters
	CreatedAt  time.Time
	// Complete is false if storing the document was interrupted.
	Complete bool
	// Segments is the number of stored segments, failed ones included.
	Segments int
	// Failed is the number of segments that failed to decode.
	Failed int
}

// New opens an archive.
//
// Default configuration:
//   - File: ":memory:"
//   - Durable: false
//   - BatchSize: 500
//   - Workers: 1
//   - Logger: zerolog.Nop()
func New(configFuncs ...ConfigFunc) (*Archive, error) {
	cfg := &Config{}
	cfg.File(":memory:")
	cfg.Durable(false)
	cfg.BatchSize(500)
	cfg.Workers(1)
	cfg.Logger(zerolog.Nop())
	for _, cf := range configFuncs {
		if cf != nil {
			cf(cfg)
		}
	}

	storage, err := sqlite.New(
		sqlite.WithFile(cfg.file),
		sqlite.WithDurable(cfg.durable),
		sqlite.WithWorkers(cfg.workers),
	)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	return &Archive{
		cfg:     cfg,
		storage: storage,
	}, nil
}

// Store reads the stream to the end and stores its segments under the given name.
//
// Segments that failed to decode are stored as failures at their position. If the stream fails
// to read or ctx is done, Store returns the error and the document stays incomplete.
func (a *Archive) Store(ctx context.Context, name string, stream *edi.Stream) (*Document, error) {
	d := stream.Delimiters()
	id, err := a.storage.CreateDocument(name, [4]byte{
		d.SegmentTerminator,
		d.ElementSeparator,
		d.ComponentSeparator,
		d.RepetitionSeparator,
	})
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	logger := a.cfg.logger.With().Str("document", id).Str("name", name).Logger()

	batch := make([]sqlite.Segment, 0, a.cfg.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := a.storage.PushSegments(id, batch); err != nil {
			return fmt.Errorf("push segments: %w", err)
		}
		logger.Debug().Int("segments", len(batch)).Msg("flushed segments")
		clear(batch)
		batch = batch[:0]
		return nil
	}

	position := 0
	for segment, err := range stream.All() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row := sqlite.Segment{Position: position}
		var decodeErr *edi.DecodeError
		switch {
		case errors.As(err, &decodeErr):
			row.Error = decodeErr.Err.Error()
		case err != nil:
			logger.Error().Err(err).Int("position", position).Msg("store document")
			if ferr := flush(); ferr != nil {
				return nil, errors.Join(err, ferr)
			}
			return nil, err
		default:
			row.Tag = segment.Tag
			row.Body = segment.Body
		}
		position++

		batch = append(batch, row)
		if len(batch) >= a.cfg.batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}
	if err := a.storage.Complete(id); err != nil {
		return nil, fmt.Errorf("complete document: %w", err)
	}

	doc, err := a.Document(id)
	if err != nil {
		return nil, err
	}

	logger.Info().Int("segments", doc.Segments).Int("failed", doc.Failed).Msg("stored document")

	return doc, nil
}

// Document returns a stored document.
//
// Returns [ErrNotFound] if there is no such document.
func (a *Archive) Document(id string) (*Document, error) {
	doc, err := a.storage.Document(id)
	if err != nil {
		return nil, err
	}
	out := document(*doc)
	return &out, nil
}

// Documents returns all stored documents, oldest first.
func (a *Archive) Documents() ([]Document, error) {
	docs, err := a.storage.Documents()
	if err != nil {
		return nil, err
	}
	out := make([]Document, len(docs))
	for i, doc := range docs {
		out[i] = document(doc)
	}
	return out, nil
}

// Segments returns a sequence replaying the stored segments of a document in their original
// order, the same way the [edi.Stream] produced them. Failed segments are yielded as
// [*edi.DecodeError] matching the original error with [errors.Is].
//
// Other archive methods must not be called while ranging over the sequence of an in-memory
// archive, since it holds the only connection.
func (a *Archive) Segments(id string) iter.Seq2[edi.Segment, error] {
	return func(yield func(edi.Segment, error) bool) {
		for row, err := range a.storage.Segments(id) {
			if err != nil {
				yield(edi.Segment{}, err)
				return
			}
			if row.Error != "" {
				if !yield(edi.Segment{}, &edi.DecodeError{Index: row.Position, Err: restore(row.Error)}) {
					return
				}
				continue
			}
			if !yield(edi.Segment{Tag: row.Tag, Body: row.Body}, nil) {
				return
			}
		}
	}
}

// Delete removes a document and its segments.
func (a *Archive) Delete(id string) error {
	return a.storage.Delete(id)
}

// Close closes the archive.
func (a *Archive) Close() error {
	return a.storage.Close()
}

func document(doc sqlite.Document) Document {
	return Document{
		ID:   doc.ID,
		Name: doc.Name,
		Delimiters: edi.Delimiters{
			SegmentTerminator:   doc.Delimiters[0],
			ElementSeparator:    doc.Delimiters[1],
			ComponentSeparator:  doc.Delimiters[2],
			RepetitionSeparator: doc.Delimiters[3],
		},
		CreatedAt: doc.CreatedAt,
		Complete:  doc.Complete,
		Segments:  doc.Segments,
		Failed:    doc.Failed,
	}
}

// restoredError is a decode error read back from the archive.
type restoredError struct {
	msg  string
	kind error
}

func (e *restoredError) Error() string {
	return e.msg
}

func (e *restoredError) Unwrap() error {
	return e.kind
}

func restore(msg string) error {
	for _, kind := range []error{edi.ErrMissingElementSeparator, edi.ErrInvalidTagLength} {
		if strings.HasPrefix(msg, kind.Error()) {
			return &restoredError{msg: msg, kind: kind}
		}
	}
	return &restoredError{msg: msg}
}
