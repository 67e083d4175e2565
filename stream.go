package edi

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/rs/zerolog"
)

// Stream reads segments from a byte source one at a time.
//
// Every call to [Stream.Next] reads up to and including the next segment terminator and decodes
// what was read. Nothing is read ahead and no more than one segment is kept in memory.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	cfg        *Config
	metrics    *metrics
	logger     zerolog.Logger
	reader     *bufio.Reader
	delimiters Delimiters
	buffer     []byte
	lineBreaks string
	segments   int
	exhausted  bool
}

// NewStream creates a new Stream reading from r.
//
// Default configuration:
//   - BufferSize: 4096
//   - LineBreaks: false
//   - Logger: zerolog.Nop()
//   - Prometheus: not registered
func NewStream(r io.Reader, delimiters Delimiters, configFuncs ...ConfigFunc) *Stream {
	cfg := newConfig(configFuncs...)
	return &Stream{
		cfg:        cfg,
		metrics:    cfg.prometheus.get(),
		logger:     cfg.logger,
		reader:     bufio.NewReaderSize(r, cfg.bufferSize),
		delimiters: delimiters,
		buffer:     make([]byte, 0, cfg.bufferSize),
		lineBreaks: lineBreaks(delimiters.SegmentTerminator),
	}
}

// lineBreaks returns the line break bytes that may be trimmed from the start of a segment. The
// segment terminator is never one of them.
func lineBreaks(terminator byte) string {
	switch terminator {
	case '\n':
		return "\r"
	case '\r':
		return "\n"
	default:
		return "\r\n"
	}
}

// Delimiters returns the delimiters the stream decodes with.
func (s *Stream) Delimiters() Delimiters {
	return s.delimiters
}

// Segments returns the number of results (segments and errors) produced so far.
func (s *Stream) Segments() int {
	return s.segments
}

// Next reads and decodes the next segment.
//
// Returns [io.EOF] when the source has no more bytes. Once it did, the stream is exhausted and
// always returns [io.EOF].
//
// If the segment can't be decoded, a [*DecodeError] is returned and the following segments can
// still be read. If the source fails, an error wrapping [ErrIO] is returned and the stream is
// exhausted.
func (s *Stream) Next() (Segment, error) {
	if s.exhausted {
		return Segment{}, io.EOF
	}

	err := s.read()
	s.metrics.bytesRead.Add(float64(len(s.buffer)))

	switch {
	case err != nil && !errors.Is(err, io.EOF):
		s.exhausted = true
		s.metrics.readErrors.Inc()
		s.logger.Error().Err(err).Int("segment", s.segments).Msg("read segment")
		s.segments++
		return Segment{}, fmt.Errorf("%w: read segment %d: %w", ErrIO, s.segments-1, err)
	case len(s.buffer) == 0:
		s.exhausted = true
		return Segment{}, io.EOF
	}

	raw := s.buffer
	if s.cfg.lineBreaks {
		raw = bytes.TrimLeft(raw, s.lineBreaks)
		if len(raw) == 0 && errors.Is(err, io.EOF) {
			s.exhausted = true
			return Segment{}, io.EOF
		}
	}

	s.metrics.segmentSize.Observe(float64(len(raw)))

	index := s.segments
	s.segments++

	segment, err := DecodeSegment(raw, s.delimiters)
	if err != nil {
		s.metrics.segmentsFailed.Inc()
		s.logger.Warn().Err(err).Int("segment", index).Bytes("raw", raw).Msg("decode segment")
		return Segment{}, &DecodeError{Index: index, Err: err}
	}

	s.metrics.segmentsDecoded.Inc()
	s.logger.Debug().Int("segment", index).Bytes("tag", segment.Tag).Msg("decoded segment")

	return segment, nil
}

// read reads the next raw segment, terminator included if present, into the cleared buffer.
func (s *Stream) read() error {
	s.buffer = s.buffer[:0]
	for {
		chunk, err := s.reader.ReadSlice(s.delimiters.SegmentTerminator)
		s.buffer = append(s.buffer, chunk...)
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// All returns a sequence of the remaining results of the stream.
//
// The sequence ends when the source is exhausted, which isn't yielded, or right after yielding an
// error wrapping [ErrIO]. Decode errors are yielded and the sequence goes on.
func (s *Stream) All() iter.Seq2[Segment, error] {
	return func(yield func(Segment, error) bool) {
		for {
			segment, err := s.Next()
			if err == io.EOF {
				return
			}
			if !yield(segment, err) {
				return
			}
			if errors.Is(err, ErrIO) {
				return
			}
		}
	}
}
