package edi

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
)

var (
	// ErrMissingElementSeparator is returned when a segment has no element separator.
	ErrMissingElementSeparator = errors.New("missing element separator")
	// ErrInvalidTagLength is returned when a segment tag is empty or longer than [MaxTagLength].
	ErrInvalidTagLength = errors.New("invalid tag length")
)

// MaxTagLength is the maximum length of a segment tag.
const MaxTagLength = 4

// Segment is a decoded segment. Tag and Body are owned by the segment.
type Segment struct {
	// Tag identifies the segment, e.g. "ISA" or "CLM".
	Tag []byte
	// Body is everything after the first element separator, without the segment terminator.
	Body []byte
}

// DecodeSegment splits one raw segment into a tag and a body.
//
// A trailing segment terminator is dropped, so raw may come with or without it. The tag is
// everything before the first element separator and must be 1 to [MaxTagLength] bytes long. The
// body is everything after it and may be empty.
//
// Returns [ErrMissingElementSeparator] or [ErrInvalidTagLength]. The body is never validated.
func DecodeSegment(raw []byte, delimiters Delimiters) (Segment, error) {
	if n := len(raw); n != 0 && raw[n-1] == delimiters.SegmentTerminator {
		raw = raw[:n-1]
	}

	sep := bytes.IndexByte(raw, delimiters.ElementSeparator)
	if sep < 0 {
		return Segment{}, ErrMissingElementSeparator
	}

	tag := raw[:sep]
	if len(tag) == 0 || len(tag) > MaxTagLength {
		return Segment{}, fmt.Errorf("%w: %d", ErrInvalidTagLength, len(tag))
	}

	return Segment{
		Tag:  bytes.Clone(tag),
		Body: append([]byte{}, raw[sep+1:]...),
	}, nil
}

// Elements returns a sequence of the segment's elements.
//
// The body is split lazily: elements after the last one consumed are never looked at. Elements
// borrow from Body, so they are valid as long as Body isn't modified.
func (s Segment) Elements(delimiters Delimiters) iter.Seq[Element] {
	return func(yield func(Element) bool) {
		body := s.Body
		for {
			i := bytes.IndexByte(body, delimiters.ElementSeparator)
			if i < 0 {
				yield(DecodeElement(body, delimiters))
				return
			}
			if !yield(DecodeElement(body[:i], delimiters)) {
				return
			}
			body = body[i+1:]
		}
	}
}

// Element returns the element at the 0-based position i.
//
// Only the requested element is decoded. Returns false if the segment has fewer elements.
func (s Segment) Element(i int, delimiters Delimiters) (Element, bool) {
	if i < 0 {
		return Element{}, false
	}
	body := s.Body
	for ; i > 0; i-- {
		sep := bytes.IndexByte(body, delimiters.ElementSeparator)
		if sep < 0 {
			return Element{}, false
		}
		body = body[sep+1:]
	}
	if sep := bytes.IndexByte(body, delimiters.ElementSeparator); sep >= 0 {
		body = body[:sep]
	}
	return DecodeElement(body, delimiters), true
}

// String returns the segment as "TAG*body", using '*' regardless of the document's delimiters.
func (s Segment) String() string {
	return string(s.Tag) + "*" + string(s.Body)
}

// DecodeError is produced by a [Stream] when a segment fails to decode.
type DecodeError struct {
	// Index is the 0-based position of the segment in the stream.
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
