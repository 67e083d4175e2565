// Package edi incrementally decodes X12 EDI documents.
//
// A document is a byte stream of segments ended by a segment terminator. Each segment starts with
// a short tag followed by elements split by an element separator. An element may repeat (split by
// a repetition separator) and each occurrence may be a composite of components (split by a
// component separator). The four delimiter bytes are described by [Delimiters] and usually come
// from the document's own ISA header via [FromHeader] or [ReadHeader].
package edi

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrHeaderTooShort is returned when fewer than [HeaderLength] header bytes are available.
	ErrHeaderTooShort = errors.New("header too short")
	// ErrIO is returned when the underlying byte source fails.
	ErrIO = errors.New("io failure")
)

const (
	// HeaderLength is the fixed length of the ISA header segment, terminator included.
	HeaderLength = 106

	// DefaultRepetitionSeparator is used when the repetition separator isn't taken from the
	// header or supplied explicitly.
	DefaultRepetitionSeparator = '^'

	elementSeparatorOffset    = 3
	repetitionSeparatorOffset = 82
	componentSeparatorOffset  = 104
	segmentTerminatorOffset   = 105

	// ISA11 holds the standards identifier "U" before version 00402.
	standardsIdentifier = 'U'
)

// DefaultDelimiters are the delimiters most X12 documents use.
var DefaultDelimiters = Delimiters{
	SegmentTerminator:   '~',
	ElementSeparator:    '*',
	ComponentSeparator:  ':',
	RepetitionSeparator: DefaultRepetitionSeparator,
}

// Delimiters holds the four bytes playing the structural roles of one document.
//
// Nothing checks that the bytes are distinct. If two roles share a byte, decoding still succeeds
// but the result is ambiguous. Use [Delimiters.Distinct] to check it explicitly.
type Delimiters struct {
	SegmentTerminator   byte
	ElementSeparator    byte
	ComponentSeparator  byte
	RepetitionSeparator byte
}

// Distinct reports whether all four delimiters are different bytes.
func (d Delimiters) Distinct() bool {
	b := [4]byte{d.SegmentTerminator, d.ElementSeparator, d.ComponentSeparator, d.RepetitionSeparator}
	for i := range b {
		for j := i + 1; j < len(b); j++ {
			if b[i] == b[j] {
				return false
			}
		}
	}
	return true
}

func (d Delimiters) String() string {
	return fmt.Sprintf(
		"segment=%q element=%q component=%q repetition=%q",
		d.SegmentTerminator,
		d.ElementSeparator,
		d.ComponentSeparator,
		d.RepetitionSeparator,
	)
}

// HeaderConfig configures how delimiters are extracted from the header.
type HeaderConfig struct {
	repetitionSeparator     byte
	readRepetitionSeparator bool
}

type HeaderConfigFunc = func(c *HeaderConfig)

// RepetitionSeparator sets the repetition separator used when the header doesn't provide one.
func (c *HeaderConfig) RepetitionSeparator(separator byte) {
	c.repetitionSeparator = separator
}

// ReadRepetitionSeparator makes extraction take the repetition separator from ISA11 (offset 82),
// unless ISA11 holds the standards identifier "U" of versions before 00402.
func (c *HeaderConfig) ReadRepetitionSeparator(read bool) {
	c.readRepetitionSeparator = read
}

// FromHeader extracts delimiters from the first [HeaderLength] bytes of a document.
//
// The header is treated as a fixed-width record: the element separator is at offset 3, the
// component separator at offset 104 and the segment terminator at offset 105. The extracted bytes
// are not validated.
//
// Returns [ErrHeaderTooShort] if header is shorter than [HeaderLength].
func FromHeader(header []byte, configFuncs ...HeaderConfigFunc) (Delimiters, error) {
	cfg := HeaderConfig{}
	cfg.RepetitionSeparator(DefaultRepetitionSeparator)
	for _, cf := range configFuncs {
		cf(&cfg)
	}

	if len(header) < HeaderLength {
		return Delimiters{}, fmt.Errorf("%w: got %d bytes, need %d", ErrHeaderTooShort, len(header), HeaderLength)
	}

	repetition := cfg.repetitionSeparator
	if cfg.readRepetitionSeparator && header[repetitionSeparatorOffset] != standardsIdentifier {
		repetition = header[repetitionSeparatorOffset]
	}

	return Delimiters{
		SegmentTerminator:   header[segmentTerminatorOffset],
		ElementSeparator:    header[elementSeparatorOffset],
		ComponentSeparator:  header[componentSeparatorOffset],
		RepetitionSeparator: repetition,
	}, nil
}

// ReadHeader reads exactly [HeaderLength] bytes from r and extracts delimiters from them.
//
// The header bytes are returned so that the caller can put them back in front of the rest of the
// source, e.g. with [io.MultiReader].
//
// Returns [ErrHeaderTooShort] if the source ends before [HeaderLength] bytes, and [ErrIO] if the
// source fails.
func ReadHeader(r io.Reader, configFuncs ...HeaderConfigFunc) (Delimiters, []byte, error) {
	header := make([]byte, HeaderLength)
	n, err := io.ReadFull(r, header)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return Delimiters{}, header[:n], fmt.Errorf("%w: got %d bytes, need %d", ErrHeaderTooShort, n, HeaderLength)
	case err != nil:
		return Delimiters{}, header[:n], fmt.Errorf("%w: read header: %w", ErrIO, err)
	}

	delimiters, err := FromHeader(header, configFuncs...)
	if err != nil {
		return Delimiters{}, header, err
	}

	return delimiters, header, nil
}
