package edi

import "bytes"

// Element is one field of a segment body. It is either a single occurrence or, when the
// repetition separator is present, a sequence of repeated occurrences.
//
// An Element never copies bytes: it refers to the data it was decoded from.
type Element struct {
	occurrences []Occurrence
	repeating   bool
}

// Occurrence is one repetition of an element. It is either a scalar value or, when the
// component separator is present, a composite of components.
type Occurrence struct {
	value      []byte
	components [][]byte
}

// DecodeElement decodes one element. It never fails.
//
// If data contains the repetition separator, it is split on every repetition separator and the
// element is repeating, with one more occurrence than there are separators. Each occurrence is
// split on the component separator the same way. Adjacent and trailing separators produce empty
// occurrences and components. Empty data is a single empty scalar.
func DecodeElement(data []byte, delimiters Delimiters) Element {
	if bytes.IndexByte(data, delimiters.RepetitionSeparator) < 0 {
		return Element{
			occurrences: []Occurrence{decodeOccurrence(data, delimiters.ComponentSeparator)},
		}
	}

	parts := split(data, delimiters.RepetitionSeparator)
	occurrences := make([]Occurrence, len(parts))
	for i, part := range parts {
		occurrences[i] = decodeOccurrence(part, delimiters.ComponentSeparator)
	}

	return Element{
		occurrences: occurrences,
		repeating:   true,
	}
}

func decodeOccurrence(data []byte, separator byte) Occurrence {
	if bytes.IndexByte(data, separator) < 0 {
		return Occurrence{value: data}
	}
	return Occurrence{
		value:      data,
		components: split(data, separator),
	}
}

// split is bytes.Split for a single byte separator, with sub-slices capped so appending to one of
// them can't overwrite its neighbours.
func split(data []byte, separator byte) [][]byte {
	parts := make([][]byte, 0, bytes.Count(data, []byte{separator})+1)
	for {
		i := bytes.IndexByte(data, separator)
		if i < 0 {
			return append(parts, data[:len(data):len(data)])
		}
		parts = append(parts, data[:i:i])
		data = data[i+1:]
	}
}

// Repeating reports whether the element contained the repetition separator.
func (e Element) Repeating() bool {
	return e.repeating
}

// Occurrences returns the occurrences of the element. A single element has exactly one.
func (e Element) Occurrences() []Occurrence {
	return e.occurrences
}

// First returns the first occurrence, which is the only one of a single element. The zero Element
// returns an empty occurrence.
func (e Element) First() Occurrence {
	if len(e.occurrences) == 0 {
		return Occurrence{}
	}
	return e.occurrences[0]
}

// Composite reports whether the occurrence contained the component separator.
func (o Occurrence) Composite() bool {
	return o.components != nil
}

// Value returns the raw bytes of the occurrence, separators included for a composite.
func (o Occurrence) Value() []byte {
	return o.value
}

// Components returns the components of a composite occurrence. A scalar is returned as its only
// component.
func (o Occurrence) Components() [][]byte {
	if o.components == nil {
		return [][]byte{o.value}
	}
	return o.components
}

// Component returns the component at the 0-based position i, or nil if there is none.
func (o Occurrence) Component(i int) []byte {
	components := o.Components()
	if i < 0 || i >= len(components) {
		return nil
	}
	return components[i]
}
