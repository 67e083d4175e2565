package archive_test

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"testing"

	"github.com/teenjuna/edi"
	"github.com/teenjuna/edi/archive"
	"github.com/teenjuna/edi/internal/testing/require"
)

const document = "ST*837*0021~BROKEN~HI*ABK:J020*ABF:Z1159^ABF:R05~TOOLONG*1~SE*4*0021~"

func TestStoreAndReplay(t *testing.T) {
	run(t, func(t *testing.T, file string) {
		a, err := archive.New(func(c *archive.Config) {
			c.File(file)
			c.BatchSize(2)
		})
		require.Nil(t, err)
		deferClose(t, a)

		stream := edi.NewStream(strings.NewReader(document), edi.DefaultDelimiters)
		doc, err := a.Store(t.Context(), "claims.x12", stream)
		require.Nil(t, err)
		require.NotEqual(t, doc.ID, "")
		require.Equal(t, doc.Name, "claims.x12")
		require.Equal(t, doc.Delimiters, edi.DefaultDelimiters)
		require.Equal(t, doc.Complete, true)
		require.Equal(t, doc.Segments, 5)
		require.Equal(t, doc.Failed, 2)

		// Replaying the archive yields what decoding the document yields.
		want := collect(edi.NewStream(strings.NewReader(document), edi.DefaultDelimiters).All())
		got := collect(a.Segments(doc.ID))
		require.Equal(t, len(got), len(want))
		for i := range want {
			require.Equal(t, got[i].segment, want[i].segment)
			require.Equal(t, got[i].err, want[i].err)
		}

		var errs []error
		for _, err := range a.Segments(doc.ID) {
			if err != nil {
				errs = append(errs, err)
			}
		}
		require.ErrorIs(t, errs[0], edi.ErrMissingElementSeparator)
		require.ErrorIs(t, errs[1], edi.ErrInvalidTagLength)

		var decodeErr *edi.DecodeError
		require.True(t, errors.As(errs[1], &decodeErr))
		require.Equal(t, decodeErr.Index, 3)
	})
}

func TestStoreElementsSurvive(t *testing.T) {
	a, err := archive.New()
	require.Nil(t, err)
	deferClose(t, a)

	d := edi.Delimiters{SegmentTerminator: '\n', ElementSeparator: '|', ComponentSeparator: '>', RepetitionSeparator: '{'}
	stream := edi.NewStream(strings.NewReader("HI|ABK>J020{ABF>Z1159\n"), d)

	doc, err := a.Store(t.Context(), "pipes.x12", stream)
	require.Nil(t, err)

	stored, err := a.Document(doc.ID)
	require.Nil(t, err)
	require.Equal(t, stored.Delimiters, d)

	for segment, err := range a.Segments(doc.ID) {
		require.Nil(t, err)
		element, ok := segment.Element(0, stored.Delimiters)
		require.True(t, ok)
		require.True(t, element.Repeating())
		require.Equal(t, string(element.Occurrences()[1].Component(1)), "Z1159")
	}
}

func TestStoreIOFailure(t *testing.T) {
	a, err := archive.New(func(c *archive.Config) {
		c.BatchSize(1)
	})
	require.Nil(t, err)
	deferClose(t, a)

	failure := errors.New("connection reset")
	source := io.MultiReader(strings.NewReader("ST*1~BHT*2"), &brokenReader{err: failure})

	_, err = a.Store(t.Context(), "broken.x12", edi.NewStream(source, edi.DefaultDelimiters))
	require.ErrorIs(t, err, edi.ErrIO)
	require.ErrorIs(t, err, failure)

	docs, err := a.Documents()
	require.Nil(t, err)
	require.Equal(t, len(docs), 1)
	require.Equal(t, docs[0].Complete, false)
	require.Equal(t, docs[0].Segments, 1)
}

func TestStoreCanceled(t *testing.T) {
	a, err := archive.New()
	require.Nil(t, err)
	deferClose(t, a)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = a.Store(ctx, "claims.x12", edi.NewStream(strings.NewReader(document), edi.DefaultDelimiters))
	require.ErrorIs(t, err, context.Canceled)
}

func TestDocumentsAndDelete(t *testing.T) {
	a, err := archive.New()
	require.Nil(t, err)
	deferClose(t, a)

	first, err := a.Store(t.Context(), "a.x12", edi.NewStream(strings.NewReader("ST*1~"), edi.DefaultDelimiters))
	require.Nil(t, err)
	_, err = a.Store(t.Context(), "b.x12", edi.NewStream(strings.NewReader("ST*2~"), edi.DefaultDelimiters))
	require.Nil(t, err)

	docs, err := a.Documents()
	require.Nil(t, err)
	require.Equal(t, len(docs), 2)
	require.Equal(t, docs[0].Name, "a.x12")
	require.Equal(t, docs[1].Name, "b.x12")

	require.Nil(t, a.Delete(first.ID))

	_, err = a.Document(first.ID)
	require.ErrorIs(t, err, archive.ErrNotFound)
}

func TestClosed(t *testing.T) {
	a, err := archive.New()
	require.Nil(t, err)
	require.Nil(t, a.Close())

	_, err = a.Store(t.Context(), "a.x12", edi.NewStream(strings.NewReader("ST*1~"), edi.DefaultDelimiters))
	require.ErrorIs(t, err, archive.ErrClosed)
}

func TestOptions(t *testing.T) {
	c := &archive.Config{}

	require.PanicWithError(t, "file can't be blank", func() {
		c.File(" ")
	})

	require.PanicWithError(t, "file can't contain ?", func() {
		c.File("file?key=value")
	})

	require.PanicWithError(t, "batch size can't be < 1", func() {
		c.BatchSize(0)
	})

	require.PanicWithError(t, "workers can't be < 1", func() {
		c.Workers(0)
	})
}

type result struct {
	segment string
	err     string
}

func collect(seq func(yield func(edi.Segment, error) bool)) []result {
	var out []result
	for segment, err := range seq {
		r := result{}
		if err != nil {
			r.err = err.Error()
		} else {
			r.segment = segment.String()
		}
		out = append(out, r)
	}
	return out
}

type brokenReader struct {
	err error
}

func (r *brokenReader) Read([]byte) (int, error) {
	return 0, r.err
}

func run(t *testing.T, fn func(t *testing.T, file string)) {
	t.Helper()
	t.Run("In file", func(t *testing.T) {
		t.Helper()
		fn(t, path.Join(t.TempDir(), "archive.db"))
	})
	t.Run("In memory", func(t *testing.T) {
		t.Helper()
		fn(t, ":memory:")
	})
}

func deferClose(t *testing.T, a *archive.Archive) {
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Fatalf("close archive: %v", err)
		}
	})
}
