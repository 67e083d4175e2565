package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teenjuna/edi"
	"github.com/teenjuna/edi/archive"
)

const sample = "../../testdata/sample837.txt"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := New()
	cmd.Writer = &out
	cmd.ErrWriter = &errOut

	err := cmd.Run(t.Context(), append([]string{"edi"}, args...))
	return out.String(), err
}

func TestDelims(t *testing.T) {
	out, err := run(t, "delims", sample)
	require.NoError(t, err)

	assert.Contains(t, out, "sample837.txt")
	assert.Contains(t, out, `segment terminator   '~'`)
	assert.Contains(t, out, `element separator    '*'`)
	assert.Contains(t, out, `component separator  ':'`)
	assert.Contains(t, out, `repetition separator '^'`)
	assert.NotContains(t, out, "not distinct")
}

func TestDelimsErrors(t *testing.T) {
	_, err := run(t, "delims")
	assert.Error(t, err)

	short := writeFile(t, "short.x12", "ISA*00*~")
	_, err = run(t, "delims", short)
	assert.ErrorIs(t, err, edi.ErrHeaderTooShort)

	_, err = run(t, "delims", filepath.Join(t.TempDir(), "missing.x12"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSegments(t *testing.T) {
	out, err := run(t, "segments", sample)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 26)

	fields := strings.Fields(lines[19])
	assert.Equal(t, []string{"19", "CLM", "26463774*100***11:B:1*Y*A*Y*I"}, fields)
	assert.Equal(t, "IEA", strings.Fields(lines[25])[1])
}

func TestSegmentsElements(t *testing.T) {
	out, err := run(t, "segments", "--elements", sample)
	require.NoError(t, err)

	assert.Contains(t, out, `HI01 ["ABK" "J020"]`)
	assert.Contains(t, out, `HI02 ["ABF" "Z1159"] ^ ["ABF" "R05"]`)
	assert.Contains(t, out, `CLM03 ""`)
}

func TestSegmentsWithFailures(t *testing.T) {
	file := writeFile(t, "broken.x12", brokenDocument())

	out, err := run(t, "segments", file)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[2], "error: missing element separator")
	assert.Equal(t, "IEA", strings.Fields(lines[3])[1])
}

func TestSegmentsNewlineTerminated(t *testing.T) {
	data, err := os.ReadFile(sample)
	require.NoError(t, err)
	document := strings.ReplaceAll(string(data), "~\n", "\n")
	document = strings.Replace(document, "\nGS*", "\n\nGS*", 1)
	file := writeFile(t, "newline.x12", document)

	out, err := run(t, "segments", file)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 27)
	assert.Contains(t, lines[1], "error: missing element separator")
	assert.Equal(t, "GS", strings.Fields(lines[2])[1])
	assert.Equal(t, "IEA", strings.Fields(lines[26])[1])
}

func TestStat(t *testing.T) {
	broken := writeFile(t, "broken.x12", brokenDocument())

	out, err := run(t, "stat", sample, broken)
	require.NoError(t, err)

	assert.Contains(t, out, sample+" 26 segments, 0 failed")
	assert.Contains(t, out, broken+" 4 segments, 1 failed")

	counts := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		if fields := strings.Fields(line); len(fields) == 2 {
			counts[fields[0]] = fields[1]
		}
	}
	assert.Equal(t, "5", counts["NM1"])
	assert.Equal(t, "2", counts["HL"])
}

func TestStatErrors(t *testing.T) {
	_, err := run(t, "stat")
	assert.Error(t, err)

	short := writeFile(t, "short.x12", "ISA*00*~")
	_, err = run(t, "stat", sample, short)
	assert.ErrorIs(t, err, edi.ErrHeaderTooShort)
}

func TestArchive(t *testing.T) {
	db := filepath.Join(t.TempDir(), "archive.db")
	broken := writeFile(t, "broken.x12", brokenDocument())

	out, err := run(t, "archive", "--db", db, sample, broken)
	require.NoError(t, err)
	assert.Contains(t, out, "26 segments")
	assert.Contains(t, out, "4 segments 1 failed")

	a, err := archive.New(func(c *archive.Config) {
		c.File(db)
	})
	require.NoError(t, err)
	defer a.Close()

	docs, err := a.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 2)

	names := []string{docs[0].Name, docs[1].Name}
	assert.ElementsMatch(t, []string{"sample837.txt", "broken.x12"}, names)
	for _, doc := range docs {
		assert.True(t, doc.Complete)
		assert.Equal(t, edi.DefaultDelimiters, doc.Delimiters)
	}
}

func TestArchiveProgress(t *testing.T) {
	db := filepath.Join(t.TempDir(), "archive.db")

	out, err := run(t, "archive", "--progress", "--db", db, sample)
	require.NoError(t, err)
	assert.Contains(t, out, "26 segments")
}

func TestArchiveRequiresDB(t *testing.T) {
	_, err := run(t, "archive", sample)
	assert.Error(t, err)
}

func TestFormatElement(t *testing.T) {
	d := edi.DefaultDelimiters

	assert.Equal(t, `"837"`, formatElement(edi.DecodeElement([]byte("837"), d)))
	assert.Equal(t, `["A" "" "B"]`, formatElement(edi.DecodeElement([]byte("A::B"), d)))
	assert.Equal(t, `"X" ^ "Y" ^ "Z"`, formatElement(edi.DecodeElement([]byte("X^Y^Z"), d)))
	assert.Equal(t, `""`, formatElement(edi.DecodeElement(nil, d)))
}

func brokenDocument() string {
	data, err := os.ReadFile(sample)
	if err != nil {
		panic(err)
	}
	return string(data[:edi.HeaderLength]) + "\nGS*HC*S*R~\nBROKEN~\nIEA*1*000000905~\n"
}

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(file, []byte(data), 0o644))
	return file
}
