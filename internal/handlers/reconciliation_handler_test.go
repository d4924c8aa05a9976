package handler

import (
	"encoding/csv"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// brokenReader serves its head content, then fails every read with a
// persistent non-EOF error, like a multipart temp file closed mid-read.
type brokenReader struct {
	head io.Reader
	err  error
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if r.head != nil {
		n, err := r.head.Read(p)
		if err != io.EOF {
			return n, err
		}
		r.head = nil
	}
	return 0, r.err
}

func TestNextRecordSkipsMalformedRow(t *testing.T) {
	r := csv.NewReader(strings.NewReader("a,b\"c\nok,row\n"))
	r.FieldsPerRecord = -1

	_, skip, done := nextRecord(r)
	assert.True(t, skip)
	assert.False(t, done)

	record, skip, done := nextRecord(r)
	assert.False(t, skip)
	assert.False(t, done)
	assert.Equal(t, []string{"ok", "row"}, record)

	_, _, done = nextRecord(r)
	assert.True(t, done)
}

// A reader that fails persistently must terminate the ingest loop
// instead of being retried forever.
func TestNextRecordStopsOnBrokenReader(t *testing.T) {
	src := &brokenReader{head: strings.NewReader("h1,h2\n"), err: os.ErrClosed}
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1

	record, skip, done := nextRecord(r)
	assert.False(t, skip)
	assert.False(t, done)
	assert.Equal(t, []string{"h1", "h2"}, record)

	_, skip, done = nextRecord(r)
	assert.False(t, skip)
	assert.True(t, done)

	// Still terminal on repeated calls.
	_, _, done = nextRecord(r)
	assert.True(t, done)
}
