package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// Row is one delimited line with its 1-based position in the source
// file.
type Row struct {
	Line   int
	Fields []string
}

// RowReader is a pull-based iterator over a delimited stream. It reads
// one row per Next call with bounded buffering; the file is never
// materialized in memory. Row-level parse failures surface as
// KindParse errors so the caller can skip and continue; io.EOF marks a
// clean end of stream.
type RowReader struct {
	cr     *csv.Reader
	header []string
	line   int
}

// NewRowReader wraps r. When hasHeader is set the first line is consumed
// as the header and enforced as the expected width for data rows.
func NewRowReader(r io.Reader, hasHeader bool) (*RowReader, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	// Width is enforced after reading so short rows skip, not abort.
	cr.FieldsPerRecord = -1

	rr := &RowReader{cr: cr}
	if hasHeader {
		h, err := cr.Read()
		if err != nil {
			return nil, ioErrorf("read header: %w", err)
		}
		rr.header = normalizeHeader(h)
		rr.line = 1
	}
	return rr, nil
}

// Header returns the normalized header row, or nil for headerless
// streams.
func (r *RowReader) Header() []string {
	return r.header
}

// Next returns the next row. It returns io.EOF at end of stream and a
// KindParse error for malformed lines; both leave the reader usable for
// further Next calls (after a parse error the stream continues at the
// following line).
func (r *RowReader) Next() (Row, error) {
	rec, err := r.cr.Read()
	if errors.Is(err, io.EOF) {
		return Row{}, io.EOF
	}
	r.line++
	if err != nil {
		return Row{Line: r.line}, parseErrorf("line %d: %w", r.line, err)
	}
	if r.header != nil && len(rec) != len(r.header) {
		return Row{Line: r.line}, parseErrorf(
			"line %d: expected %d fields, got %d", r.line, len(r.header), len(rec))
	}
	fields := make([]string, len(rec))
	for i, v := range rec {
		fields[i] = strings.TrimSpace(v)
	}
	if r.line == 1 && len(fields) > 0 {
		// Headerless streams can still open with a UTF-8 BOM.
		fields[0] = strings.TrimPrefix(fields[0], "\uFEFF")
	}
	return Row{Line: r.line, Fields: fields}, nil
}

func normalizeHeader(h []string) []string {
	out := make([]string, len(h))
	for i, v := range h {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	if len(out) > 0 {
		// Strip a UTF-8 BOM if the exporter left one behind.
		out[0] = strings.TrimPrefix(out[0], "\uFEFF")
	}
	return out
}
