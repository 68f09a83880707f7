// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tomtom215/tracelane/internal/logging"
)

// ErrUnsupportedFormat is returned for file extensions ReadTable cannot read.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrMissingColumn is returned when a mapped column is absent from the header.
var ErrMissingColumn = errors.New("mapped column not found in file")

// Table is a parsed tabular file. Cells are raw strings; spreadsheet dates
// and times arrive as numeric serials.
type Table struct {
	Columns []string
	Rows    [][]string
	index   map[string]int
}

// NewTable builds a table from a header and data rows.
func NewTable(columns []string, rows [][]string) *Table {
	t := &Table{Columns: columns, Rows: rows, index: make(map[string]int, len(columns))}
	for i, c := range columns {
		c = strings.TrimSpace(c)
		t.Columns[i] = c
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
	return t
}

// ColumnIndex returns the position of a header name.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[strings.TrimSpace(name)]
	return i, ok
}

// Cell returns row[idx], or "" when the row is short or idx is negative.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// SupportedExtension reports whether ReadTable understands filename.
func SupportedExtension(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".csv", ".txt":
		return true
	}
	return false
}

// ReadTable reads the file at path. The format is chosen from the extension
// of filename, the name the client uploaded.
func ReadTable(path, filename string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return readSpreadsheet(path)
	case ".csv", ".txt":
		f, err := os.Open(path) //nolint:gosec // path is a server-side temp file
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", filename, err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				logging.Warn().Err(cerr).Str("file", filename).Msg("Failed to close upload")
			}
		}()
		return ReadCSV(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

func readSpreadsheet(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close spreadsheet")
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}
	return NewTable(rows[0], rows[1:]), nil
}

var utf8BOM = []byte("\ufeff")

// ReadCSV reads delimited text. The delimiter (';', ',' or tab) is the one
// occurring most often in the header line.
func ReadCSV(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if bytes.HasPrefix(head, utf8BOM) {
		if _, err := br.Discard(len(utf8BOM)); err != nil {
			return nil, fmt.Errorf("failed to skip byte order mark: %w", err)
		}
		head = head[len(utf8BOM):]
	}

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(head)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse delimited file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("file is empty")
	}
	return NewTable(records[0], records[1:]), nil
}

func sniffDelimiter(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{';', ',', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
