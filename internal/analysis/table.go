package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Table is a rectangular block of text cells with a header row.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// CSVOptions controls ReadCSV.
type CSVOptions struct {
	// Delimiter for CSV. If 0, sniffs ',', ';' or '\t' from the header line.
	Delimiter rune
	// MaxRows limits rows read; 0 means unlimited.
	MaxRows int
}

// ReadCSV reads a delimited table. Short rows are padded to the header width.
func ReadCSV(name string, r io.Reader, opt CSVOptions) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(data)
	}
	cr := csv.NewReader(strings.NewReader(string(data)))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = delim

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Table{Name: name}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &Table{Name: name, Header: make([]string, len(header))}
	for i, h := range header {
		t.Header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}
		if opt.MaxRows > 0 && len(t.Rows) >= opt.MaxRows {
			break
		}
		t.Rows = append(t.Rows, t.normalize(rec))
	}
	return t, nil
}

// Append adds a row, padding or truncating it to the header width.
func (t *Table) Append(row []string) {
	t.Rows = append(t.Rows, t.normalize(row))
}

func (t *Table) normalize(rec []string) []string {
	row := make([]string, len(t.Header))
	copy(row, rec)
	return row
}

// ColumnIndex returns the first column whose header contains any of the
// candidate substrings (case-insensitive), trying candidates in order.
// Exact matches win over substring matches.
func (t *Table) ColumnIndex(candidates ...string) (int, bool) {
	for _, c := range candidates {
		want := strings.ToLower(strings.TrimSpace(c))
		for i, h := range t.Header {
			if strings.ToLower(h) == want {
				return i, true
			}
		}
	}
	for _, c := range candidates {
		want := strings.ToLower(strings.TrimSpace(c))
		if want == "" {
			continue
		}
		for i, h := range t.Header {
			if strings.Contains(strings.ToLower(h), want) {
				return i, true
			}
		}
	}
	return -1, false
}

// Column returns the cells of column i.
func (t *Table) Column(i int) []string {
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		if i >= 0 && i < len(row) {
			out[r] = row[i]
		}
	}
	return out
}

// Floats converts column i with parse; cells that do not parse become NaN
// so rows stay aligned across columns.
func (t *Table) Floats(i int, parse func(string) (float64, bool)) []float64 {
	cells := t.Column(i)
	out := make([]float64, len(cells))
	for r, c := range cells {
		if v, ok := parse(c); ok {
			out[r] = v
		} else {
			out[r] = nan
		}
	}
	return out
}

func sniffDelimiter(data []byte) rune {
	line := string(data)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestN := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}
