// Package tabular streams header-keyed rows out of CSV and XLSX files.
package tabular

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Options configures the row readers.
type Options struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	Sheet      string   // XLSX sheet name; first sheet when empty
	Required   []string // header names that must be present
}

// Row is one data row addressed by header name.
type Row struct {
	Line   int
	header map[string]int
	values []string
}

// Get returns the trimmed value of column name, or "" when absent.
func (r Row) Get(name string) string {
	i, ok := r.header[normalizeHeader(name)]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

// Has reports whether the file carried column name.
func (r Row) Has(name string) bool {
	_, ok := r.header[normalizeHeader(name)]
	return ok
}

// StreamCSV reads a headed CSV and sends data rows to a channel. The caller
// must drain the row channel; the error channel carries at most one error.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts Options) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.Comment = opts.Comment
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1
		reader.ReuseRecord = false

		first, err := reader.Read()
		if err == io.EOF {
			errCh <- eris.New("csv: empty file")
			return
		}
		if err != nil {
			errCh <- eris.Wrap(err, "csv: read header")
			return
		}
		header, err := indexHeader(first, opts.Required)
		if err != nil {
			errCh <- err
			return
		}

		line := 1
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			line++
			if err != nil {
				errCh <- eris.Wrapf(err, "csv: read line %d", line)
				return
			}
			select {
			case rowCh <- Row{Line: line, header: header, values: record}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadFile reads every row of a CSV or XLSX file, chosen by extension.
func ReadFile(ctx context.Context, path string, opts Options) ([]Row, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadXLSX(path, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rowCh, errCh := StreamCSV(ctx, f, opts)
	return Collect(rowCh, errCh)
}

// Collect drains a row stream.
func Collect(rowCh <-chan Row, errCh <-chan error) ([]Row, error) {
	var rows []Row
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return rows, err
	}
	return rows, nil
}

func indexHeader(cells []string, required []string) (map[string]int, error) {
	header := make(map[string]int, len(cells))
	for i, c := range cells {
		if i == 0 {
			c = strings.TrimPrefix(c, "\ufeff")
		}
		key := normalizeHeader(c)
		if _, dup := header[key]; !dup {
			header[key] = i
		}
	}
	var missing []string
	for _, name := range required {
		if _, ok := header[normalizeHeader(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("tabular: missing required columns %s", strings.Join(missing, ", "))
	}
	return header, nil
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
