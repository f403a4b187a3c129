package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the CSV reader.
type CSVOptions struct {
	Delimiter rune // default ','
	Comment   rune // lines starting with it are skipped; 0 = none
	TrimSpace bool
	// LazyQuotes tolerates stray quotes inside unquoted fields, which the
	// scraper's serialized URL lists often contain.
	LazyQuotes bool
}

func (o CSVOptions) reader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	if o.Delimiter != 0 {
		reader.Comma = o.Delimiter
	}
	if o.Comment != 0 {
		reader.Comment = o.Comment
	}
	reader.LazyQuotes = o.LazyQuotes
	reader.FieldsPerRecord = -1
	return reader
}

// StreamCSV reads records from r onto the returned row channel. A read
// failure or cancellation is reported on the error channel. Both channels are
// closed when reading stops, and the caller must drain the row channel.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := opts.reader(r)
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV drains StreamCSV into memory.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) ([][]string, error) {
	rowCh, errCh := StreamCSV(ctx, r, opts)

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return rows, err
	}
	return rows, nil
}

// WriteCSV writes rows to w and flushes.
func WriteCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "csv: write rows")
	}
	return nil
}
