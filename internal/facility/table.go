// Package facility reads facility tables produced by the search scraper and
// writes them back with the resolved website columns.
package facility

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteresolve/internal/fetcher"
	"github.com/sells-group/siteresolve/internal/sitematch"
)

// Format is a table file format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a configured format. Empty means FormatAuto.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("facility: unknown table format %q", s)
	}
}

// DetectFormat picks a format from the file extension, defaulting to CSV.
func DetectFormat(path string) Format {
	if i := strings.IndexAny(path, "?#"); i >= 0 && fetcher.IsRemote(path) {
		path = path[:i]
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

func (f Format) resolve(path string) Format {
	if f == "" || f == FormatAuto {
		return DetectFormat(path)
	}
	return f
}

// Columns names the columns read and written.
type Columns struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Candidates string `mapstructure:"candidates" yaml:"candidates"`
	Website    string `mapstructure:"website" yaml:"website"`
	Brand      string `mapstructure:"brand" yaml:"brand"`
}

// DefaultColumns matches the scraper's output and the downstream import.
func DefaultColumns() Columns {
	return Columns{
		Name:       "name",
		Candidates: "possible_website",
		Website:    "website",
		Brand:      "popular_brand_website",
	}
}

// Row is one data row of a facility table.
type Row struct {
	// Index is the zero-based position among data rows.
	Index    int
	Values   []string
	Facility sitematch.Facility
	// ParseErr is set when the candidate list could not be decoded. The row
	// is still returned, with no candidates.
	ParseErr error
}

// Table is a facility table with its header preserved.
type Table struct {
	Header  []string
	Rows    []Row
	Columns Columns
}

// Opener resolves a source string to a readable stream.
type Opener interface {
	Open(ctx context.Context, source string) (io.ReadCloser, error)
}

// Read loads a facility table from source. The header row must contain the
// name and candidate columns; all other columns are carried through.
func Read(ctx context.Context, opener Opener, source string, format Format, cols Columns) (*Table, error) {
	rc, err := opener.Open(ctx, source)
	if err != nil {
		return nil, eris.Wrap(err, "facility: open table")
	}
	defer rc.Close() //nolint:errcheck

	var records [][]string
	switch format.resolve(source) {
	case FormatXLSX:
		records, err = fetcher.ReadXLSXFrom(rc, fetcher.XLSXOptions{})
	default:
		records, err = fetcher.ReadCSV(ctx, rc, fetcher.CSVOptions{LazyQuotes: true})
	}
	if err != nil {
		return nil, eris.Wrapf(err, "facility: read %s", source)
	}

	t, err := NewTable(records, cols)
	if err != nil {
		return nil, eris.Wrapf(err, "facility: read %s", source)
	}
	zap.L().Info("read facility table",
		zap.String("source", source),
		zap.Int("rows", len(t.Rows)),
	)
	return t, nil
}

// NewTable builds a Table from raw records whose first record is the header.
func NewTable(records [][]string, cols Columns) (*Table, error) {
	if len(records) == 0 {
		return nil, eris.New("facility: table has no header row")
	}
	header := records[0]

	nameIdx := indexOf(header, cols.Name)
	if nameIdx < 0 {
		return nil, eris.Errorf("facility: missing %q column", cols.Name)
	}
	candIdx := indexOf(header, cols.Candidates)
	if candIdx < 0 {
		return nil, eris.Errorf("facility: missing %q column", cols.Candidates)
	}

	t := &Table{Header: header, Columns: cols, Rows: make([]Row, 0, len(records)-1)}
	for i, rec := range records[1:] {
		row := Row{Index: i, Values: rec}
		row.Facility.Name = field(rec, nameIdx)

		urls, err := ParseCandidates(field(rec, candIdx))
		if err != nil {
			row.ParseErr = err
			zap.L().Warn("unreadable candidate list",
				zap.Int("row", i),
				zap.String("facility", row.Facility.Name),
				zap.Error(err),
			)
		}
		row.Facility.CandidateURLs = urls
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Facilities returns the facility of every row, in row order.
func (t *Table) Facilities() []sitematch.Facility {
	out := make([]sitematch.Facility, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Facility
	}
	return out
}

// Augment returns the header and rows with the website and brand columns
// set from results, which must be in row order. Existing columns of the same
// name are overwritten; otherwise they are appended.
func (t *Table) Augment(results []sitematch.Result) ([]string, [][]string, error) {
	if len(results) != len(t.Rows) {
		return nil, nil, eris.Errorf("facility: %d results for %d rows", len(results), len(t.Rows))
	}

	header := append([]string(nil), t.Header...)
	webIdx := indexOf(header, t.Columns.Website)
	if webIdx < 0 {
		header = append(header, t.Columns.Website)
		webIdx = len(header) - 1
	}
	brandIdx := indexOf(header, t.Columns.Brand)
	if brandIdx < 0 {
		header = append(header, t.Columns.Brand)
		brandIdx = len(header) - 1
	}

	rows := make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		out := make([]string, len(header))
		copy(out, r.Values)
		out[webIdx] = results[i].Website()
		out[brandIdx] = FormatBool(results[i].IsKnownBrand)
		rows[i] = out
	}
	return header, rows, nil
}

// FormatBool renders a flag the way pandas writes booleans.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Write saves header and rows to path as CSV or XLSX.
func Write(path string, format Format, header []string, rows [][]string) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, header)
	records = append(records, rows...)

	if format.resolve(path) == FormatXLSX {
		return eris.Wrap(fetcher.WriteXLSX(path, "", records), "facility: write table")
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "facility: create output")
	}
	if err := fetcher.WriteCSV(f, records); err != nil {
		_ = f.Close()
		return eris.Wrap(err, "facility: write table")
	}
	return eris.Wrap(f.Close(), "facility: close output")
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}
