package facility

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteresolve/internal/fetcher"
	"github.com/sells-group/siteresolve/internal/sitematch"
)

const sampleCSV = `id,name,address,possible_website
1,Cube Smart,1 Main St,"['https://www.cubesmart.com', 'https://www.yelp.com/biz/cube']"
2,Storage Depot,2 Oak Ave,NULL
3,Broken Row,3 Elm St,[not a list
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRead_CSV(t *testing.T) {
	path := writeFile(t, "facilities.csv", sampleCSV)

	tbl, err := Read(context.Background(), &fetcher.Opener{}, path, FormatAuto, DefaultColumns())
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 3)

	assert.Equal(t, []string{"id", "name", "address", "possible_website"}, tbl.Header)
	assert.Equal(t, sitematch.Facility{
		Name:          "Cube Smart",
		CandidateURLs: []string{"https://www.cubesmart.com", "https://www.yelp.com/biz/cube"},
	}, tbl.Rows[0].Facility)
	assert.Empty(t, tbl.Rows[1].Facility.CandidateURLs)
	assert.NoError(t, tbl.Rows[1].ParseErr)
	assert.Error(t, tbl.Rows[2].ParseErr)
	assert.Equal(t, 2, tbl.Rows[2].Index)
	assert.Len(t, tbl.Facilities(), 3)
}

func TestRead_MissingColumns(t *testing.T) {
	path := writeFile(t, "facilities.csv", "id,title\n1,x\n")

	_, err := Read(context.Background(), &fetcher.Opener{}, path, FormatCSV, DefaultColumns())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing "name" column`)

	cols := DefaultColumns()
	cols.Name = "title"
	_, err = Read(context.Background(), &fetcher.Opener{}, path, FormatCSV, cols)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing "possible_website" column`)
}

func TestNewTable_Empty(t *testing.T) {
	_, err := NewTable(nil, DefaultColumns())
	require.Error(t, err)
}

func TestAugment_AppendsColumns(t *testing.T) {
	tbl, err := NewTable([][]string{
		{"name", "possible_website"},
		{"Cube Smart", "['https://www.cubesmart.com']"},
		{"Nowhere", "NULL"},
	}, DefaultColumns())
	require.NoError(t, err)

	header, rows, err := tbl.Augment([]sitematch.Result{
		{ChosenURL: "https://www.cubesmart.com", IsKnownBrand: true, Via: sitematch.ViaBrand},
		{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "possible_website", "website", "popular_brand_website"}, header)
	assert.Equal(t, []string{"Cube Smart", "['https://www.cubesmart.com']", "https://www.cubesmart.com", "True"}, rows[0])
	assert.Equal(t, []string{"Nowhere", "NULL", "NULL", "False"}, rows[1])
}

func TestAugment_OverwritesExistingColumns(t *testing.T) {
	tbl, err := NewTable([][]string{
		{"name", "website", "possible_website", "popular_brand_website"},
		{"Cube Smart", "stale", "['https://www.cubesmart.com']", "True"},
	}, DefaultColumns())
	require.NoError(t, err)

	header, rows, err := tbl.Augment([]sitematch.Result{{}})
	require.NoError(t, err)
	assert.Equal(t, tbl.Header, header)
	assert.Equal(t, []string{"Cube Smart", "NULL", "['https://www.cubesmart.com']", "False"}, rows[0])

	_, _, err = tbl.Augment(nil)
	require.Error(t, err)
}

func TestWrite_RoundTrip(t *testing.T) {
	header := []string{"name", "website", "popular_brand_website"}
	rows := [][]string{{"Cube Smart", "https://www.cubesmart.com", "True"}}

	for _, name := range []string{"out.csv", "out.xlsx"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Write(path, FormatAuto, header, rows))

			var got [][]string
			var err error
			if DetectFormat(path) == FormatXLSX {
				got, err = fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
			} else {
				f, openErr := os.Open(path)
				require.NoError(t, openErr)
				defer f.Close() //nolint:errcheck
				got, err = fetcher.ReadCSV(context.Background(), f, fetcher.CSVOptions{})
			}
			require.NoError(t, err)
			assert.Equal(t, append([][]string{header}, rows...), got)
		})
	}
}

func TestFormats(t *testing.T) {
	assert.Equal(t, FormatXLSX, DetectFormat("/data/Facilities.XLSX"))
	assert.Equal(t, FormatXLSX, DetectFormat("https://example.com/f.xlsx?token=1"))
	assert.Equal(t, FormatCSV, DetectFormat("facilities.csv"))
	assert.Equal(t, FormatCSV, DetectFormat("facilities"))

	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatAuto, f)
	_, err = ParseFormat("parquet")
	require.Error(t, err)
}
