package fetcher

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_Basic(t *testing.T) {
	input := "name,possible_website\nCube Smart,\"['https://www.cubesmart.com']\"\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"name", "possible_website"}, rows[0])
	assert.Equal(t, []string{"Cube Smart", "['https://www.cubesmart.com']"}, rows[1])
}

func TestReadCSV_CommentsAndTrim(t *testing.T) {
	input := "# brand sites\n publicstorage \n\ncubesmart\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Comment: '#', TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"publicstorage"}, {"cubesmart"}}, rows)
}

func TestReadCSV_VariableFields(t *testing.T) {
	rows, err := ReadCSV(context.Background(), strings.NewReader("a,b,c\n1\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, rows[1])
}

func TestReadCSV_BadQuote(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("a,\"b\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadCSV(ctx, strings.NewReader("a\nb\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, [][]string{
		{"name", "website"},
		{"Cube, Smart", "https://www.cubesmart.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "name,website\n\"Cube, Smart\",https://www.cubesmart.com\n", buf.String())
}
