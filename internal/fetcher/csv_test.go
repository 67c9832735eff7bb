package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := "LSOA21CD,Total,F0-15\nE01000001,1500,120\nE01000002,1800,95\n"

	header, rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"LSOA21CD", "Total", "F0-15"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"E01000002", "1800", "95"}, rows[1])
}

func TestReadCSV_StripsBOM(t *testing.T) {
	input := "\xEF\xBB\xBFLSOA21CD,Total\nE01000001,10\n"

	header, rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, "LSOA21CD", header[0])
	assert.Len(t, rows, 1)
}

func TestReadCSV_HeaderTrimmed(t *testing.T) {
	input := " code , value \n a , 1 \n"

	header, rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "value"}, header)
	assert.Equal(t, []string{" a ", " 1 "}, rows[0])

	_, rows, err = ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "1"}, rows[0])
}

func TestReadCSV_Delimiter(t *testing.T) {
	input := "code;value\nx;2\n"

	header, rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "value"}, header)
	assert.Equal(t, []string{"x", "2"}, rows[0])
}

func TestReadCSV_Empty(t *testing.T) {
	_, _, err := ReadCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	header, rows, err := ReadCSV(context.Background(), strings.NewReader("a,b\n"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, header)
	assert.Empty(t, rows)
}

func TestStreamCSV_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a\n1\n2\n"), CSVOptions{})
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestStreamCSV_Comment(t *testing.T) {
	input := "a,b\n# note\n1,2\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Comment: '#'})

	var rows [][]string
	for r := range rowCh {
		rows = append(rows, r)
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, [][]string{{"1", "2"}}, rows)
}
