package stats

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/areal/internal/fetcher"
)

// LoadOptions selects how a statistics file is read.
type LoadOptions struct {
	// Sheet names the XLSX worksheet; empty means the first sheet.
	Sheet string
	// Delimiter overrides the CSV separator.
	Delimiter rune
}

// Load reads a statistics table, choosing the parser by file extension.
func Load(ctx context.Context, path, keyField string, opts LoadOptions) (*Table, error) {
	var (
		t   *Table
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		t, err = LoadCSV(ctx, path, keyField, opts.Delimiter)
	case ".tsv":
		delim := opts.Delimiter
		if delim == 0 {
			delim = '\t'
		}
		t, err = LoadCSV(ctx, path, keyField, delim)
	case ".xlsx":
		t, err = LoadXLSX(path, keyField, opts.Sheet)
	default:
		return nil, eris.Errorf("stats: unsupported statistics format %q", ext)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Debug("stats: loaded table",
		zap.String("path", path),
		zap.Int("rows", t.Len()),
		zap.Int("columns", len(t.Header)),
	)
	return t, nil
}

// LoadCSV reads a headed CSV file.
func LoadCSV(ctx context.Context, path, keyField string, delimiter rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "stats: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{Delimiter: delimiter})
	if err != nil {
		return nil, eris.Wrapf(err, "stats: read %s", path)
	}
	return New(keyField, header, rows)
}

// LoadXLSX reads one worksheet, locating the header row by the key field.
func LoadXLSX(path, keyField, sheet string) (*Table, error) {
	header, rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: sheet, HeaderKey: keyField})
	if err != nil {
		return nil, eris.Wrapf(err, "stats: read %s", path)
	}
	return New(keyField, header, rows)
}
