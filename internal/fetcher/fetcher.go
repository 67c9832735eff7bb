// Package fetcher downloads dataset source artifacts over HTTP(S) and FTP,
// unpacks ZIP archives, and streams the CSV and XLSX tables inside them.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Fetcher retrieves a remote artifact.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Result describes a completed fetch.
type Result struct {
	Path        string
	Bytes       int64
	ETag        string
	NotModified bool
}

// Client routes downloads to the HTTP or FTP fetcher by URL scheme.
type Client struct {
	http *HTTPFetcher
	ftp  *FTPFetcher
}

// NewClient creates a Client from per-protocol options.
func NewClient(httpOpts HTTPOptions, ftpOpts FTPOptions) *Client {
	return &Client{
		http: NewHTTPFetcher(httpOpts),
		ftp:  NewFTPFetcher(ftpOpts),
	}
}

// Fetch downloads rawURL into dest. For HTTP sources a non-empty etag makes
// the request conditional; an unchanged resource leaves dest untouched and
// reports NotModified.
func (c *Client) Fetch(ctx context.Context, rawURL, dest, etag string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %s", rawURL)
	}

	var (
		body    io.ReadCloser
		newETag string
	)
	switch u.Scheme {
	case "http", "https":
		var changed bool
		body, newETag, changed, err = c.http.DownloadIfChanged(ctx, rawURL, etag)
		if err != nil {
			return nil, err
		}
		if !changed {
			return &Result{Path: dest, ETag: etag, NotModified: true}, nil
		}
	case "ftp":
		body, err = c.ftp.Download(ctx, rawURL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q in %s", u.Scheme, rawURL)
	}
	defer body.Close() //nolint:errcheck

	n, err := writeAtomic(dest, body)
	if err != nil {
		return nil, err
	}
	return &Result{Path: dest, Bytes: n, ETag: newETag}, nil
}

// writeAtomic streams r into a sibling temp file and renames it over path so
// a failed transfer never leaves a truncated artifact behind.
func writeAtomic(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrap(err, "fetcher: create parent directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return n, eris.Wrap(err, "fetcher: write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "fetcher: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrap(err, "fetcher: rename into place")
	}
	return n, nil
}
