package source

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/areal/internal/fetcher"
	"github.com/sells-group/areal/internal/registry"
	"github.com/sells-group/areal/internal/store"
)

// Resolve returns a local path for src, downloading it when it is missing
// or force is set. ZIP downloads are extracted next to the configured path
// and the wanted member located by Member, the configured base name, or the
// configured extension, in that order.
func (l *Loader) Resolve(ctx context.Context, dataset, role string, src registry.SourceSpec, force bool) (string, error) {
	local := l.localPath(src.Path)

	var prev *store.FetchRecord
	if src.URL != "" && l.opts.Manifest != nil {
		rec, err := l.opts.Manifest.GetFetch(ctx, src.URL)
		if err != nil {
			return "", eris.Wrap(err, "source: read manifest")
		}
		prev = rec
	}

	if !force {
		if local != "" && exists(local) {
			return local, nil
		}
		if prev != nil && exists(prev.Path) {
			return prev.Path, nil
		}
	}

	if src.URL == "" {
		if local == "" {
			return "", eris.Errorf("source: dataset %s has no %s path or url", dataset, role)
		}
		return "", eris.Errorf("source: %s %s not found and no url configured", role, local)
	}
	if l.opts.Downloader == nil {
		return "", eris.Errorf("source: %s for dataset %s must be downloaded but no downloader is configured", role, dataset)
	}
	return l.download(ctx, dataset, role, src, local, prev)
}

func (l *Loader) download(ctx context.Context, dataset, role string, src registry.SourceSpec, local string, prev *store.FetchRecord) (string, error) {
	urlBase := urlBaseName(src.URL)
	isZip := strings.EqualFold(path.Ext(urlBase), ".zip")
	if local == "" {
		if isZip && src.Member == "" {
			return "", eris.Errorf("source: %s archive for dataset %s needs a path or member", role, dataset)
		}
		local = l.localPath(filepath.Join(dataset, urlBase))
	}

	dest := local
	if isZip {
		dest = filepath.Join(filepath.Dir(local), urlBase)
	}

	etag := ""
	if prev != nil && exists(prev.Path) && (!isZip || exists(dest)) {
		etag = prev.ETag
	}

	log := zap.L().With(zap.String("dataset", dataset), zap.String("role", role), zap.String("url", src.URL))
	log.Info("source: downloading")

	res, err := l.opts.Downloader.Fetch(ctx, src.URL, dest, etag)
	if err != nil {
		return "", eris.Wrapf(err, "source: download %s for dataset %s", role, dataset)
	}
	if res.NotModified {
		log.Info("source: unchanged upstream")
		return prev.Path, nil
	}

	resolved := dest
	if isZip {
		resolved, err = extract(dest, local, src.Member)
		if err != nil {
			return "", err
		}
	}

	if l.opts.Manifest != nil {
		err := l.opts.Manifest.RecordFetch(ctx, store.FetchRecord{
			Dataset: dataset,
			Role:    role,
			URL:     src.URL,
			Path:    resolved,
			ETag:    res.ETag,
			Bytes:   res.Bytes,
		})
		if err != nil {
			return "", eris.Wrap(err, "source: record fetch")
		}
	}

	log.Info("source: downloaded", zap.String("path", resolved), zap.Int64("bytes", res.Bytes))
	return resolved, nil
}

// extract unpacks archive beside want and returns the member to load.
func extract(archive, want, member string) (string, error) {
	paths, err := fetcher.ExtractZIP(archive, filepath.Dir(want))
	if err != nil {
		return "", eris.Wrapf(err, "source: extract %s", archive)
	}

	if member != "" {
		for _, p := range paths {
			if strings.EqualFold(filepath.Base(p), member) {
				return p, nil
			}
		}
		return "", eris.Errorf("source: %s not found in %s", member, archive)
	}
	for _, p := range paths {
		if strings.EqualFold(filepath.Base(p), filepath.Base(want)) {
			return p, nil
		}
	}
	p, err := fetcher.FindByExt(paths, filepath.Ext(want))
	if err != nil {
		return "", eris.Wrapf(err, "source: locate member of %s", archive)
	}
	return p, nil
}

func (l *Loader) localPath(p string) string {
	if p == "" || filepath.IsAbs(p) || l.opts.DataDir == "" {
		return p
	}
	return filepath.Join(l.opts.DataDir, p)
}

func urlBaseName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return "download"
	}
	return path.Base(u.Path)
}

func exists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
