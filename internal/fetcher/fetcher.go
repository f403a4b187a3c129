// Package fetcher opens brand lists and facility tables from local files,
// HTTP(S) and FTP, and reads and writes them as CSV or XLSX.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads a remote resource.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Opener resolves a source string to a reader: plain paths and file:// URLs
// are opened from disk, http(s):// URLs go through HTTP and ftp:// through FTP.
type Opener struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewOpener returns an Opener with default HTTP and FTP fetchers.
func NewOpener(httpOpts HTTPOptions, ftpOpts FTPOptions) *Opener {
	return &Opener{
		HTTP: NewHTTPFetcher(httpOpts),
		FTP:  NewFTPFetcher(ftpOpts),
	}
}

// IsRemote reports whether source needs a network fetch.
func IsRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "ftp://")
}

// Open returns a reader for source. The caller must close it.
func (o *Opener) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	if source == "" {
		return nil, eris.New("fetcher: empty source")
	}

	if !strings.Contains(source, "://") {
		f, err := os.Open(source)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", source)
		}
		return f, nil
	}

	u, err := url.Parse(source)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse source %s", source)
	}

	var f Fetcher
	switch strings.ToLower(u.Scheme) {
	case "file":
		file, err := os.Open(u.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", u.Path)
		}
		return file, nil
	case "http", "https":
		f = o.HTTP
	case "ftp":
		f = o.FTP
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}

	if f == nil {
		return nil, eris.Errorf("fetcher: no fetcher configured for %s", u.Scheme)
	}
	return f.Download(ctx, source)
}
