// Package registry loads the brand site list the resolver checks candidates
// against.
package registry

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteresolve/internal/fetcher"
	"github.com/sells-group/siteresolve/internal/resilience"
	"github.com/sells-group/siteresolve/internal/sitematch"
)

// StartupError reports that the brand registry could not be loaded. Callers
// must not resolve anything after receiving one.
type StartupError struct {
	Source string
	Err    error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("registry: load brand sites from %s: %v", e.Source, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Opener resolves a source string to a readable stream.
type Opener interface {
	Open(ctx context.Context, source string) (io.ReadCloser, error)
}

// Options configures Load.
type Options struct {
	// Retry applies to remote sources only.
	Retry resilience.RetryConfig
}

// DefaultOptions retries a remote brand list twice more on transient errors.
func DefaultOptions() Options {
	return Options{Retry: resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		ShouldRetry:    resilience.IsTransient,
		OnRetry:        resilience.LogRetries("registry: load brand sites"),
	}}
}

// Load reads one brand token per line from source. Blank lines and lines
// starting with '#' are skipped. Any failure, including an empty list, is
// returned as a *StartupError.
func Load(ctx context.Context, source string, opener Opener, opts Options) (*sitematch.Registry, error) {
	if source == "" {
		return nil, &StartupError{Source: source, Err: eris.New("no brand_sites source configured")}
	}

	read := func(ctx context.Context) ([]string, error) {
		rc, err := opener.Open(ctx, source)
		if err != nil {
			return nil, err
		}
		defer rc.Close() //nolint:errcheck
		return readEntries(ctx, rc)
	}

	var (
		entries []string
		err     error
	)
	if fetcher.IsRemote(source) {
		entries, err = resilience.DoVal(ctx, opts.Retry, read)
	} else {
		entries, err = read(ctx)
	}
	if err != nil {
		return nil, &StartupError{Source: source, Err: err}
	}

	reg := sitematch.NewRegistry(entries)
	if reg.Len() == 0 {
		return nil, &StartupError{Source: source, Err: eris.New("brand list is empty")}
	}

	zap.L().Info("loaded brand registry",
		zap.String("source", source),
		zap.Int("entries", reg.Len()),
		zap.Int("duplicates", len(entries)-reg.Len()),
	)
	return reg, nil
}

// readEntries takes the first field of every non-comment line. Lines are
// read as single-column CSV so a trailing comma or quoted token is tolerated.
func readEntries(ctx context.Context, r io.Reader) ([]string, error) {
	rows, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{
		Comment:    '#',
		TrimSpace:  true,
		LazyQuotes: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "registry: parse brand list")
	}

	entries := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		entries = append(entries, row[0])
	}
	return entries, nil
}
