package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteresolve/internal/config"
	"github.com/sells-group/siteresolve/internal/fetcher"
	"github.com/sells-group/siteresolve/internal/registry"
	"github.com/sells-group/siteresolve/internal/sitematch"
	"github.com/sells-group/siteresolve/internal/store"
)

// initStore opens and migrates the configured run store. It returns a nil
// store when store.driver is "none".
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch sc.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		st, err = store.NewSQLite(sc.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, sc.DatabaseURL, &store.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", sc.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// newOpener builds the local/HTTP/FTP source opener from the fetch settings.
func newOpener(fc config.FetchConfig) *fetcher.Opener {
	timeout := time.Duration(fc.TimeoutSecs) * time.Second
	return fetcher.NewOpener(
		fetcher.HTTPOptions{
			UserAgent:         fc.UserAgent,
			Timeout:           timeout,
			MaxRetries:        fc.MaxRetries,
			RequestsPerSecond: fc.RequestsPerSecond,
		},
		fetcher.FTPOptions{Timeout: timeout},
	)
}

// loadResolver loads the brand registry from source and builds a Resolver
// in the configured mode. A registry failure is fatal to every command.
func loadResolver(ctx context.Context, opener registry.Opener, source, mode string) (*sitematch.Resolver, error) {
	m, err := sitematch.ParseMode(mode)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Load(ctx, source, opener, registry.DefaultOptions())
	if err != nil {
		return nil, err
	}

	zap.L().Info("resolver ready",
		zap.String("brand_sites", source),
		zap.Int("brand_entries", reg.Len()),
		zap.String("mode", string(m)),
	)
	return sitematch.NewResolver(reg, sitematch.Options{Mode: m}), nil
}
