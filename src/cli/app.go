package cli

import (
	"context"
	"errors"

	"places_bot/src/archive"
	"places_bot/src/db"
	"places_bot/src/importer"
	"places_bot/src/metrics"
	"places_bot/src/refresh"
	"places_bot/src/types"
)

// app is the set of long-lived components every command shares.
type app struct {
	metrics   *metrics.Metrics
	store     types.DataStore
	refresher *refresh.Refresher
}

func openApp(ctx context.Context, opts *RootOptions, category string) (*app, error) {
	cfg, log := opts.cfg, opts.log

	store, err := db.Open(ctx, cfg.StoreOptions(), log)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	a := &app{metrics: m, store: m.Instrument(store)}

	arch, err := archive.Open(ctx, cfg.ArchiveOptions())
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	g := cfg.Geoapify
	client := importer.New(importer.Options{
		BaseURL: g.BaseURL,
		APIKey:  g.APIKey,
		Circle:  importer.Circle{Lat: g.Lat, Lon: g.Lon, Radius: g.Radius},
		Limit:   g.Limit,
		Timeout: g.Timeout.Duration,
	}, log)
	if category == "" {
		category = cfg.Category
	}
	a.refresher = refresh.New(client, a.store, log, refresh.Options{
		Category: category,
		Archive:  arch,
		Observe:  m.ObserveRefresh,
	})

	log.Debug("store ready", "driver", cfg.Store.Driver)
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
