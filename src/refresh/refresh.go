// Package refresh replaces the whole places table with a fresh import.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"places_bot/src/archive"
	"places_bot/src/types"
)

type Fetcher interface {
	Fetch(ctx context.Context, category string) ([]types.ImportedPlace, error)
}

type Result struct {
	Category string
	Fetched  int
	Inserted int
}

type Options struct {
	Category string
	// Archive receives a JSON copy of every successful fetch. Optional.
	Archive archive.Archive
	// Observe is called once per run with the outcome. Optional.
	Observe func(err error, inserted int)
}

type Refresher struct {
	fetcher  Fetcher
	store    types.DataStore
	category string
	archive  archive.Archive
	observe  func(err error, inserted int)
	log      *slog.Logger
	now      func() time.Time
}

func New(fetcher Fetcher, store types.DataStore, log *slog.Logger, opts Options) *Refresher {
	if opts.Category == "" {
		opts.Category = "tourism"
	}
	return &Refresher{
		fetcher:  fetcher,
		store:    store,
		category: opts.Category,
		archive:  opts.Archive,
		observe:  opts.Observe,
		log:      log,
		now:      time.Now,
	}
}

// Run fetches the configured category, clears the store and inserts the
// results in rank order. A failed fetch leaves the store untouched. A
// failed insert stops the run with the rows inserted so far kept.
func (r *Refresher) Run(ctx context.Context) (res Result, err error) {
	res.Category = r.category
	defer func() {
		if r.observe != nil {
			r.observe(err, res.Inserted)
		}
	}()

	places, err := r.fetcher.Fetch(ctx, r.category)
	if err != nil {
		r.log.Error("refresh aborted, store untouched", "category", r.category, "err", err)
		return res, fmt.Errorf("refresh %s: %w", r.category, err)
	}
	res.Fetched = len(places)
	r.archiveImport(ctx, places)

	if err := r.store.ClearAll(ctx); err != nil {
		return res, fmt.Errorf("refresh %s: %w", r.category, err)
	}
	for _, p := range places {
		_, err := r.store.CreatePlace(ctx,
			types.Normalize(p.Name),
			strings.Join(p.Categories, ", "),
			types.Normalize(p.Address),
		)
		if err != nil {
			r.log.Error("refresh stopped mid-insert", "category", r.category, "inserted", res.Inserted, "fetched", res.Fetched, "err", err)
			return res, fmt.Errorf("refresh %s: inserted %d of %d: %w", r.category, res.Inserted, res.Fetched, err)
		}
		res.Inserted++
	}

	r.log.Info("refresh complete", "category", r.category, "inserted", res.Inserted)
	r.dump(ctx)
	return res, nil
}

func (r *Refresher) archiveImport(ctx context.Context, places []types.ImportedPlace) {
	if r.archive == nil {
		return
	}
	body, err := json.MarshalIndent(places, "", "  ")
	if err != nil {
		r.log.Warn("encode import for archive", "err", err)
		return
	}
	key := fmt.Sprintf("imports/%s/%s.json", r.category, r.now().UTC().Format("20060102T150405Z"))
	if err := r.archive.Put(ctx, key, body); err != nil {
		r.log.Warn("archive import", "key", key, "err", err)
		return
	}
	r.log.Debug("import archived", "key", key)
}

// dump logs the table contents at debug level.
func (r *Refresher) dump(ctx context.Context) {
	if !r.log.Enabled(ctx, slog.LevelDebug) {
		return
	}
	places, err := r.store.ListAll(ctx)
	if err != nil {
		r.log.Debug("list places after refresh", "err", err)
		return
	}
	for _, p := range places {
		r.log.Debug("stored place", "id", p.ID, "name", p.Name, "category", p.Category, "address", p.Address)
	}
}
