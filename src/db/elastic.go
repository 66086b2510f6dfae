package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/olivere/elastic/v7"

	"places_bot/src/types"
)

var _ types.DataStore = (*ElasticStore)(nil)

const (
	maxResultWindow = 20000

	placesMapping = `{
	"mappings": {
		"properties": {
			"id":       {"type": "long"},
			"name":     {"type": "keyword"},
			"category": {"type": "keyword"},
			"address":  {"type": "keyword"}
		}
	}
}`
)

// ElasticStore keeps places as documents in one index. Writes are issued
// with refresh=true so a following read sees them.
type ElasticStore struct {
	Client *elastic.Client
	Index  string

	log    *slog.Logger
	mu     sync.Mutex
	lastID int64
}

func NewElasticStore(ctx context.Context, url, index string, log *slog.Logger) (*ElasticStore, error) {
	if index == "" {
		index = "places"
	}
	client, err := elastic.NewClient(elastic.SetURL(url), elastic.SetSniff(false))
	if err != nil {
		return nil, fmt.Errorf("create elastic client: %w", err)
	}
	es := &ElasticStore{Client: client, Index: index, log: log}

	if err := es.CreateIndexWithMapping(ctx); err != nil {
		client.Stop()
		return nil, err
	}
	if es.lastID, err = es.maxID(ctx); err != nil {
		client.Stop()
		return nil, err
	}
	return es, nil
}

// CreateIndexWithMapping creates the index with keyword fields so that
// name and address lookups are exact and category wildcards are
// case-sensitive. The result window is raised on existing indexes too,
// since every list asks for maxResultWindow hits.
func (es *ElasticStore) CreateIndexWithMapping(ctx context.Context) error {
	exists, err := es.Client.IndexExists(es.Index).Do(ctx)
	if err != nil {
		return fmt.Errorf("check index %s: %w", es.Index, err)
	}
	if exists {
		es.log.Debug("index already exists", "index", es.Index)
	} else {
		createIndex, err := es.Client.CreateIndex(es.Index).BodyString(placesMapping).Do(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", es.Index, err)
		}
		if !createIndex.Acknowledged {
			es.log.Warn("create index was not acknowledged", "index", es.Index)
		}
		es.log.Info("index created", "index", es.Index)
	}

	settings := map[string]interface{}{
		"index": map[string]interface{}{
			"max_result_window": maxResultWindow,
		},
	}
	return es.updateIndexSettings(ctx, settings)
}

func (es *ElasticStore) updateIndexSettings(ctx context.Context, settings map[string]interface{}) error {
	_, err := es.Client.IndexPutSettings(es.Index).BodyJson(settings).Do(ctx)
	if err != nil {
		return fmt.Errorf("update index settings: %w", err)
	}
	return nil
}

func (es *ElasticStore) maxID(ctx context.Context) (int64, error) {
	res, err := es.Client.Search().
		Index(es.Index).
		Size(0).
		Aggregation("max_id", elastic.NewMaxAggregation().Field("id")).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("read max id: %w", err)
	}
	agg, ok := res.Aggregations.Max("max_id")
	if !ok || agg.Value == nil {
		return 0, nil
	}
	return int64(*agg.Value), nil
}

func (es *ElasticStore) Close() error {
	es.Client.Stop()
	return nil
}

func (es *ElasticStore) CreatePlace(ctx context.Context, name, category, address string) (int64, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	place := types.Place{ID: es.lastID + 1, Name: name, Category: category, Address: address}
	_, err := es.Client.Index().
		Index(es.Index).
		Id(strconv.FormatInt(place.ID, 10)).
		BodyJson(place).
		Refresh("true").
		Do(ctx)
	if err != nil {
		return 0, types.Storage("create place", err)
	}
	es.lastID = place.ID
	return place.ID, nil
}

func (es *ElasticStore) FindAddressByName(ctx context.Context, name string) (string, error) {
	p, err := es.first(ctx, "find address by name", elastic.NewTermQuery("name", name))
	if err != nil {
		return "", err
	}
	return p.Address, nil
}

func (es *ElasticStore) FindNameByAddress(ctx context.Context, address string) (string, error) {
	p, err := es.first(ctx, "find name by address", elastic.NewTermQuery("address", address))
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

// first returns the lowest-id place matching q.
func (es *ElasticStore) first(ctx context.Context, op string, q elastic.Query) (types.Place, error) {
	places, err := es.search(ctx, op, q, 1)
	if err != nil {
		return types.Place{}, err
	}
	if len(places) == 0 {
		return types.Place{}, types.ErrNotFound
	}
	return places[0], nil
}

func (es *ElasticStore) ListByCategory(ctx context.Context, substring string) ([]types.Place, error) {
	q := elastic.NewWildcardQuery("category", "*"+escapeWildcard(substring)+"*")
	return es.search(ctx, "list by category", q, maxResultWindow)
}

func (es *ElasticStore) ListAll(ctx context.Context) ([]types.Place, error) {
	return es.search(ctx, "list all", elastic.NewMatchAllQuery(), maxResultWindow)
}

func (es *ElasticStore) search(ctx context.Context, op string, q elastic.Query, size int) ([]types.Place, error) {
	searchResult, err := es.Client.Search().
		Index(es.Index).
		Query(q).
		Sort("id", true).
		Size(size).
		Do(ctx)
	if err != nil {
		return nil, types.Storage(op, err)
	}

	places := []types.Place{}
	for _, hit := range searchResult.Hits.Hits {
		var place types.Place
		if err := json.Unmarshal(hit.Source, &place); err != nil {
			es.log.Warn("skipping undecodable document", "id", hit.Id, "err", err)
			continue
		}
		places = append(places, place)
	}
	return places, nil
}

func (es *ElasticStore) UpdateAddress(ctx context.Context, name, address string) (int64, error) {
	res, err := es.Client.UpdateByQuery(es.Index).
		Query(elastic.NewTermQuery("name", name)).
		Script(elastic.NewScript("ctx._source.address = params.address").Param("address", address)).
		Refresh("true").
		Do(ctx)
	if err != nil {
		return 0, types.Storage("update address", err)
	}
	return res.Updated, nil
}

func (es *ElasticStore) DeleteByName(ctx context.Context, name string) (int64, error) {
	return es.deleteByQuery(ctx, "delete by name", elastic.NewTermQuery("name", name))
}

// ClearAll removes every document. The id counter keeps running.
func (es *ElasticStore) ClearAll(ctx context.Context) error {
	_, err := es.deleteByQuery(ctx, "clear all", elastic.NewMatchAllQuery())
	return err
}

func (es *ElasticStore) deleteByQuery(ctx context.Context, op string, q elastic.Query) (int64, error) {
	res, err := es.Client.DeleteByQuery(es.Index).
		Query(q).
		Refresh("true").
		Do(ctx)
	if err != nil {
		return 0, types.Storage(op, err)
	}
	return res.Deleted, nil
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}
