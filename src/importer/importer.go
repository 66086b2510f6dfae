// Package importer fetches points of interest from the Geoapify Places API
// and ranks them for loading into the store.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"places_bot/src/types"
)

const DefaultBaseURL = "https://api.geoapify.com"

// DefaultMaxBodyBytes bounds a places response. A larger body is an error
// rather than a truncated, and so empty, import.
const DefaultMaxBodyBytes = 8 << 20

var ErrResponseTooLarge = errors.New("response body too large")

// Circle is the search area. Radius is in meters.
type Circle struct {
	Lat    float64
	Lon    float64
	Radius int
}

func (c Circle) filter() string {
	return "circle:" + strconv.FormatFloat(c.Lon, 'f', -1, 64) + "," +
		strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.Itoa(c.Radius)
}

type Options struct {
	BaseURL string
	APIKey  string
	Circle  Circle
	// Limit caps the number of results; zero leaves the source default.
	Limit        int
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Client talks to the places source. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	circle  Circle
	limit   int
	maxBody int64
	http    *http.Client
	log     *slog.Logger
}

func New(opts Options, log *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		circle:  opts.Circle,
		limit:   opts.Limit,
		maxBody: opts.MaxBodyBytes,
		http:    &http.Client{Timeout: opts.Timeout},
		log:     log,
	}
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Properties *properties `json:"properties"`
}

type properties struct {
	Name         string   `json:"name"`
	Categories   []string `json:"categories"`
	AddressLine2 string   `json:"address_line2"`
}

func (c *Client) requestURL(category string) string {
	q := url.Values{}
	q.Set("categories", category)
	q.Set("filter", c.circle.filter())
	if c.limit > 0 {
		q.Set("limit", strconv.Itoa(c.limit))
	}
	q.Set("apiKey", c.apiKey)
	return c.baseURL + "/v2/places?" + q.Encode()
}

// Fetch returns the places the source knows for category inside the
// configured circle, places with more category tags first. A response
// without a usable features collection yields no places and no error.
func (c *Client) Fetch(ctx context.Context, category string) ([]types.ImportedPlace, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(category), nil)
	if err != nil {
		return nil, &types.FetchError{Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &types.FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &types.FetchError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &types.FetchError{Err: err}
	}
	if int64(len(body)) > c.maxBody {
		return nil, &types.FetchError{Err: fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, c.maxBody)}
	}

	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		c.log.Warn("places response is not valid JSON", "category", category, "bytes", len(body), "err", err)
		return []types.ImportedPlace{}, nil
	}

	places := rank(fc.Features)
	c.log.Info("fetched places", "category", category, "features", len(fc.Features), "places", len(places), "bytes", len(body))
	return places, nil
}

// rank maps features to ImportedPlace and ranks them by descending
// tag count. Features without properties are dropped; ties keep source
// order.
func rank(features []feature) []types.ImportedPlace {
	kept := make([]properties, 0, len(features))
	for _, f := range features {
		if f.Properties == nil {
			continue
		}
		kept = append(kept, *f.Properties)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return len(kept[i].Categories) > len(kept[j].Categories)
	})

	places := make([]types.ImportedPlace, 0, len(kept))
	for _, p := range kept {
		categories := p.Categories
		if categories == nil {
			categories = []string{}
		}
		places = append(places, types.ImportedPlace{
			Name:       p.Name,
			Categories: categories,
			Address:    p.AddressLine2,
		})
	}
	return places
}
