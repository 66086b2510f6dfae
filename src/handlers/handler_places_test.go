package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"places_bot/src/db"
	"places_bot/src/ratelimit"
	"places_bot/src/types"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newServer(t *testing.T) (*httptest.Server, types.DataStore) {
	t.Helper()
	s, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "places.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	srv := httptest.NewServer(NewRouter(s, discard, RouterOptions{}))
	t.Cleanup(srv.Close)
	return srv, s
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, strings.TrimSpace(string(b))
}

func TestEndToEnd(t *testing.T) {
	srv, _ := newServer(t)

	code, body := do(t, http.MethodPost, srv.URL+"/add_place", `{"name":"Library","category":"culture","address":"1 Main St"}`)
	assert.Equal(t, http.StatusCreated, code)
	assert.JSONEq(t, `{"message":"Place 'Library' added successfully"}`, body)

	code, body = do(t, http.MethodGet, srv.URL+"/place_by_name/Library", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"address":"1 Main St"}`, body)

	code, body = do(t, http.MethodDelete, srv.URL+"/delete_place/Library", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"message":"Place 'Library' deleted successfully"}`, body)

	code, body = do(t, http.MethodGet, srv.URL+"/place_by_name/Library", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"error":"Place not found"}`, body)
}

func TestAddPlaceValidation(t *testing.T) {
	srv, s := newServer(t)

	for name, payload := range map[string]string{
		"not json":        `name=Library`,
		"missing name":    `{"category":"culture","address":"1 Main St"}`,
		"blank address":   `{"name":"Library","category":"culture","address":"  "}`,
		"missing address": `{"name":"Library"}`,
	} {
		t.Run(name, func(t *testing.T) {
			code, body := do(t, http.MethodPost, srv.URL+"/add_place", payload)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Contains(t, body, `"error"`)
		})
	}

	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAddPlaceWithoutCategory(t *testing.T) {
	srv, s := newServer(t)

	code, _ := do(t, http.MethodPost, srv.URL+"/add_place", `{"name":"Bench","address":"Park lane"}`)
	assert.Equal(t, http.StatusCreated, code)

	all, err := s.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "", all[0].Category)
}

func TestPlaceByAddress(t *testing.T) {
	srv, s := newServer(t)
	_, err := s.CreatePlace(context.Background(), "Arch", "monument", "Khreshchatyk 1/3")
	require.NoError(t, err)

	code, body := do(t, http.MethodGet, srv.URL+"/place_by_address/Khreshchatyk%201/3", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"name":"Arch"}`, body)

	code, body = do(t, http.MethodGet, srv.URL+"/place_by_address/Nowhere", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"error":"Place not found"}`, body)
}

func TestListPlaces(t *testing.T) {
	srv, s := newServer(t)
	ctx := context.Background()
	_, err := s.CreatePlace(ctx, "Hydropark", "natural, park", "Island")
	require.NoError(t, err)
	_, err = s.CreatePlace(ctx, "Lavra", "tourism", "Lavrska St")
	require.NoError(t, err)

	code, body := do(t, http.MethodGet, srv.URL+"/list_places/park", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"name":"Hydropark","category":"natural, park","address":"Island"}]`, body)

	code, body = do(t, http.MethodGet, srv.URL+"/list_places/museum", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"error":"No places found for this category"}`, body)
}

func TestListPlacesExactSubstring(t *testing.T) {
	srv, s := newServer(t)
	_, err := s.CreatePlace(context.Background(), "Hydropark", "tourism, park", "Island")
	require.NoError(t, err)

	code, _ := do(t, http.MethodGet, srv.URL+"/list_places/park%20", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body := do(t, http.MethodGet, srv.URL+"/list_places/%2C%20park", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"name":"Hydropark","category":"tourism, park","address":"Island"}]`, body)

	// an empty category never reaches the store
	code, _ = do(t, http.MethodGet, srv.URL+"/list_places/", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRequestBodyTooLarge(t *testing.T) {
	srv, s := newServer(t)
	_, err := s.CreatePlace(context.Background(), "Opera", "culture", "old")
	require.NoError(t, err)
	huge := strings.Repeat("x", maxBodyBytes+1)

	code, body := do(t, http.MethodPost, srv.URL+"/add_place", `{"name":"`+huge+`","address":"A"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.JSONEq(t, `{"error":"Request body too large"}`, body)

	code, _ = do(t, http.MethodPut, srv.URL+"/update_place/Opera", `{"address":"`+huge+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)

	addr, err := s.FindAddressByName(context.Background(), "Opera")
	require.NoError(t, err)
	assert.Equal(t, "old", addr)
}

func TestListAllPlaces(t *testing.T) {
	srv, s := newServer(t)

	code, _ := do(t, http.MethodGet, srv.URL+"/list_all_places", "")
	assert.Equal(t, http.StatusNotFound, code)

	_, err := s.CreatePlace(context.Background(), "Lavra", "tourism", "Lavrska St")
	require.NoError(t, err)

	code, body := do(t, http.MethodGet, srv.URL+"/list_all_places", "")
	assert.Equal(t, http.StatusOK, code)
	var places []types.Place
	require.NoError(t, json.Unmarshal([]byte(body), &places))
	require.Len(t, places, 1)
	assert.Positive(t, places[0].ID)
	assert.Equal(t, "Lavra", places[0].Name)
}

func TestUpdatePlace(t *testing.T) {
	srv, s := newServer(t)
	_, err := s.CreatePlace(context.Background(), "Opera", "culture", "old")
	require.NoError(t, err)

	code, body := do(t, http.MethodPut, srv.URL+"/update_place/Opera", `{"address":"50 Volodymyrska St"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"message":"Place 'Opera' updated successfully"}`, body)

	code, body = do(t, http.MethodGet, srv.URL+"/place_by_name/Opera", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"address":"50 Volodymyrska St"}`, body)

	code, _ = do(t, http.MethodPut, srv.URL+"/update_place/Opera", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, http.MethodPut, srv.URL+"/update_place/Opera", `[`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, http.MethodPut, srv.URL+"/update_place/Ghost", `{"address":"x"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"error":"Place not found"}`, body)
}

func TestDeleteMissing(t *testing.T) {
	srv, _ := newServer(t)
	code, body := do(t, http.MethodDelete, srv.URL+"/delete_place/Ghost", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"error":"Place not found"}`, body)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newServer(t)
	code, _ := do(t, http.MethodGet, srv.URL+"/add_place", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

type failingStore struct{ types.DataStore }

var errDown = types.Storage("query", errors.New("connection refused"))

func (failingStore) CreatePlace(context.Context, string, string, string) (int64, error) {
	return 0, errDown
}
func (failingStore) FindAddressByName(context.Context, string) (string, error) { return "", errDown }
func (failingStore) UpdateAddress(context.Context, string, string) (int64, error) {
	return 0, errDown
}
func (failingStore) ListByCategory(context.Context, string) ([]types.Place, error) {
	return nil, errDown
}

func TestStorageFailureIs500(t *testing.T) {
	h := NewRouter(failingStore{}, discard, RouterOptions{})

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, "/add_place", `{"name":"a","address":"b"}`},
		{http.MethodGet, "/place_by_name/a", ""},
		{http.MethodPut, "/update_place/a", `{"address":"b"}`},
		{http.MethodGet, "/list_places/park", ""},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tc.path)
		assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String(), tc.path)
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := NewRouter(failingStore{}, discard, RouterOptions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestRateLimit(t *testing.T) {
	throttled := 0
	h := NewRouter(failingStore{}, discard, RouterOptions{
		Limiter:    ratelimit.New(0.001, 1, time.Minute),
		OnThrottle: func() { throttled++ },
	})

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5001"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:5000"))
	assert.Equal(t, 1, throttled)
}

func TestMetricsMounted(t *testing.T) {
	h := NewRouter(failingStore{}, discard, RouterOptions{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "places_up 1\n")
		}),
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "places_up 1\n", rec.Body.String())
}
