package census

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

var txPlaces = [][]string{
	{"NAME", "B01003_001E", "B19013_001E", "state", "place"},
	{"Austin city, Texas", "974447", "86556", "48", "05000"},
	{"Houston city, Texas", "2304580", "56019", "48", "35000"},
	{"Boise City city, Texas", "1000", "50000", "48", "99999"},
	{"Prairie View CDP, Texas", "6500", "-666666666", "48", "11111"},
}

func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, 2022)
	require.NoError(t, err)
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache", "census.db"))
	require.NoError(t, err)
	return NewService(client, cache, nil), srv
}

func placesHandler(t *testing.T, calls *atomic.Int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/data/2022/acs/acs5", r.URL.Path)
		require.Equal(t, "place:*", r.URL.Query().Get("for"))
		require.Equal(t, "state:48", r.URL.Query().Get("in"))
		require.NoError(t, json.NewEncoder(w).Encode(txPlaces))
	}
}

func TestLookupMatchesAboveThreshold(t *testing.T) {
	var calls atomic.Int64
	svc, _ := newTestService(t, placesHandler(t, &calls))

	m, err := svc.Lookup(context.Background(), "Austin", "TX")
	require.NoError(t, err)
	require.NotNil(t, m.Population)
	require.Equal(t, 974447, *m.Population)
	require.NotNil(t, m.MedianIncome)
	require.Equal(t, 86556, *m.MedianIncome)
	require.Equal(t, "05000", m.PlaceFIPS)
	require.Equal(t, float64(100), m.Confidence)
	require.Equal(t, "Austin", m.MatchedName)
}

func TestLookupBelowThresholdWithholdsFigures(t *testing.T) {
	var calls atomic.Int64
	svc, _ := newTestService(t, placesHandler(t, &calls))

	m, err := svc.Lookup(context.Background(), "Zzyzzyville", "TX")
	require.NoError(t, err)
	require.Nil(t, m.Population)
	require.Nil(t, m.MedianIncome)
	require.Less(t, m.Confidence, float64(matchThreshold))
	require.NotEmpty(t, m.MatchedName) // best candidate still reported
}

func TestLookupFetchesStateOnlyOnce(t *testing.T) {
	var calls atomic.Int64
	svc, _ := newTestService(t, placesHandler(t, &calls))

	for _, city := range []string{"Austin", "Houston", "Austin"} {
		_, err := svc.Lookup(context.Background(), city, "TX")
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), calls.Load())
}

func TestLookupNegativeIncomeSentinelDropped(t *testing.T) {
	var calls atomic.Int64
	svc, _ := newTestService(t, placesHandler(t, &calls))

	m, err := svc.Lookup(context.Background(), "Prairie View", "TX")
	require.NoError(t, err)
	require.NotNil(t, m.Population)
	require.Nil(t, m.MedianIncome, "ACS annotation sentinel must not surface as income")
}

func TestCleanPlaceName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Austin city, Texas":          "Austin",
		"Cary town, North Carolina":   "Cary",
		"Boise City city, Idaho":      "Boise",
		"Prairie View CDP, Texas":     "Prairie View",
		"Juneau municipality, Alaska": "Juneau",
	}
	for in, want := range cases {
		require.Equal(t, want, cleanPlaceName(in), "input %q", in)
	}
}

func TestFetchErrorIsSanitizedHTTPError(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom api_key=supersecret123"))
	})

	_, err := svc.Lookup(context.Background(), "Austin", "TX")
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	require.NotContains(t, httpErr.Error(), "supersecret123")
}

func TestLookupUnknownStateErrors(t *testing.T) {
	var calls atomic.Int64
	svc, _ := newTestService(t, placesHandler(t, &calls))

	_, err := svc.Lookup(context.Background(), "Austin", "ZZ")
	require.Error(t, err)
	require.Equal(t, int64(0), calls.Load())
}

func TestWarmStatesPrefetchesDistinctStates(t *testing.T) {
	var calls atomic.Int64
	svc, _ := newTestService(t, placesHandler(t, &calls))

	err := svc.WarmStates(context.Background(), []string{"TX", "tx", " TX ", "", "ZZ"})
	require.NoError(t, err)
	require.Equal(t, int64(1), calls.Load())

	// Subsequent lookups are cache-only.
	_, err = svc.Lookup(context.Background(), "Austin", "TX")
	require.NoError(t, err)
	require.Equal(t, int64(1), calls.Load())
}

func TestWarmStatesSurfacesFetchFailure(t *testing.T) {
	svc, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := svc.WarmStates(context.Background(), []string{"TX"})
	require.Error(t, err)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	require.Equal(t, float64(100), Similarity("Austin", "austin"))
	require.Greater(t, Similarity("Ft Worth", "Fort Worth"), float64(75))
	require.Less(t, Similarity("Austin", "Houston"), float64(75))
	require.Equal(t, float64(100), Similarity("", ""))
}
