package places

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/gpfinder/internal/practice"
)

const nearbyOK = `{
  "status": "OK",
  "results": [
    {
      "place_id": "ChIJelm",
      "name": "Elm Street Surgery",
      "vicinity": "1 Elm Street, Springfield",
      "rating": 4.4,
      "user_ratings_total": 90,
      "geometry": {"location": {"lat": 51.501, "lng": -0.121}}
    },
    {
      "place_id": "ChIJnew",
      "name": "New Practice",
      "geometry": {"location": {"lat": 51.502, "lng": -0.122}}
    }
  ]
}`

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return NewClient("test-key", srv.Client(), nil, Options{
		BaseURL:  srv.URL,
		Attempts: 3,
		Delay:    time.Millisecond,
		MaxDelay: 5 * time.Millisecond,
	})
}

func TestKeyword(t *testing.T) {
	assert.Equal(t, "GP doctor general practitioner", Keyword(true))
	assert.Equal(t, "GP doctor general practitioner -private", Keyword(false))
}

func TestNearbySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nearbysearch/json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "51.5,-0.12", q.Get("location"))
		assert.Equal(t, "2000", q.Get("radius"))
		assert.Equal(t, "GP doctor general practitioner -private", q.Get("keyword"))
		assert.Equal(t, "health", q.Get("type"))
		assert.Equal(t, "test-key", q.Get("key"))
		_, _ = w.Write([]byte(nearbyOK))
	}))
	defer srv.Close()

	raws, err := testClient(t, srv).NearbySearch(context.Background(),
		practice.Location{Lat: 51.5, Lng: -0.12}, SearchRadiusMeters, Keyword(false), PlaceType)
	require.NoError(t, err)
	require.Len(t, raws, 2)

	assert.Equal(t, "ChIJelm", raws[0].ID)
	assert.Equal(t, "1 Elm Street, Springfield", raws[0].Address)
	require.NotNil(t, raws[0].Rating)
	assert.InDelta(t, 4.4, *raws[0].Rating, 1e-9)
	require.NotNil(t, raws[0].ReviewCount)
	assert.Equal(t, 90, *raws[0].ReviewCount)

	assert.Nil(t, raws[1].Rating, "absent rating stays absent")
	assert.Nil(t, raws[1].ReviewCount)
}

func TestNearbySearch_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	}))
	defer srv.Close()

	raws, err := testClient(t, srv).NearbySearch(context.Background(), practice.Location{}, SearchRadiusMeters, Keyword(true), PlaceType)
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestNearbySearch_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		code      int
		wantCalls int32
	}{
		{"request denied", `{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid."}`, 200, 1},
		{"over query limit", `{"status":"OVER_QUERY_LIMIT"}`, 200, 1},
		{"unknown error retried", `{"status":"UNKNOWN_ERROR"}`, 200, 3},
		{"bad request", `nope`, 400, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := testClient(t, srv).NearbySearch(context.Background(), practice.Location{}, SearchRadiusMeters, Keyword(true), PlaceType)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUpstreamStatus), "got %v", err)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestNearbySearch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(nearbyOK))
	}))
	defer srv.Close()

	raws, err := testClient(t, srv).NearbySearch(context.Background(), practice.Location{}, SearchRadiusMeters, Keyword(true), PlaceType)
	require.NoError(t, err)
	assert.Len(t, raws, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNearbySearch_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(t, srv).NearbySearch(context.Background(), practice.Location{}, SearchRadiusMeters, Keyword(true), PlaceType)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNearbySearch_MissingKey(t *testing.T) {
	c := NewClient("", nil, nil, Options{})
	_, err := c.NearbySearch(context.Background(), practice.Location{}, SearchRadiusMeters, Keyword(true), PlaceType)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/details/json", r.URL.Path)
		assert.Equal(t, "ChIJelm", r.URL.Query().Get("place_id"))
		assert.Equal(t, "formatted_phone_number,website,opening_hours", r.URL.Query().Get("fields"))
		_, _ = w.Write([]byte(`{
		  "status": "OK",
		  "result": {
		    "formatted_phone_number": "020 7946 0000",
		    "website": "https://elmsurgery.nhs.uk/",
		    "opening_hours": {"weekday_text": ["Monday: 8:00 AM – 6:30 PM"]}
		  }
		}`))
	}))
	defer srv.Close()

	d, err := testClient(t, srv).Details(context.Background(), "ChIJelm")
	require.NoError(t, err)
	assert.Equal(t, "020 7946 0000", d.Phone)
	assert.Equal(t, "https://elmsurgery.nhs.uk/", d.Website)
	require.NotNil(t, d.OpeningHours)
	assert.Equal(t, []string{"Monday: 8:00 AM – 6:30 PM"}, d.OpeningHours.WeekdayText)
}

func TestDetails_NoHours(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"OK","result":{"website":"https://x.example.com"}}`))
	}))
	defer srv.Close()

	d, err := testClient(t, srv).Details(context.Background(), "ChIJx")
	require.NoError(t, err)
	assert.Nil(t, d.OpeningHours)
	assert.Empty(t, d.Phone)
}

func TestDetails_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"NOT_FOUND"}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv).Details(context.Background(), "ChIJgone")
	assert.ErrorIs(t, err, ErrUpstreamStatus)
}

func TestMetrics_ObserveRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(nearbyOK))
	}))
	defer srv.Close()

	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	c := testClient(t, srv)
	c.SetMetrics(m)
	_, err := c.NearbySearch(context.Background(), practice.Location{}, SearchRadiusMeters, Keyword(true), PlaceType)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("nearbysearch", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.requests.WithLabelValues("nearbysearch", "error")))
}
