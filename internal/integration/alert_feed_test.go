package integration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelzeko/alerts-sync/internal/entities"
)

const sampleFeed = `[
  {"data":"Sderot","date":"07.10.2023","time":"06:30:00","alertDate":"2023-10-07T06:30:00","category":1,"category_desc":"Missiles","matrix_id":1,"rid":29781},
  {"data":"Tel Aviv, South","date":"07.10.2023","time":"06:31:10","alertDate":"2023-10-07T06:31:00","category":1,"category_desc":"Missiles","matrix_id":1,"rid":29782}
]`

func newTestFeed(t *testing.T, handler http.HandlerFunc) *AlertFeed {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	feed, err := NewAlertFeed(AlertFeedOptions{URL: srv.URL + "/Shared/Ajax/GetAlarmsHistory.aspx", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return feed
}

func TestFetchAlerts(t *testing.T) {
	var query url.Values
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleFeed))
	})

	from := time.Date(2023, 10, 7, 6, 30, 1, 0, time.UTC)
	alerts, err := feed.FetchAlerts(context.Background(), from, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, "he", query.Get("lang"))
	assert.Equal(t, "0", query.Get("mode"))
	assert.Equal(t, "2023-10-07T06:30:01", query.Get("fromDate"))
	assert.Equal(t, "", query.Get("toDate"))
	assert.True(t, query.Has("toDate"))

	require.Len(t, alerts, 2)
	a := alerts[0]
	assert.Equal(t, "29781", a.ID)
	assert.Equal(t, "07.10.2023", a.Date)
	assert.Equal(t, "06:30:00", a.Time)
	assert.Equal(t, "Sderot", a.Get("data"))
	assert.Equal(t, "1", a.Get("category"))
	assert.Equal(t, []string{"data", "alertDate", "category", "category_desc", "matrix_id"}, a.ExtraKeys())
	assert.Equal(t, "Tel Aviv, South", alerts[1].Get("data"))
}

func TestFetchAlertsUnboundedFrom(t *testing.T) {
	var query url.Values
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte("[]"))
	})

	alerts, err := feed.FetchAlerts(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Equal(t, "", query.Get("fromDate"))
}

func TestFetchAlertsEmptyBody(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	alerts, err := feed.FetchAlerts(context.Background(), time.Now(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestFetchAlertsHTMLPage(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title>Access Denied</title></head><body><h1>Blocked</h1></body></html>`))
	})

	_, err := feed.FetchAlerts(context.Background(), time.Now(), time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrFetchFailed))
	assert.Contains(t, err.Error(), "Access Denied")
}

func TestFetchAlertsJSONLabelledAsHTML(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(sampleFeed))
	})

	alerts, err := feed.FetchAlerts(context.Background(), time.Now(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestFetchAlertsStatusError(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"unavailable"}`))
	})

	_, err := feed.FetchAlerts(context.Background(), time.Now(), time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrFetchFailed))
	assert.Contains(t, err.Error(), "503")
}

func TestFetchAlertsCancelledContext(t *testing.T) {
	feed := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := feed.FetchAlerts(ctx, time.Now(), time.Time{})
	assert.True(t, errors.Is(err, entities.ErrFetchFailed))
}

func TestRequestURLUsesLocation(t *testing.T) {
	feed, err := NewAlertFeed(AlertFeedOptions{
		URL:      "https://feed.example.com/history",
		Lang:     "en",
		Mode:     "1",
		Location: time.FixedZone("IST", 2*60*60),
	})
	require.NoError(t, err)

	raw, err := feed.RequestURL(
		time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "feed.example.com", u.Host)
	assert.Equal(t, "en", u.Query().Get("lang"))
	assert.Equal(t, "1", u.Query().Get("mode"))
	assert.Equal(t, "2024-01-01T10:00:00", u.Query().Get("fromDate"))
	assert.Equal(t, "2024-01-02T10:00:00", u.Query().Get("toDate"))
	assert.Equal(t, "https://feed.example.com/history", feed.Endpoint())
}

func TestNewAlertFeedInvalidProxy(t *testing.T) {
	_, err := NewAlertFeed(AlertFeedOptions{ProxyURL: "://bad"})
	assert.Error(t, err)
}

func TestParseAlertsMalformed(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
	}{
		{"invalid json", `[{"rid":1,`},
		{"object instead of array", `{"rid":1,"date":"07.10.2023","time":"06:30:00"}`},
		{"non-object item", `[1,2]`},
		{"missing rid", `[{"date":"07.10.2023","time":"06:30:00"}]`},
		{"missing time", `[{"rid":1,"date":"07.10.2023"}]`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAlerts([]byte(tc.body))
			assert.True(t, errors.Is(err, entities.ErrFetchFailed), "got %v", err)
		})
	}
}

func TestParseAlertsKeepsValuesVerbatim(t *testing.T) {
	alerts, err := ParseAlerts([]byte(`[{"rid":"29781","date":"07.10.2023","time":"06:30:00","lat":31.50,"shelter":null,"active":true,"areas":["a","b"]}]`))
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, "29781", a.ID)
	assert.Equal(t, "31.50", a.Get("lat"))
	assert.Equal(t, "", a.Get("shelter"))
	assert.Equal(t, "true", a.Get("active"))
	assert.Equal(t, `["a","b"]`, a.Get("areas"))
	assert.Equal(t, []string{"lat", "shelter", "active", "areas"}, a.ExtraKeys())
}

func TestParseAlertsWhitespaceOnly(t *testing.T) {
	alerts, err := ParseAlerts([]byte(" \n\t"))
	require.NoError(t, err)
	assert.Nil(t, alerts)
}
