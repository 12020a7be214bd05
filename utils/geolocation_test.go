package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnodedash/models"
)

func newTestGeoAPI(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/8.8.8.8":
			w.Write([]byte(`{"status":"success","country":"United States","regionName":"California","city":"Mountain View","lat":37.4,"lon":-122.1}`))
		case "/1.1.1.1":
			w.Write([]byte(`{"status":"fail"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeoResolver_Lookup(t *testing.T) {
	var calls int32
	srv := newTestGeoAPI(t, &calls)

	g := NewGeoResolver(GeoResolverConfig{
		APIURL:        srv.URL + "/",
		RatePerMinute: 60000,
		Timeout:       time.Second,
	})
	defer g.Close()

	loc, ok := g.Lookup(context.Background(), "8.8.8.8:6000")
	require.True(t, ok)
	assert.Equal(t, "United States", loc.Country)
	assert.Equal(t, "California", loc.Region)
	assert.Equal(t, "Mountain View", loc.City)
	assert.InDelta(t, -122.1, loc.Lng, 0.001)

	// cached
	_, ok = g.Lookup(context.Background(), "8.8.8.8")
	require.True(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGeoResolver_Failures(t *testing.T) {
	var calls int32
	srv := newTestGeoAPI(t, &calls)

	g := NewGeoResolver(GeoResolverConfig{APIURL: srv.URL + "/", RatePerMinute: 60000})

	for _, addr := range []string{"1.1.1.1:6000", "9.9.9.9", "not-an-ip", "", "10.0.0.1:6000", "127.0.0.1"} {
		loc, ok := g.Lookup(context.Background(), addr)
		assert.False(t, ok, addr)
		assert.Nil(t, loc)
	}
	// private and malformed addresses never reach the API
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, g.Cache().Len())

	var nilResolver *GeoResolver
	_, ok := nilResolver.Lookup(context.Background(), "8.8.8.8")
	assert.False(t, ok)
}

func TestGeoCache_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewGeoCache(time.Hour, func() time.Time { return now })

	c.Set("8.8.8.8", modelsGeo())
	_, ok := c.Get("8.8.8.8")
	assert.True(t, ok)

	now = now.Add(59 * time.Minute)
	_, ok = c.Get("8.8.8.8")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get("8.8.8.8")
	assert.False(t, ok)
}

func TestHostFromAddress(t *testing.T) {
	assert.Equal(t, "8.8.8.8", HostFromAddress("8.8.8.8:6000"))
	assert.Equal(t, "8.8.8.8", HostFromAddress(" 8.8.8.8 "))
	assert.Equal(t, "::1", HostFromAddress("[::1]:80"))
}

func modelsGeo() models.GeoLocation {
	return models.GeoLocation{Lat: 1, Lng: 2, Country: "X", Region: "Y"}
}
