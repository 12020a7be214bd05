package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotArray = `[
	{"pubkey": "pk-one", "status": "online", "version": "0.8.0", "uptime": 12.5, "isPublic": true},
	{"pubkey": "pk-two", "status": "offline", "version": "0.7.3"}
]`

func TestFileSnapshotSource(t *testing.T) {
	dir := t.TempDir()

	t.Run("bare array", func(t *testing.T) {
		path := filepath.Join(dir, "array.json")
		require.NoError(t, os.WriteFile(path, []byte(snapshotArray), 0o644))

		nodes, err := NewFileSnapshotSource(path).Load(context.Background())
		require.NoError(t, err)
		require.Len(t, nodes, 2)
		assert.Equal(t, "pk-one", nodes[0].Pubkey)
		assert.Equal(t, 12.5, nodes[0].Uptime)
		assert.True(t, nodes[0].IsPublic)
	})

	t.Run("envelope", func(t *testing.T) {
		path := filepath.Join(dir, "envelope.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"nodes": `+snapshotArray+`}`), 0o644))

		nodes, err := NewFileSnapshotSource(path).Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, nodes, 2)
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"nodes": [`), 0o644))

		_, err := NewFileSnapshotSource(path).Load(context.Background())
		assert.ErrorIs(t, err, ErrSnapshotDecode)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := NewFileSnapshotSource(filepath.Join(dir, "nope.json")).Load(context.Background())
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestHTTPSnapshotSource_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(snapshotArray))
	}))
	defer srv.Close()

	src := NewHTTPSnapshotSource(srv.URL, time.Second, 3, nil)
	src.baseDelay = time.Millisecond

	nodes, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPSnapshotSource_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewHTTPSnapshotSource(srv.URL, time.Second, 5, nil)
	src.baseDelay = time.Millisecond

	_, err := src.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPSnapshotSource_GivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := NewHTTPSnapshotSource(srv.URL, time.Second, 2, nil)
	src.baseDelay = time.Millisecond

	_, err := src.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestStaticSnapshotSource_Copies(t *testing.T) {
	src := NewStaticSnapshotSource("import", rawNodes(rawNode("a", "online", "1.0.0")))

	nodes, err := src.Load(context.Background())
	require.NoError(t, err)
	nodes[0].Pubkey = "changed"

	again, _ := src.Load(context.Background())
	assert.Equal(t, "a", again[0].Pubkey)
	assert.Equal(t, "import", src.Name())
}
