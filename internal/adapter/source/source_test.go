package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/recon-map/internal/domain"
)

const testPayload = `{"type": "FeatureCollection", "features": []}`

func testFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		userAgent:  "recon-map-test",
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestHTTPFetcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "recon-map-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(testPayload))
	}))
	defer srv.Close()

	body, err := testFetcher().Fetch(context.Background(), domain.Source{Location: srv.URL + "/scans.geojson"})
	require.NoError(t, err)
	assert.JSONEq(t, testPayload, string(body))
}

func TestHTTPFetcher_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), domain.Source{Name: "nara", Location: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestHTTPFetcher_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), domain.Source{Location: srv.URL})
	require.ErrorIs(t, err, domain.ErrEmptyBody)
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(testPayload))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := f.Fetch(context.Background(), domain.Source{Location: srv.URL})
	require.Error(t, err)
}

func TestHTTPFetcher_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(testPayload))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testFetcher().Fetch(ctx, domain.Source{Location: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scans.geojson")
	require.NoError(t, os.WriteFile(path, []byte(testPayload), 0o600))
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	body, err := FileFetcher{}.Fetch(context.Background(), domain.Source{Location: path})
	require.NoError(t, err)
	assert.JSONEq(t, testPayload, string(body))

	body, err = FileFetcher{}.Fetch(context.Background(), domain.Source{Location: "file://" + path})
	require.NoError(t, err)
	assert.NotEmpty(t, body)

	_, err = FileFetcher{}.Fetch(context.Background(), domain.Source{Location: empty})
	require.ErrorIs(t, err, domain.ErrEmptyBody)

	_, err = FileFetcher{}.Fetch(context.Background(), domain.Source{Location: filepath.Join(dir, "missing.json")})
	require.ErrorIs(t, err, os.ErrNotExist)
}

type namedFetcher string

func (n namedFetcher) Fetch(context.Context, domain.Source) ([]byte, error) {
	return []byte(n), nil
}

func TestRouter(t *testing.T) {
	r := &Router{HTTP: namedFetcher("http"), File: namedFetcher("file")}

	tests := []struct {
		location string
		want     string
	}{
		{"https://catalog.example.org/scans.geojson", "http"},
		{"HTTP://example.org/a.json", "http"},
		{"scans.geojson", "file"},
		{"file:///data/scans.geojson", "file"},
		{"/abs/path.json", "file"},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			body, err := r.Fetch(context.Background(), domain.Source{Location: tt.location})
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(body))
		})
	}
}
