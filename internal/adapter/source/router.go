// Package source provides the fetchers that retrieve raw source payloads.
package source

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/recon-map/internal/domain"
)

// Router dispatches to the HTTP fetcher for http(s) locations and to the file
// fetcher for everything else.
type Router struct {
	HTTP domain.Fetcher
	File domain.Fetcher
}

// NewRouter creates a Router with the default fetchers.
func NewRouter(timeout time.Duration, logger *slog.Logger) *Router {
	return &Router{
		HTTP: NewHTTPFetcher(timeout, logger),
		File: FileFetcher{},
	}
}

func (r *Router) Fetch(ctx context.Context, src domain.Source) ([]byte, error) {
	if IsRemote(src.Location) {
		return r.HTTP.Fetch(ctx, src)
	}
	return r.File.Fetch(ctx, src)
}

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
