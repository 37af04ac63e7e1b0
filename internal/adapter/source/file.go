package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/recon-map/internal/domain"
)

// FileFetcher implements domain.Fetcher for local paths and file:// URLs.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, src domain.Source) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(src.Location, "file://")
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: %w", src, domain.ErrEmptyBody)
	}
	return body, nil
}
