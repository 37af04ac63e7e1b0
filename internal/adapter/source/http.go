package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/recon-map/internal/domain"
)

// maxErrorBody caps how much of a failed response is kept for the error message.
const maxErrorBody = 512

// HTTPFetcher implements domain.Fetcher for http(s) source locations.
type HTTPFetcher struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

// NewHTTPFetcher creates an HTTP fetcher. A zero timeout means no timeout.
func NewHTTPFetcher(timeout time.Duration, logger *slog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: "recon-map",
		logger:    logger,
	}
}

// Fetch issues a single GET for the source location. Non-2xx responses and
// empty bodies are errors; there are no retries.
func (f *HTTPFetcher) Fetch(ctx context.Context, src domain.Source) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("fetch %s: status %d: %s: %w", src, resp.StatusCode, body, domain.ErrUnexpectedStatus)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: %w", src, domain.ErrEmptyBody)
	}

	f.logger.Debug("source fetched", "source", src.String(), "status", resp.StatusCode, "bytes", len(body))
	return body, nil
}
