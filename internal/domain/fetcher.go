package domain

import (
	"context"
	"errors"
)

var (
	// ErrEmptyBody is returned by fetchers when a source responds with no content.
	ErrEmptyBody = errors.New("empty body")
	// ErrUnexpectedStatus is returned by HTTP fetchers for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// Fetcher retrieves the raw payload of a source.
type Fetcher interface {
	Fetch(ctx context.Context, src Source) ([]byte, error)
}
