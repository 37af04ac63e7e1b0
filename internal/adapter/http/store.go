package http

import (
	"context"
	"sync/atomic"

	"github.com/couchcryptid/recon-map/internal/domain"
)

// ViewStore is the in-process renderer: it keeps the last applied view for the
// map API to serve.
type ViewStore struct {
	latest atomic.Pointer[domain.View]
}

// NewViewStore creates an empty store.
func NewViewStore() *ViewStore {
	return &ViewStore{}
}

// Render records view as the current one.
func (s *ViewStore) Render(_ context.Context, view domain.View) error {
	s.latest.Store(&view)
	return nil
}

// Latest returns the current view, false before anything was rendered.
func (s *ViewStore) Latest() (domain.View, bool) {
	v := s.latest.Load()
	if v == nil {
		return domain.View{}, false
	}
	return *v, true
}
