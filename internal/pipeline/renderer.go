package pipeline

import (
	"context"
	"errors"

	"github.com/couchcryptid/recon-map/internal/domain"
)

// Renderer displays a view: clustering, popups and bounds fitting are its concern.
// Render is called with the coordinator's lock held, so implementations must
// return promptly and must not call back into the coordinator.
type Renderer interface {
	Render(ctx context.Context, view domain.View) error
}

// Renderers fans a view out to several renderers, returning their joined errors.
type Renderers []Renderer

func (rs Renderers) Render(ctx context.Context, view domain.View) error {
	var errs []error
	for _, r := range rs {
		if err := r.Render(ctx, view); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
