package session

import (
	"context"

	"github.com/eddy-backend/eddy/internal/entities"
	"github.com/eddy-backend/eddy/internal/services/synthesizer"
)

// InvalidationHook evicts cached principals when their records change
type InvalidationHook struct {
	synthesizer.NopHook
	provider *Provider
}

var _ synthesizer.Hook = (*InvalidationHook)(nil)

// NewInvalidationHook creates the hook for the provider's principal entity
func NewInvalidationHook(provider *Provider) *InvalidationHook {
	return &InvalidationHook{provider: provider}
}

// AfterUpdate evicts the updated principal
func (h *InvalidationHook) AfterUpdate(ctx context.Context, schema *entities.EntitySchema, before, after *entities.Record) error {
	h.provider.Invalidate(ctx, after.ID)
	return nil
}

// AfterDelete evicts the deleted principal
func (h *InvalidationHook) AfterDelete(ctx context.Context, schema *entities.EntitySchema, rec *entities.Record) error {
	h.provider.Invalidate(ctx, rec.ID)
	return nil
}
