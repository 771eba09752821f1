// Package storage defines the storage interface for processed views.
package storage

import (
	"context"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// Storage is the interface for storing and retrieving processed views.
// Implementations must be safe for concurrent use.
type Storage interface {
	// StoreView stores t under name, replacing any previous view.
	StoreView(ctx context.Context, name string, t *frame.Table) error

	// GetView returns the named view, or an error wrapping
	// models.ErrNotFound.
	GetView(ctx context.Context, name string) (*frame.Table, error)

	// DeleteView removes the named view. Deleting an absent view is not
	// an error.
	DeleteView(ctx context.Context, name string) error

	// ListViews describes the stored views ordered by name.
	ListViews(ctx context.Context) ([]models.ViewInfo, error)

	// Clear removes all views.
	Clear(ctx context.Context) error

	// Close the storage (for cleanup, e.g., DB connections)
	Close() error
}
