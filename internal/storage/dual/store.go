// Package dual provides a storage that mirrors writes to a second backend.
package dual

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fidde/curriculum_log_wrangler/internal/storage"
	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// Store wraps two storage backends.
// Writes go to both primary and secondary.
// Reads come from primary only.
type Store struct {
	primary   storage.Storage
	secondary storage.Storage
	logger    *slog.Logger
	pending   sync.WaitGroup
}

// Config holds dual store configuration.
type Config struct {
	Primary   storage.Storage
	Secondary storage.Storage
	Logger    *slog.Logger
}

// New creates a new dual-write store.
func New(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Store{
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		logger:    cfg.Logger,
	}
}

// dualWrite performs a write to both backends.
// Errors from secondary are logged but don't fail the operation.
func (s *Store) dualWrite(op string, primaryWrite, secondaryWrite func() error) error {
	if err := primaryWrite(); err != nil {
		return err
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := secondaryWrite(); err != nil {
			s.logger.Error("dual-write to secondary failed",
				"operation", op,
				"error", err,
			)
		}
	}()

	return nil
}

// Wait blocks until all in-flight secondary writes have finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

// StoreView stores the view in both backends.
func (s *Store) StoreView(ctx context.Context, name string, t *frame.Table) error {
	detached := context.WithoutCancel(ctx)
	return s.dualWrite("StoreView",
		func() error { return s.primary.StoreView(ctx, name, t) },
		func() error { return s.secondary.StoreView(detached, name, t) },
	)
}

// DeleteView deletes the view from both backends.
func (s *Store) DeleteView(ctx context.Context, name string) error {
	detached := context.WithoutCancel(ctx)
	return s.dualWrite("DeleteView",
		func() error { return s.primary.DeleteView(ctx, name) },
		func() error { return s.secondary.DeleteView(detached, name) },
	)
}

// GetView retrieves a view from primary backend only.
func (s *Store) GetView(ctx context.Context, name string) (*frame.Table, error) {
	return s.primary.GetView(ctx, name)
}

// ListViews lists views from primary backend only.
func (s *Store) ListViews(ctx context.Context) ([]models.ViewInfo, error) {
	return s.primary.ListViews(ctx)
}

// Clear clears both backends.
func (s *Store) Clear(ctx context.Context) error {
	s.Wait()

	if err := s.primary.Clear(ctx); err != nil {
		return fmt.Errorf("clear primary: %w", err)
	}

	// Clear secondary (best effort)
	if err := s.secondary.Clear(ctx); err != nil {
		s.logger.Error("failed to clear secondary backend",
			"error", err,
		)
	}

	return nil
}

// Close waits for pending writes and closes both backends.
func (s *Store) Close() error {
	s.Wait()

	primaryErr := s.primary.Close()
	secondaryErr := s.secondary.Close()

	if primaryErr != nil {
		return fmt.Errorf("close primary: %w", primaryErr)
	}
	if secondaryErr != nil {
		return fmt.Errorf("close secondary: %w", secondaryErr)
	}

	return nil
}
