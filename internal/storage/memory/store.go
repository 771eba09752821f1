// Package memory provides an in-memory storage implementation for views.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fidde/curriculum_log_wrangler/pkg/frame"
	"github.com/fidde/curriculum_log_wrangler/pkg/models"
)

// Store is an in-memory storage for processed views.
type Store struct {
	views map[string]*frame.Table
	mu    sync.RWMutex
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		views: make(map[string]*frame.Table),
	}
}

// StoreView stores a copy of t under name.
func (s *Store) StoreView(ctx context.Context, name string, t *frame.Table) error {
	if t == nil {
		return errors.New("view cannot be nil")
	}
	if err := models.ValidateViewName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.views[name] = t.Clone()
	return nil
}

// GetView retrieves a view by name.
func (s *Store) GetView(ctx context.Context, name string) (*frame.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.views[name]
	if !exists {
		return nil, fmt.Errorf("view %s: %w", name, models.ErrNotFound)
	}
	return t.Clone(), nil
}

// DeleteView removes a view.
func (s *Store) DeleteView(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.views, name)
	return nil
}

// ListViews describes all views, sorted by name.
func (s *Store) ListViews(ctx context.Context) ([]models.ViewInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]models.ViewInfo, 0, len(s.views))
	for name, t := range s.views {
		infos = append(infos, models.ViewInfo{
			Name:    name,
			Rows:    t.Len(),
			Columns: t.Columns(),
			Index:   t.IndexName(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos, nil
}

// Clear removes all views.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.views = make(map[string]*frame.Table)
	return nil
}

// Close is a no-op for in-memory storage.
func (s *Store) Close() error {
	return nil
}
