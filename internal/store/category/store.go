package category

import (
	"context"
	"log/slog"
	"sync"

	"supportwidget/entity"
	"supportwidget/internal/lib/sl"
	"supportwidget/internal/service/backend"
)

// Store caches the support topic list. Fetch failures never reach the
// visitor: the previous cache stays in place and the view simply renders
// whatever is cached.
type Store struct {
	client *backend.Client
	log    *slog.Logger

	mu         sync.RWMutex
	categories []entity.Category
	loading    bool
}

func NewStore(client *backend.Client, log *slog.Logger) *Store {
	return &Store{
		client: client,
		log:    log.With(sl.Module("category store")),
	}
}

// Fetch refreshes the cache with one backend request. Safe to call again at
// any time; the loading flag is cleared however the request settles.
func (s *Store) Fetch(ctx context.Context) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	categories, err := s.client.FetchCategories(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false

	if err != nil {
		s.log.Error("failed to fetch categories", sl.Err(err))
		return
	}

	s.categories = categories
	s.log.Debug("categories fetched", slog.Int("count", len(categories)))
}

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Categories returns a copy of the cached list.
func (s *Store) Categories() []entity.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Category, len(s.categories))
	copy(out, s.categories)
	return out
}

// Find returns the cached category with the given id.
func (s *Store) Find(id string) (entity.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.ID == id {
			return c, true
		}
	}
	return entity.Category{}, false
}
