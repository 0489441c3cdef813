package document

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"historytree/pkg/monitor"
	"historytree/pkg/storage"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document: not found")

type session struct {
	mu      sync.Mutex
	doc     *Document
	created time.Time
}

// Registry owns the open documents. Each document is guarded by its own
// mutex so independent documents can be edited in parallel.
type Registry struct {
	mu      sync.RWMutex
	docs    map[string]*session
	factory storage.Factory
	stats   *monitor.Stats
	log     *slog.Logger
}

func NewRegistry(factory storage.Factory, stats *monitor.Stats, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		docs:    make(map[string]*session),
		factory: factory,
		stats:   stats,
		log:     logger.With("component", "registry"),
	}
}

// Create opens a new empty document and returns its id.
func (r *Registry) Create() (string, error) {
	id := uuid.NewString()
	payload, err := r.factory.New(id)
	if err != nil {
		return "", fmt.Errorf("create payload backend: %w", err)
	}
	doc, err := New(payload, r.stats)
	if err != nil {
		payload.Close()
		return "", err
	}

	r.mu.Lock()
	r.docs[id] = &session{doc: doc, created: time.Now()}
	n := len(r.docs)
	r.mu.Unlock()

	r.stats.SetDocuments(n)
	r.log.Info("document opened", "doc", id, "backend", r.factory.Name())
	return id, nil
}

// With runs fn while holding the document's lock.
func (r *Registry) With(id string, fn func(*Document) error) error {
	r.mu.RLock()
	s, ok := r.docs[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fn(s.doc)
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	s, ok := r.docs[id]
	delete(r.docs, id)
	n := len(r.docs)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.stats.SetDocuments(n)

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.doc.Close()
	s.doc = nil
	r.log.Info("document closed", "doc", id, "age", time.Since(s.created).Round(time.Millisecond))
	return err
}

// List returns the ids of open documents, oldest first.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := r.docs[ids[i]], r.docs[ids[j]]
		if a.created.Equal(b.created) {
			return ids[i] < ids[j]
		}
		return a.created.Before(b.created)
	})
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// Close closes every document. The factory is left to the caller.
func (r *Registry) Close() error {
	var errs []error
	for _, id := range r.List() {
		if err := r.Remove(id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
