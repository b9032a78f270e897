package search

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/vector"
)

// CollectionSpec describes one vector collection to load: a name, the
// flat vector file behind it, and the expected record dimension.
type CollectionSpec struct {
	Name      string
	Path      string
	Dimension int
}

type collection struct {
	spec   CollectionSpec
	matrix *vector.Matrix
}

// state is an immutable snapshot of all loaded collections. Reads go
// through an atomic pointer so queries never block on a reload.
type state struct {
	names  []string
	byName map[string]*collection
}

// Service serves similarity queries over named in-memory collections.
// Many reader goroutines may query concurrently; Reload swaps in fresh
// snapshots without interrupting in-flight queries.
type Service struct {
	specs  []CollectionSpec
	engine vector.Engine
	logger *zap.Logger
	state  atomic.Pointer[state]
}

// NewService creates a service and loads every configured collection.
// A single unreadable or malformed vector file fails the whole startup:
// serving a partial collection set would silently break positional lookups.
func NewService(specs []CollectionSpec, engine vector.Engine, logger *zap.Logger) (*Service, error) {
	s := &Service{specs: specs, engine: engine, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads every vector file from disk and atomically swaps the
// snapshot. On error the previous snapshot stays in place.
func (s *Service) Reload() error {
	st := &state{byName: make(map[string]*collection, len(s.specs))}
	for _, spec := range s.specs {
		m, err := vector.Load(spec.Path, spec.Dimension)
		if err != nil {
			return fmt.Errorf("failed to load collection %q: %w", spec.Name, err)
		}
		if _, dup := st.byName[spec.Name]; dup {
			return fmt.Errorf("duplicate collection name %q", spec.Name)
		}
		st.names = append(st.names, spec.Name)
		st.byName[spec.Name] = &collection{spec: spec, matrix: m}
		s.logger.Info("loaded collection",
			zap.String("name", spec.Name),
			zap.String("path", spec.Path),
			zap.Int("records", m.Rows()),
			zap.Int("dimension", spec.Dimension))
	}
	s.state.Store(st)
	return nil
}

// Collections returns the collection names in registration order.
func (s *Service) Collections(_ context.Context) ([]string, error) {
	st := s.state.Load()
	names := make([]string, len(st.names))
	copy(names, st.names)
	return names, nil
}

// Search runs a top-k cosine query against the referenced collection.
func (s *Service) Search(_ context.Context, ref CollectionRef, query []float32, limit int) ([]Result, error) {
	st := s.state.Load()
	coll, err := st.resolve(ref)
	if err != nil {
		return nil, err
	}
	if len(query) != coll.spec.Dimension {
		return nil, fmt.Errorf("%w: collection %q expects %d, got %d",
			ErrDimensionMismatch, coll.spec.Name, coll.spec.Dimension, len(query))
	}
	hits, err := s.engine.Search(coll.matrix, query, limit)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ID: h.Position, Similarity: h.Score}
	}
	return results, nil
}

func (st *state) resolve(ref CollectionRef) (*collection, error) {
	if ref.ByIndex() {
		if ref.Index < 0 || ref.Index >= len(st.names) {
			return nil, fmt.Errorf("%w: index %d", ErrUnknownCollection, ref.Index)
		}
		return st.byName[st.names[ref.Index]], nil
	}
	coll, ok := st.byName[ref.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, ref.Name)
	}
	return coll, nil
}
