package vector

import (
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Hit is a single similarity result: a row position and its cosine score.
type Hit struct {
	Position int
	Score    float64
}

// Engine computes exact cosine-similarity rankings over a Matrix. Results
// are ordered by score descending, ties broken by ascending position, so
// repeated searches with identical inputs are byte-identical regardless of
// backend or worker count. k <= 0 returns the full ranking.
type Engine interface {
	Search(m *Matrix, query []float32, k int) ([]Hit, error)
}

// EngineType selects an Engine backend.
type EngineType string

const (
	// EngineScan is the single-threaded reference scan.
	EngineScan EngineType = "scan"
	// EngineParallel splits the scan across workers. Same results as scan.
	EngineParallel EngineType = "parallel"
)

// NewEngine creates an engine of the given type. Supported types:
// "parallel" (default when empty), "scan". workers <= 0 uses all cores.
func NewEngine(engineType string, workers int) (Engine, error) {
	switch EngineType(engineType) {
	case EngineScan:
		return &scanEngine{}, nil
	case EngineParallel, "":
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		return &parallelEngine{workers: workers}, nil
	default:
		return nil, fmt.Errorf("unknown engine type: %s (supported: scan, parallel)", engineType)
	}
}

// scanEngine is the reference brute-force implementation: one pass over
// every row. Exact search, perfect recall, linear latency in corpus size.
type scanEngine struct{}

func (e *scanEngine) Search(m *Matrix, query []float32, k int) ([]Hit, error) {
	if len(query) != m.Dimension() {
		return nil, fmt.Errorf("query dimension %d does not match matrix dimension %d", len(query), m.Dimension())
	}
	q := NormalizedQuery(query)
	scores := make([]float64, m.Rows())
	for i := 0; i < m.Rows(); i++ {
		scores[i] = dot(q, m.Row(i))
	}
	return rank(scores, k), nil
}

// parallelEngine computes the same scores as scanEngine with the per-row
// dot products split across workers. Each worker writes scores only for
// its own row range, and ranking happens after all workers join, so the
// output is identical to the single-threaded scan.
type parallelEngine struct {
	workers int
}

func (e *parallelEngine) Search(m *Matrix, query []float32, k int) ([]Hit, error) {
	if len(query) != m.Dimension() {
		return nil, fmt.Errorf("query dimension %d does not match matrix dimension %d", len(query), m.Dimension())
	}
	q := NormalizedQuery(query)
	rows := m.Rows()
	scores := make([]float64, rows)

	workers := e.workers
	if workers > rows {
		workers = rows
	}
	if workers <= 1 {
		for i := 0; i < rows; i++ {
			scores[i] = dot(q, m.Row(i))
		}
		return rank(scores, k), nil
	}

	var g errgroup.Group
	chunk := (rows + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > rows {
			hi = rows
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				scores[i] = dot(q, m.Row(i))
			}
			return nil
		})
	}
	// Workers never fail; Wait is the full join required before ranking.
	_ = g.Wait()
	return rank(scores, k), nil
}

// dot returns the inner product of two vectors. For unit vectors this is
// the cosine similarity.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// rank sorts the full score set descending and truncates to k. The stable
// sort keeps equal scores in ascending position order.
func rank(scores []float64, k int) []Hit {
	hits := make([]Hit, len(scores))
	for i, s := range scores {
		hits[i] = Hit{Position: i, Score: s}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits
}
