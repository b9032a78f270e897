// Package vector provides the flat-file vector store and exact cosine
// similarity search over it.
package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// ErrFormat indicates a malformed vector file: its size is not a whole
// number of fixed-dimension float32 records.
var ErrFormat = errors.New("invalid vector file format")

// epsilon guards the normalization denominator so all-zero rows do not
// divide by zero. Zero vectors are a pre-existing data-quality state,
// not an error: they pass through (nearly) unchanged and score ~0
// against every query.
const epsilon = 1e-9

// Matrix is an immutable in-memory set of fixed-dimension float32 vectors.
// Row order matches the source file; a vector's row index is its position,
// the authoritative key identifying it.
type Matrix struct {
	dim  int
	rows int
	data []float32 // row-major, len == rows*dim
}

// Load reads a flat binary file of little-endian float32 records with no
// header or delimiters and returns the rows L2-normalized to unit length.
// The file size must be an exact multiple of dim*4 bytes.
func Load(path string, dim int) (*Matrix, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vector file: %w", err)
	}
	recordSize := dim * 4
	if len(raw)%recordSize != 0 {
		return nil, fmt.Errorf("%w: %s is %d bytes, not a multiple of record size %d",
			ErrFormat, filepath.Base(path), len(raw), recordSize)
	}
	rows := len(raw) / recordSize
	data := make([]float32, rows*dim)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4 : (i+1)*4]))
	}
	m := &Matrix{dim: dim, rows: rows, data: data}
	for i := 0; i < rows; i++ {
		normalize(m.Row(i))
	}
	return m, nil
}

// NewMatrix builds a Matrix from rows, normalizing each one. All rows must
// have dimension dim. Intended for tests and in-process construction.
func NewMatrix(rows [][]float32, dim int) (*Matrix, error) {
	data := make([]float32, 0, len(rows)*dim)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("row %d has dimension %d, expected %d", i, len(row), dim)
		}
		data = append(data, row...)
	}
	m := &Matrix{dim: dim, rows: len(rows), data: data}
	for i := 0; i < m.rows; i++ {
		normalize(m.Row(i))
	}
	return m, nil
}

// Rows returns the number of vectors.
func (m *Matrix) Rows() int { return m.rows }

// Dimension returns the vector dimension.
func (m *Matrix) Dimension() int { return m.dim }

// Row returns the vector at position i as a slice into the underlying data.
// Callers must not modify it.
func (m *Matrix) Row(i int) []float32 {
	return m.data[i*m.dim : (i+1)*m.dim]
}

// normalize scales v in place to unit L2 norm with an epsilon-guarded
// denominator.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + epsilon
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// NormalizedQuery returns a unit-length copy of q using the same epsilon
// rule applied to stored rows.
func NormalizedQuery(q []float32) []float32 {
	out := make([]float32, len(q))
	copy(out, q)
	normalize(out)
	return out
}

// WriteFile writes rows to path as concatenated little-endian float32
// records, truncating any previous content. Rows are written as given;
// normalization is the caller's concern. Row order becomes the
// authoritative position index of the file.
func WriteFile(path string, rows [][]float32, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", dim)
	}
	buf := make([]byte, len(rows)*dim*4)
	for i, row := range rows {
		if len(row) != dim {
			return fmt.Errorf("row %d has dimension %d, expected %d", i, len(row), dim)
		}
		for j, v := range row {
			binary.LittleEndian.PutUint32(buf[(i*dim+j)*4:], math.Float32bits(v))
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create vector dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("write vector file: %w", err)
	}
	return nil
}
