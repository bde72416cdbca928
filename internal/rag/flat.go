package rag

import (
	"bufio"
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
)

// flatMagic identifies a flat index file and its format version.
const flatMagic = "CQAFLAT1"

// ErrDimensionMismatch is returned when a query vector does not have the
// dimension of the index it is searched against.
var ErrDimensionMismatch = errors.New("rag: vector dimension mismatch")

// FlatIndex is an in-memory exact inner-product index. Vectors are stored
// contiguously in row-major order. A FlatIndex is immutable after
// construction and safe for concurrent searches.
type FlatIndex struct {
	// dim is the dimension of every stored vector.
	dim int

	// data holds count*dim float32 values.
	data []float32
}

// NewFlatIndex builds a FlatIndex from the given vectors. Every vector must
// have exactly dim elements. The vectors are copied.
func NewFlatIndex(dim int, vectors [][]float32) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("rag: flat index dimension must be positive, got %d", dim)
	}
	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("rag: vector %d has dimension %d, want %d: %w", i, len(v), dim, ErrDimensionMismatch)
		}
		data = append(data, v...)
	}
	return &FlatIndex{dim: dim, data: data}, nil
}

// Len reports the number of stored vectors.
func (f *FlatIndex) Len() int {
	return len(f.data) / f.dim
}

// Dimension reports the vector dimension.
func (f *FlatIndex) Dimension() int {
	return f.dim
}

// Search scores every stored vector against query and returns the top k by
// descending inner product. Equal scores keep ascending position order.
func (f *FlatIndex) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("rag: query has dimension %d, index has %d: %w", len(query), f.dim, ErrDimensionMismatch)
	}
	n := f.Len()
	if k <= 0 || n == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		row := f.data[i*f.dim : (i+1)*f.dim]
		var dot float32
		for j, q := range query {
			dot += row[j] * q
		}
		hits[i] = Hit{Position: i, Score: dot}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		return cmp.Compare(b.Score, a.Score)
	})

	return hits[:min(k, n)], nil
}

// WriteTo serialises the index: magic, uint32 dimension, uint64 count, then
// the vectors as little-endian float32.
func (f *FlatIndex) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64

	header := make([]byte, len(flatMagic)+4+8)
	copy(header, flatMagic)
	binary.LittleEndian.PutUint32(header[len(flatMagic):], uint32(f.dim))
	binary.LittleEndian.PutUint64(header[len(flatMagic)+4:], uint64(f.Len()))
	n, err := bw.Write(header)
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("rag: write flat index header: %w", err)
	}

	buf := make([]byte, 4)
	for _, v := range f.data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		n, err := bw.Write(buf)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("rag: write flat index vectors: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("rag: flush flat index: %w", err)
	}
	return written, nil
}

// ReadFlatIndex decodes an index previously written by WriteTo.
func ReadFlatIndex(r io.Reader) (*FlatIndex, error) {
	br := bufio.NewReader(r)

	header := make([]byte, len(flatMagic)+4+8)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("rag: read flat index header: %w", err)
	}
	if string(header[:len(flatMagic)]) != flatMagic {
		return nil, fmt.Errorf("rag: not a flat index file (bad magic %q)", header[:len(flatMagic)])
	}
	dim := int(binary.LittleEndian.Uint32(header[len(flatMagic):]))
	count := binary.LittleEndian.Uint64(header[len(flatMagic)+4:])
	if dim <= 0 {
		return nil, fmt.Errorf("rag: flat index declares invalid dimension %d", dim)
	}

	data := make([]float32, 0, min(count*uint64(dim), 1<<24))
	row := make([]float32, dim)
	for i := uint64(0); i < count; i++ {
		if err := binary.Read(br, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("rag: flat index truncated after %d of %d vectors: %w", i, count, err)
		}
		data = append(data, row...)
	}

	return &FlatIndex{dim: dim, data: data}, nil
}
