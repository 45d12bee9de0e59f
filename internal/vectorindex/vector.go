// Package vectorindex keeps embeddings in memory and answers top-k cosine
// similarity queries, either exactly (Flat) or approximately (IVF).
package vectorindex

import (
	"fmt"
	"math"
	"sort"
)

// Entry is one indexed chunk vector.
type Entry struct {
	ID         int64
	DocumentID int64
	Vector     []float32
}

// Hit is one search result. Score is cosine similarity in [-1, 1].
type Hit struct {
	ID         int64
	DocumentID int64
	Score      float64
}

// Index is implemented by Flat and IVF. Implementations are safe for
// concurrent use; Search calls never block each other.
type Index interface {
	Add(entries ...Entry) error
	Search(query []float32, k int) []Hit
	RemoveDocument(documentID int64) int
	Len() int
	Dim() int
}

// New builds an index by kind ("flat" or "ivf").
func New(kind string, dim, lists, probes int) (Index, error) {
	switch kind {
	case "", "ivf":
		return NewIVF(dim, lists, probes), nil
	case "flat":
		return NewFlat(dim), nil
	default:
		return nil, fmt.Errorf("unknown vector index %q", kind)
	}
}

// Normalize returns an L2-normalized copy of v. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// Dot is the inner product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Cosine is the cosine similarity of a and b, 0 when either is a zero vector.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clamp(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

// stored is an entry with its normalized vector and insertion sequence.
type stored struct {
	seq        uint64
	id         int64
	documentID int64
	vec        []float32
}

func checkDim(dim int, v []float32) error {
	if len(v) != dim {
		return fmt.Errorf("vector has %d dimensions, index expects %d", len(v), dim)
	}
	return nil
}

// rank scores candidates (given in insertion order) and keeps the best k.
// The sort is stable so equal scores keep insertion order.
func rank(query []float32, candidates []*stored, k int) []Hit {
	hits := make([]Hit, len(candidates))
	for i, c := range candidates {
		hits[i] = Hit{ID: c.id, DocumentID: c.documentID, Score: clamp(Dot(query, c.vec))}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}
