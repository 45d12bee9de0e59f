package vectorindex

import (
	"math"
	"sort"
	"sync"
)

const (
	// minTrainPerList is the number of vectors per list required before training.
	minTrainPerList = 8
	kmeansIters     = 12
)

// IVF is an inverted-file index: vectors are bucketed under their nearest
// centroid and a query scans only the probes closest buckets. Until enough
// vectors exist to train, and whenever probes covers every list, search is
// exact. The index retrains when the corpus has doubled since the last training.
type IVF struct {
	mu        sync.RWMutex
	dim       int
	lists     int
	probes    int
	nextSeq   uint64
	entries   []*stored
	centroids [][]float32
	cells     [][]*stored
	trainedAt int
}

// NewIVF returns an empty IVF index. lists <= 0 picks sqrt(n) lists at
// training time; probes <= 0 means 1.
func NewIVF(dim, lists, probes int) *IVF {
	if probes <= 0 {
		probes = 1
	}
	return &IVF{dim: dim, lists: lists, probes: probes}
}

func (x *IVF) Dim() int { return x.dim }

func (x *IVF) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Lists reports the number of trained lists, 0 while untrained.
func (x *IVF) Lists() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.centroids)
}

// SetProbes changes the number of lists scanned per query.
func (x *IVF) SetProbes(probes int) {
	if probes <= 0 {
		probes = 1
	}
	x.mu.Lock()
	x.probes = probes
	x.mu.Unlock()
}

func (x *IVF) Add(entries ...Entry) error {
	for _, e := range entries {
		if err := checkDim(x.dim, e.Vector); err != nil {
			return err
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range entries {
		s := &stored{
			seq:        x.nextSeq,
			id:         e.ID,
			documentID: e.DocumentID,
			vec:        Normalize(e.Vector),
		}
		x.nextSeq++
		x.entries = append(x.entries, s)
		if len(x.centroids) > 0 {
			c := nearest(x.centroids, s.vec)
			x.cells[c] = append(x.cells[c], s)
		}
	}
	if x.needsTraining() {
		x.train()
	}
	return nil
}

// Train forces a (re)training over the current entries.
func (x *IVF) Train() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.train()
}

func (x *IVF) Search(query []float32, k int) []Hit {
	if k <= 0 || len(query) != x.dim {
		return []Hit{}
	}
	q := Normalize(query)

	x.mu.RLock()
	var candidates []*stored
	if len(x.centroids) == 0 || x.probes >= len(x.centroids) {
		candidates = make([]*stored, len(x.entries))
		copy(candidates, x.entries)
	} else {
		for _, c := range nearestN(x.centroids, q, x.probes) {
			candidates = append(candidates, x.cells[c]...)
		}
	}
	x.mu.RUnlock()

	// cells are merged out of order; restore insertion order for stable ties
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })
	return rank(q, candidates, k)
}

func (x *IVF) RemoveDocument(documentID int64) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	removed := 0
	kept := make([]*stored, 0, len(x.entries))
	for _, e := range x.entries {
		if e.documentID == documentID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0
	}
	x.entries = kept
	for i, cell := range x.cells {
		filtered := make([]*stored, 0, len(cell))
		for _, e := range cell {
			if e.documentID != documentID {
				filtered = append(filtered, e)
			}
		}
		x.cells[i] = filtered
	}
	return removed
}

func (x *IVF) targetLists(n int) int {
	if x.lists > 0 {
		return x.lists
	}
	l := int(math.Sqrt(float64(n)))
	if l < 1 {
		l = 1
	}
	return l
}

func (x *IVF) needsTraining() bool {
	n := len(x.entries)
	if n < x.targetLists(n)*minTrainPerList {
		return false
	}
	return len(x.centroids) == 0 || n >= 2*x.trainedAt
}

// train runs spherical k-means over the entries. Callers hold the write lock.
func (x *IVF) train() {
	n := len(x.entries)
	lists := x.targetLists(n)
	if n == 0 || lists > n {
		return
	}

	// deterministic seeding: evenly spaced entries
	centroids := make([][]float32, lists)
	for i := range centroids {
		src := x.entries[i*n/lists].vec
		centroids[i] = append([]float32(nil), src...)
	}

	assign := make([]int, n)
	for iter := 0; iter < kmeansIters; iter++ {
		changed := false
		for i, e := range x.entries {
			c := nearest(centroids, e.vec)
			if iter == 0 || c != assign[i] {
				changed = true
			}
			assign[i] = c
		}
		if !changed {
			break
		}
		sums := make([][]float64, lists)
		counts := make([]int, lists)
		for i := range sums {
			sums[i] = make([]float64, x.dim)
		}
		for i, e := range x.entries {
			c := assign[i]
			counts[c]++
			for d, v := range e.vec {
				sums[c][d] += float64(v)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			mean := make([]float32, x.dim)
			for d := range mean {
				mean[d] = float32(sums[c][d] / float64(counts[c]))
			}
			centroids[c] = Normalize(mean)
		}
	}

	cells := make([][]*stored, lists)
	for _, e := range x.entries {
		c := nearest(centroids, e.vec)
		cells[c] = append(cells[c], e)
	}
	x.centroids = centroids
	x.cells = cells
	x.trainedAt = n
}

func nearest(centroids [][]float32, v []float32) int {
	best, bestScore := 0, math.Inf(-1)
	for i, c := range centroids {
		if s := Dot(c, v); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

func nearestN(centroids [][]float32, v []float32, n int) []int {
	idx := make([]int, len(centroids))
	scores := make([]float64, len(centroids))
	for i, c := range centroids {
		idx[i] = i
		scores[i] = Dot(c, v)
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if n < len(idx) {
		idx = idx[:n]
	}
	return idx
}
