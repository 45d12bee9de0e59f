package vectorindex

import "sync"

// Flat is an exact brute-force index.
type Flat struct {
	mu      sync.RWMutex
	dim     int
	nextSeq uint64
	entries []*stored
}

// NewFlat returns an empty exact index for dim-dimensional vectors.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

func (f *Flat) Dim() int { return f.dim }

func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Add appends entries. Either all entries are added or none.
func (f *Flat) Add(entries ...Entry) error {
	for _, e := range entries {
		if err := checkDim(f.dim, e.Vector); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		f.entries = append(f.entries, &stored{
			seq:        f.nextSeq,
			id:         e.ID,
			documentID: e.DocumentID,
			vec:        Normalize(e.Vector),
		})
		f.nextSeq++
	}
	return nil
}

// Search scores every entry against query.
func (f *Flat) Search(query []float32, k int) []Hit {
	if k <= 0 || len(query) != f.dim {
		return []Hit{}
	}
	q := Normalize(query)
	f.mu.RLock()
	candidates := make([]*stored, len(f.entries))
	copy(candidates, f.entries)
	f.mu.RUnlock()
	return rank(q, candidates, k)
}

// RemoveDocument drops every entry of documentID and reports how many were removed.
func (f *Flat) RemoveDocument(documentID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.entries[:0]
	removed := 0
	for _, e := range f.entries {
		if e.documentID == documentID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(f.entries); i++ {
		f.entries[i] = nil
	}
	f.entries = kept
	return removed
}
