// Package matcher scores query embeddings against a cached snapshot of the watchlist.
//
// The snapshot is built lazily from the store on the first match after
// construction or InvalidateCache, and is never updated in place. Writers
// that add to the store must call InvalidateCache on every Matcher that
// should see the new records; otherwise matches keep using the old snapshot.
package matcher

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/constants"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
)

// Result is the outcome of comparing a query with one watchlist record.
type Result struct {
	PersonID   string  `json:"person_id"`
	PersonName string  `json:"person_name"`
	Similarity float64 `json:"similarity"`
	Matched    bool    `json:"matched"`
}

type entry struct {
	personID   string
	personName string
	unit       []float64
}

// Matcher is safe for concurrent use.
type Matcher struct {
	store     database.IdentityReader
	threshold float64

	mu       sync.Mutex
	snapshot []entry
	valid    bool
}

// New creates a matcher over store. A zero threshold selects the default.
func New(store database.IdentityReader, threshold float64) *Matcher {
	if threshold == 0 {
		threshold = constants.DefaultSimilarityThreshold
	}
	return &Matcher{store: store, threshold: threshold}
}

// Threshold returns the minimum similarity for a match.
func (m *Matcher) Threshold() float64 { return m.threshold }

// InvalidateCache drops the snapshot; the next match rebuilds it from the store.
func (m *Matcher) InvalidateCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = nil
	m.valid = false
}

// load returns the current snapshot, rebuilding it when invalid.
func (m *Matcher) load(ctx context.Context) ([]entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid {
		return m.snapshot, nil
	}

	recs, err := m.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	snap := make([]entry, 0, len(recs))
	for _, r := range recs {
		snap = append(snap, entry{
			personID:   r.PersonID,
			personName: r.PersonName,
			unit:       normalize(r.Embedding),
		})
	}
	m.snapshot = snap
	m.valid = true
	slog.Debug("matcher snapshot rebuilt", "records", len(snap))
	return snap, nil
}

// Match returns up to topK records whose similarity with query reaches the
// threshold, best first. Equal scores keep snapshot order. A topK below 1
// returns every match.
func (m *Matcher) Match(ctx context.Context, query []float32, topK int) ([]Result, error) {
	snap, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return m.rank(snap, normalize(query), topK), nil
}

// MatchBatch runs Match for each query against one snapshot.
func (m *Matcher) MatchBatch(ctx context.Context, queries [][]float32, topK int) ([][]Result, error) {
	snap, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([][]Result, len(queries))
	for i, q := range queries {
		out[i] = m.rank(snap, normalize(q), topK)
	}
	return out, nil
}

// IsMatch reports the best match for query, or a zero Result when nothing reaches the threshold.
func (m *Matcher) IsMatch(ctx context.Context, query []float32) (Result, error) {
	res, err := m.Match(ctx, query, 1)
	if err != nil {
		return Result{}, err
	}
	if len(res) == 0 {
		return Result{}, nil
	}
	return res[0], nil
}

func (m *Matcher) rank(snap []entry, q []float64, topK int) []Result {
	var out []Result
	for _, e := range snap {
		if len(e.unit) != len(q) {
			continue
		}
		sim := dot(q, e.unit)
		if sim < m.threshold {
			continue
		}
		out = append(out, Result{
			PersonID:   e.personID,
			PersonName: e.personName,
			Similarity: sim,
			Matched:    true,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// CosineSimilarity returns the cosine of the angle between a and b, with
// each norm padded by a small epsilon so zero vectors score 0. Vectors of
// different length score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	return dot(normalize(a), normalize(b))
}

func normalize(v []float32) []float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum) + constants.NormEpsilon
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f) / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
