package database

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// VectorsFileName is the native on-disk index file inside an index directory.
const VectorsFileName = "vectors.json"

// VectorRecord pairs an embedded chunk with its id and the title of the
// document it came from.
type VectorRecord struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Vector []float32 `json:"vector"`
}

// VectorIndex is an in-process vector store searched by brute-force cosine
// similarity. All methods are safe for concurrent use.
type VectorIndex struct {
	mu        sync.RWMutex
	dimension int
	records   []VectorRecord
}

func NewVectorIndex() *VectorIndex {
	return &VectorIndex{}
}

// Add appends records to the index. The first record fixes the dimension,
// every later record must match it.
func (idx *VectorIndex) Add(records ...VectorRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, r := range records {
		if idx.dimension == 0 {
			idx.dimension = len(r.Vector)
		}
		if len(r.Vector) != idx.dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, index has %d", len(r.Vector), idx.dimension)
		}
		idx.records = append(idx.records, r)
	}
	return nil
}

// Merge copies every record of other into idx.
func (idx *VectorIndex) Merge(other *VectorIndex) error {
	other.mu.RLock()
	records := make([]VectorRecord, len(other.records))
	copy(records, other.records)
	other.mu.RUnlock()
	return idx.Add(records...)
}

func (idx *VectorIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

func (idx *VectorIndex) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

// SearchHit is one retrieval result, best first.
type SearchHit struct {
	ID     string
	Source string
	Score  float64
}

// Search returns up to k records ranked by cosine similarity to query.
func (idx *VectorIndex) Search(query []float32, k int) []SearchHit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ranked := idx.rank(query)
	if k > len(ranked) {
		k = len(ranked)
	}
	hits := make([]SearchHit, 0, k)
	for _, c := range ranked[:k] {
		hits = append(hits, SearchHit{ID: c.record.ID, Source: c.record.Source, Score: c.score})
	}
	return hits
}

// SearchMMR selects k results by maximal marginal relevance: the fetchK most
// similar records are re-ranked greedily, each step picking the candidate
// maximizing lambda*sim(query, c) - (1-lambda)*max sim(c, selected).
func (idx *VectorIndex) SearchMMR(query []float32, k, fetchK int, lambda float64) []SearchHit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	candidates := idx.rank(query)
	if fetchK < len(candidates) {
		candidates = candidates[:fetchK]
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	selected := make([]candidate, 0, k)
	remaining := make([]candidate, len(candidates))
	copy(remaining, candidates)

	for len(selected) < k {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i, c := range remaining {
			penalty := 0.0
			for _, s := range selected {
				if sim := cosineSimilarity(c.record.Vector, s.record.Vector); sim > penalty {
					penalty = sim
				}
			}
			score := lambda*c.score - (1-lambda)*penalty
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	hits := make([]SearchHit, 0, len(selected))
	for _, c := range selected {
		hits = append(hits, SearchHit{ID: c.record.ID, Source: c.record.Source, Score: c.score})
	}
	return hits
}

type candidate struct {
	record VectorRecord
	score  float64
}

// rank scores every record against query, best first. Callers hold the lock.
func (idx *VectorIndex) rank(query []float32) []candidate {
	ranked := make([]candidate, 0, len(idx.records))
	for _, r := range idx.records {
		ranked = append(ranked, candidate{record: r, score: cosineSimilarity(query, r.Vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	return ranked
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type vectorsFile struct {
	Dimension int            `json:"dimension"`
	Records   []VectorRecord `json:"records"`
}

// SaveLocal writes the index into dir as vectors.json, creating dir if needed.
func (idx *VectorIndex) SaveLocal(dir string) error {
	idx.mu.RLock()
	payload := vectorsFile{Dimension: idx.dimension, Records: idx.records}
	data, err := json.Marshal(payload)
	idx.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal vector index: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, VectorsFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write vector index: %w", err)
	}
	return nil
}

// LoadLocal reads a vectors.json previously written by SaveLocal.
func LoadLocal(dir string) (*VectorIndex, error) {
	data, err := os.ReadFile(filepath.Join(dir, VectorsFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read vector index: %w", err)
	}
	var payload vectorsFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse vector index: %w", err)
	}
	return &VectorIndex{dimension: payload.Dimension, records: payload.Records}, nil
}
