package core

import (
	"container/heap"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
)

// Metric selects the distance function used by an HNSW index.
type Metric int

const (
	MetricCosine Metric = iota
	MetricEuclidean
	MetricDot
)

// HnswConfig holds the tunable parameters of an index
type HnswConfig struct {
	Dimension      int
	Metric         Metric
	M              int
	M0             int
	EfConstruction int
	EfSearch       int
}

// DefaultHnswConfig returns the documented default construction and
// search parameters for the given dimension and metric.
func DefaultHnswConfig(dimension int, metric Metric) HnswConfig {
	return HnswConfig{
		Dimension:      dimension,
		Metric:         metric,
		M:              16,
		M0:             32,
		EfConstruction: 200,
		EfSearch:       64,
	}
}

const maxLevels = 16

type hnswNode struct {
	id       string
	vector   []float32
	metadata map[string]string
	deleted  bool
	level    int
	// neighbors[layer] holds node indices connected at that layer.
	neighbors [][]int32
}

// Hnsw is a hierarchical navigable small-world approximate nearest
// neighbour index over (id, vector) records
type Hnsw struct {
	mu sync.RWMutex

	cfg HnswConfig

	nodes      []hnswNode
	idToIndex  map[string]int32
	entryPoint int32 // -1 when empty
	topLevel   int

	insertCounter uint64
}

// NewHnsw constructs an empty index with the given configuration,
// applying documented defaults for any zero field.
func NewHnsw(cfg HnswConfig) *Hnsw {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.M0 <= 0 {
		cfg.M0 = 2 * cfg.M
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}
	return &Hnsw{
		cfg:        cfg,
		idToIndex:  make(map[string]int32),
		entryPoint: -1,
	}
}

// Config returns the index's active configuration.
func (h *Hnsw) Config() HnswConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Len returns the number of live (non-deleted) nodes.
func (h *Hnsw) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for i := range h.nodes {
		if !h.nodes[i].deleted {
			n++
		}
	}
	return n
}

// IsEmpty reports whether the index has no live nodes.
func (h *Hnsw) IsEmpty() bool { return h.Len() == 0 }

// Dimension returns the configured vector dimension.
func (h *Hnsw) Dimension() int { return h.cfg.Dimension }

func (h *Hnsw) distance(a, b []float32) float64 {
	switch h.cfg.Metric {
	case MetricEuclidean:
		return euclideanDistance(a, b)
	case MetricDot:
		return -dotProduct(a, b)
	default:
		return cosineDistance(a, b)
	}
}

func (h *Hnsw) similarity(dist float64) float64 {
	switch h.cfg.Metric {
	case MetricEuclidean:
		return 1 / (1 + dist)
	case MetricDot:
		return -dist
	default:
		return 1 - dist
	}
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosineDistance(a, b []float32) float64 {
	dot := dotProduct(a, b)
	var na, nb float64
	for i := range a {
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - sim
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// levelForInsert deterministically derives the new node's level from its
// id and the monotonic insertion counter: level =
// floor(-ln(u)/ln(M)), capped at maxLevels-1, with u a uniform float in
// (0,1) derived from a hash instead of an RNG, so assignment is
// reproducible.
func levelForInsert(id string, counter uint64, m int) int {
	h := sha256.New()
	h.Write([]byte(id))
	var cbuf [8]byte
	binary.LittleEndian.PutUint64(cbuf[:], counter)
	h.Write(cbuf[:])
	sum := h.Sum(nil)
	asUint := binary.LittleEndian.Uint64(sum[:8])
	// Map to (0,1), excluding 0 to keep ln well-defined.
	u := (float64(asUint) + 1) / (float64(math.MaxUint64) + 2)
	level := int(math.Floor(-math.Log(u) / math.Log(float64(m))))
	if level >= maxLevels {
		level = maxLevels - 1
	}
	if level < 0 {
		level = 0
	}
	return level
}

type candidate struct {
	index int32
	dist  float64
}

// minHeap and maxHeap implement container/heap over candidate slices for
// the beam search's frontier (min, nearest-first) and result set
// (max, to evict the furthest when over capacity).
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// greedyDescend walks one nearest neighbour per layer from `from` down to
// (but not including) targetLayer, returning the closest node reached.
func (h *Hnsw) greedyDescend(from int32, vector []float32, fromLayer, targetLayer int) int32 {
	current := from
	currentDist := h.distance(h.nodes[current].vector, vector)
	for layer := fromLayer; layer > targetLayer; layer-- {
		improved := true
		for improved {
			improved = false
			if layer >= len(h.nodes[current].neighbors) {
				continue
			}
			for _, n := range h.nodes[current].neighbors[layer] {
				d := h.distance(h.nodes[n].vector, vector)
				if d < currentDist {
					currentDist = d
					current = n
					improved = true
				}
			}
		}
	}
	return current
}

// searchLayer runs a beam search at a single layer starting from the
// entry set, maintaining a min-heap of candidates to expand and a
// max-heap of up-to-ef live results.
func (h *Hnsw) searchLayer(entry int32, vector []float32, layer, ef int, includeDeleted bool) []candidate {
	visited := map[int32]bool{entry: true}
	entryDist := h.distance(h.nodes[entry].vector, vector)

	candidates := &minHeap{{index: entry, dist: entryDist}}
	heap.Init(candidates)

	results := &maxHeap{}
	if includeDeleted || !h.nodes[entry].deleted {
		*results = append(*results, candidate{index: entry, dist: entryDist})
		heap.Init(results)
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(candidate)
		if results.Len() >= ef {
			furthest := (*results)[0]
			if c.dist > furthest.dist {
				break
			}
		}
		if layer >= len(h.nodes[c.index].neighbors) {
			continue
		}
		for _, n := range h.nodes[c.index].neighbors[layer] {
			if visited[n] {
				continue
			}
			visited[n] = true
			d := h.distance(h.nodes[n].vector, vector)
			if results.Len() < ef {
				heap.Push(candidates, candidate{index: n, dist: d})
				if includeDeleted || !h.nodes[n].deleted {
					heap.Push(results, candidate{index: n, dist: d})
				}
			} else if d < (*results)[0].dist {
				heap.Push(candidates, candidate{index: n, dist: d})
				if includeDeleted || !h.nodes[n].deleted {
					heap.Push(results, candidate{index: n, dist: d})
					if results.Len() > ef {
						heap.Pop(results)
					}
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	copy(out, *results)
	sortCandidatesAsc(out)
	return out
}

func sortCandidatesAsc(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].dist < c[j-1].dist; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// Upsert inserts a new node or, if id is already present, replaces its
// vector and metadata in place and clears its delete flag without
// reseating graph edges.
func (h *Hnsw) Upsert(id string, vector []float32, metadata map[string]string) error {
	if len(vector) != h.cfg.Dimension {
		return Validationf("embedding dimension %d does not match index dimension %d", len(vector), h.cfg.Dimension)
	}
	for _, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Validationf("embedding contains NaN or infinite component")
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if idx, ok := h.idToIndex[id]; ok {
		h.nodes[idx].vector = vector
		h.nodes[idx].metadata = metadata
		h.nodes[idx].deleted = false
		return nil
	}

	counter := atomic.AddUint64(&h.insertCounter, 1)
	level := levelForInsert(id, counter, h.cfg.M)

	idx := int32(len(h.nodes))
	neighbors := make([][]int32, level+1)
	node := hnswNode{id: id, vector: vector, metadata: metadata, level: level, neighbors: neighbors}
	h.nodes = append(h.nodes, node)
	h.idToIndex[id] = idx

	if h.entryPoint == -1 {
		h.entryPoint = idx
		h.topLevel = level
		return nil
	}

	entry := h.entryPoint
	top := h.topLevel

	// Phase A: descend greedily to layer min(level, top)+1.
	descendTo := level
	if top < descendTo {
		descendTo = top
	}
	entry = h.greedyDescend(entry, vector, top, descendTo+1)

	// Phase B: from layer min(level, top) down to 0, beam search and
	// connect bidirectional edges.
	startLayer := level
	if top < startLayer {
		startLayer = top
	}
	for layer := startLayer; layer >= 0; layer-- {
		candidates := h.searchLayer(entry, vector, layer, h.cfg.EfConstruction, true)
		m := h.cfg.M
		if layer == 0 {
			m = h.cfg.M0
		}
		if len(candidates) > m {
			candidates = candidates[:m]
		}
		for _, c := range candidates {
			h.nodes[idx].neighbors[layer] = append(h.nodes[idx].neighbors[layer], c.index)
			h.connect(c.index, idx, layer)
			h.pruneNeighbors(c.index, layer)
		}
		if len(candidates) > 0 {
			entry = candidates[0].index
		}
	}

	if level > top {
		h.entryPoint = idx
		h.topLevel = level
	}
	return nil
}

func (h *Hnsw) connect(from, to int32, layer int) {
	for len(h.nodes[from].neighbors) <= layer {
		h.nodes[from].neighbors = append(h.nodes[from].neighbors, nil)
	}
	h.nodes[from].neighbors[layer] = append(h.nodes[from].neighbors[layer], to)
}

func (h *Hnsw) pruneNeighbors(idx int32, layer int) {
	limit := h.cfg.M
	if layer == 0 {
		limit = h.cfg.M0
	}
	neighbors := h.nodes[idx].neighbors[layer]
	if len(neighbors) <= limit {
		return
	}
	vec := h.nodes[idx].vector
	cands := make([]candidate, len(neighbors))
	for i, n := range neighbors {
		cands[i] = candidate{index: n, dist: h.distance(h.nodes[n].vector, vec)}
	}
	sortCandidatesAsc(cands)
	cands = cands[:limit]
	kept := make([]int32, limit)
	for i, c := range cands {
		kept[i] = c.index
	}
	h.nodes[idx].neighbors[layer] = kept
}

// SearchResult is a single scored match returned by Search.
type SearchResult struct {
	ID         string
	Similarity float64
	Metadata   map[string]string
}

// Search returns up to k nearest neighbours of query, sorted by
// descending similarity (ascending distance). An empty index returns an
// empty slice, not an error.
func (h *Hnsw) Search(query []float32, k int) ([]SearchResult, error) {
	if len(query) != h.cfg.Dimension {
		return nil, Validationf("query dimension %d does not match index dimension %d", len(query), h.cfg.Dimension)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.entryPoint == -1 {
		return []SearchResult{}, nil
	}

	ef := h.cfg.EfSearch
	if k > ef {
		ef = k
	}

	entry := h.greedyDescend(h.entryPoint, query, h.topLevel, 0)
	candidates := h.searchLayer(entry, query, 0, ef, false)
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		out[i] = SearchResult{
			ID:         h.nodes[c.index].id,
			Similarity: h.similarity(c.dist),
			Metadata:   h.nodes[c.index].metadata,
		}
	}
	return out, nil
}

// Get returns the stored vector and metadata for id, if present and not
// soft-deleted.
func (h *Hnsw) Get(id string) (vector []float32, metadata map[string]string, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	idx, found := h.idToIndex[id]
	if !found || h.nodes[idx].deleted {
		return nil, nil, false
	}
	return h.nodes[idx].vector, h.nodes[idx].metadata, true
}

// Delete soft-deletes id: the node remains in the graph for traversal
// connectivity but is excluded from search results.
func (h *Hnsw) Delete(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx, ok := h.idToIndex[id]
	if !ok {
		return false
	}
	h.nodes[idx].deleted = true
	return true
}
