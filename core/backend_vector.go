package core

// VectorBackend wraps an Hnsw index behind the vector modality contract
// (upsert, get, delete, search, dimension).
type VectorBackend struct {
	index *Hnsw
}

// NewVectorBackend constructs a vector backend over a fresh HNSW index.
func NewVectorBackend(cfg HnswConfig) *VectorBackend {
	return &VectorBackend{index: NewHnsw(cfg)}
}

// Upsert stores or replaces id's embedding.
func (v *VectorBackend) Upsert(id string, embedding *Embedding) error {
	meta := map[string]string{}
	if embedding.Model != "" {
		meta["model"] = embedding.Model
	}
	return v.index.Upsert(id, embedding.Vector, meta)
}

// Get returns id's stored embedding, if present.
func (v *VectorBackend) Get(id string) (*Embedding, bool) {
	vec, meta, ok := v.index.Get(id)
	if !ok {
		return nil, false
	}
	return &Embedding{Vector: vec, Model: meta["model"]}, true
}

// Delete soft-deletes id.
func (v *VectorBackend) Delete(id string) bool {
	return v.index.Delete(id)
}

// Search returns the k nearest neighbours of queryVector.
func (v *VectorBackend) Search(queryVector []float32, k int) ([]SearchResult, error) {
	return v.index.Search(queryVector, k)
}

// Dimension returns the configured vector dimension.
func (v *VectorBackend) Dimension() int {
	return v.index.Dimension()
}
