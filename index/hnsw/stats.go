package hnsw

// Stats describes the shape of the graph.
type Stats struct {
	Nodes    int
	MaxLevel int
	M        int
	EF       int
}

// Stats returns statistics about the HNSW graph.
func (h *HNSW) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return Stats{
		Nodes:    len(h.nodes),
		MaxLevel: h.maxLevel,
		M:        h.opts.M,
		EF:       h.opts.EF,
	}
}
