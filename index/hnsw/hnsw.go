// Package hnsw provides a Hierarchical Navigable Small World index for
// approximate nearest neighbor search.
//
// HNSW trades a small, bounded recall loss for sub-linear query cost and is
// the right choice beyond roughly tens of thousands of vectors. Below that,
// index/flat gives exact results at acceptable cost. Tuning:
//
//   - M controls graph connectivity. The range 12-48 is fine for most use
//     cases; high-dimensional embeddings (e.g. D=2048 image features) profit
//     from the upper end.
//   - EF controls the candidate list size during construction and search.
//     Larger EF improves recall at the cost of latency.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/imgvec/index"
	"github.com/hupe1980/imgvec/queue"
)

// Compile-time check to ensure HNSW satisfies the index interface.
var _ index.Index = (*HNSW)(nil)

// Node represents a node in the HNSW graph.
type Node struct {
	Connections [][]uint32 // Links to other nodes, one slice per layer
	Vector      []float32  // Stored vector
	Layer       int        // Top layer the node exists in
	ID          uint32     // Unique identifier
}

// Options represents the options for configuring HNSW.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	Dimension int

	// DistanceType represents the type of distance function used for calculating distances between vectors.
	DistanceType index.DistanceType

	// M specifies the number of established connections for every new element during construction.
	M int

	// EF specifies the size of the dynamic candidate list during construction.
	EF int

	// Heuristic indicates whether to use the heuristic neighbour selection (true)
	// or the naive closest-M selection (false). The heuristic produces a better
	// connected graph on clustered data.
	Heuristic bool

	// Seed makes level generation reproducible. 0 picks a fixed default.
	Seed int64
}

// DefaultOptions contains the default configuration options for the HNSW index.
var DefaultOptions = Options{
	Dimension:    0,
	DistanceType: index.DistanceTypeSquaredL2,
	M:            16,
	EF:           200,
	Heuristic:    true,
	Seed:         1,
}

// HNSW represents the Hierarchical Navigable Small World graph.
type HNSW struct {
	mmax     int     // Max number of connections per element per layer
	mmax0    int     // Max for layer 0
	ml       float64 // Normalization factor for level generation
	ep       uint32  // Entry point node id
	maxLevel int     // Current max level in use

	nodes []*Node
	rng   *rand.Rand

	distanceFunc index.DistanceFunc
	opts         Options

	mu sync.RWMutex
}

// New creates a new HNSW instance.
// Dimension must be set at creation time.
func New(optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := index.ValidateOptions(opts.Dimension, opts.DistanceType); err != nil {
		return nil, err
	}

	if opts.M < 2 {
		// M == 1 would result in division by zero in the level normalization.
		opts.M = 2
	}

	if opts.EF < 1 {
		opts.EF = DefaultOptions.EF
	}

	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}

	return &HNSW{
		mmax:         opts.M,
		mmax0:        2 * opts.M,
		ml:           1 / math.Log(float64(opts.M)),
		nodes:        make([]*Node, 0),
		rng:          rand.New(rand.NewSource(seed)), // nolint gosec
		distanceFunc: index.NewDistanceFunc(opts.DistanceType),
		opts:         opts,
	}, nil
}

// Name returns the index kind name.
func (*HNSW) Name() string { return "HNSW" }

// Dimension returns the fixed vector dimensionality of the index.
func (h *HNSW) Dimension() int { return h.opts.Dimension }

// Len returns the number of nodes in the graph.
func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.nodes)
}

// Vector returns the stored vector for the given node id.
func (h *HNSW) Vector(id uint32) ([]float32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if int(id) >= len(h.nodes) {
		return nil, false
	}

	return h.nodes[id].Vector, true
}

// Insert inserts a new element into the HNSW graph and returns its node id.
func (h *HNSW) Insert(v []float32) (uint32, error) {
	if len(v) != h.opts.Dimension {
		return 0, &index.ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(v)}
	}

	// Copy so later mutations by the caller cannot affect the node.
	vectorCopy := make([]float32, len(v))
	copy(vectorCopy, v)

	h.mu.Lock()
	defer h.mu.Unlock()

	id := uint32(len(h.nodes))
	layer := int(math.Floor(-math.Log(h.rng.Float64()) * h.ml))

	node := &Node{
		ID:          id,
		Vector:      vectorCopy,
		Layer:       layer,
		Connections: make([][]uint32, layer+1),
	}

	// First node becomes the entry point.
	if len(h.nodes) == 0 {
		h.nodes = append(h.nodes, node)
		h.ep = id
		h.maxLevel = layer

		return id, nil
	}

	// Greedy descent through the layers above the node's top layer.
	currNode, currDist, err := h.descend(vectorCopy, h.ep, h.maxLevel, node.Layer+1)
	if err != nil {
		return 0, err
	}

	// For all layers at or below the node's top layer, find the closest
	// candidates and link them.
	for level := min(node.Layer, h.maxLevel); level >= 0; level-- {
		topCandidates, err := h.searchLayer(vectorCopy, queue.PriorityQueueItem{Node: currNode, Distance: currDist}, h.opts.EF, level)
		if err != nil {
			return 0, err
		}

		if h.opts.Heuristic {
			h.selectNeighboursHeuristic(topCandidates, h.opts.M)
		} else {
			h.selectNeighboursSimple(topCandidates, h.opts.M)
		}

		node.Connections[level] = make([]uint32, topCandidates.Len())

		for i := topCandidates.Len() - 1; i >= 0; i-- {
			candidate, _ := heap.Pop(topCandidates).(*queue.PriorityQueueItem)
			node.Connections[level][i] = candidate.Node
		}

		// Closest found candidate becomes the entry point for the next layer down.
		if len(node.Connections[level]) > 0 {
			currNode = node.Connections[level][0]
			currDist, err = h.distanceFunc(vectorCopy, h.nodes[currNode].Vector)
			if err != nil {
				return 0, err
			}
		}
	}

	// Append new node, then link back-references, making it visible.
	h.nodes = append(h.nodes, node)

	for level := min(node.Layer, h.maxLevel); level >= 0; level-- {
		for _, neighbour := range node.Connections[level] {
			if err := h.link(neighbour, id, level); err != nil {
				return 0, err
			}
		}
	}

	if node.Layer > h.maxLevel {
		h.ep = id
		h.maxLevel = node.Layer
	}

	return id, nil
}

// KNNSearch performs a k-nearest neighbor search in the HNSW graph.
// efSearch controls the candidate list size; values below k are raised to k.
func (h *HNSW) KNNSearch(q []float32, k int, efSearch int, filter index.FilterFunc) ([]index.SearchResult, error) {
	if len(q) != h.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(q)}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.nodes) == 0 {
		return nil, nil
	}

	if efSearch < k {
		efSearch = k
	}

	currNode, currDist, err := h.descend(q, h.ep, h.maxLevel, 1)
	if err != nil {
		return nil, err
	}

	topCandidates, err := h.searchLayer(q, queue.PriorityQueueItem{Node: currNode, Distance: currDist}, efSearch, 0)
	if err != nil {
		return nil, err
	}

	// Pop the max-heap into ascending order, dropping filtered nodes.
	ordered := make([]index.SearchResult, 0, topCandidates.Len())
	for topCandidates.Len() > 0 {
		item, _ := heap.Pop(topCandidates).(*queue.PriorityQueueItem)
		if filter != nil && !filter(item.Node) {
			continue
		}
		ordered = append(ordered, index.SearchResult{ID: item.Node, Distance: item.Distance})
	}

	// Reverse: the max-heap popped worst-first.
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}

	// Keep candidates tied with the k-th distance instead of cutting at k,
	// so the caller can break the tie deterministically.
	if len(ordered) > k {
		cut := k
		for cut < len(ordered) && ordered[cut].Distance == ordered[k-1].Distance {
			cut++
		}
		ordered = ordered[:cut]
	}

	return ordered, nil
}

// BruteSearch performs an exact brute-force search over all graph nodes.
//
// Candidates tied with the k-th distance are all admitted, so the result may
// hold more than k entries; callers break the tie and trim.
func (h *HNSW) BruteSearch(q []float32, k int, filter index.FilterFunc) ([]index.SearchResult, error) {
	if len(q) != h.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(q)}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	topCandidates := &queue.PriorityQueue{Order: true}
	heap.Init(topCandidates)

	for _, node := range h.nodes {
		if filter != nil && !filter(node.ID) {
			continue
		}

		dist, err := h.distanceFunc(q, node.Vector)
		if err != nil {
			return nil, err
		}

		if topCandidates.Len() < k {
			heap.Push(topCandidates, &queue.PriorityQueueItem{Node: node.ID, Distance: dist})
			continue
		}

		largest, _ := topCandidates.Top().(*queue.PriorityQueueItem)
		if dist < largest.Distance {
			heap.Pop(topCandidates)
			heap.Push(topCandidates, &queue.PriorityQueueItem{Node: node.ID, Distance: dist})
		}
	}

	if topCandidates.Len() == 0 {
		return nil, nil
	}

	// The heap's maximum is the k-th distance. Rescan collecting everything
	// at or below it, so boundary ties are never dropped by heap eviction
	// order.
	largest, _ := topCandidates.Top().(*queue.PriorityQueueItem)
	kth := largest.Distance

	results := make([]index.SearchResult, 0, topCandidates.Len())
	for _, node := range h.nodes {
		if filter != nil && !filter(node.ID) {
			continue
		}

		dist, err := h.distanceFunc(q, node.Vector)
		if err != nil {
			return nil, err
		}

		if dist <= kth {
			results = append(results, index.SearchResult{ID: node.ID, Distance: dist})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	return results, nil
}

// descend greedily walks from entry through the layers above stopLevel,
// always moving to the closest connected node, and returns the closest node
// found together with its distance. Callers must hold at least a read lock.
func (h *HNSW) descend(q []float32, entry uint32, fromLevel, stopLevel int) (uint32, float32, error) {
	currNode := entry

	currDist, err := h.distanceFunc(q, h.nodes[currNode].Vector)
	if err != nil {
		return 0, 0, err
	}

	for level := fromLevel; level >= stopLevel; level-- {
		changed := true
		for changed {
			changed = false

			conns := h.connections(currNode, level)
			for _, neighbour := range conns {
				dist, err := h.distanceFunc(q, h.nodes[neighbour].Vector)
				if err != nil {
					return 0, 0, err
				}

				if dist < currDist {
					currNode = neighbour
					currDist = dist
					changed = true
				}
			}
		}
	}

	return currNode, currDist, nil
}

// connections returns the neighbour list of node at level, or nil when the
// node does not exist on that level.
func (h *HNSW) connections(id uint32, level int) []uint32 {
	node := h.nodes[id]
	if level >= len(node.Connections) {
		return nil
	}

	return node.Connections[level]
}

// searchLayer performs a best-first search in a single layer of the graph.
// It returns a max-heap with up to ef candidates. Callers must hold at least
// a read lock.
func (h *HNSW) searchLayer(q []float32, ep queue.PriorityQueueItem, ef int, level int) (*queue.PriorityQueue, error) {
	visited := roaring.New()
	visited.Add(ep.Node)

	candidates := &queue.PriorityQueue{Order: false}
	heap.Init(candidates)
	heap.Push(candidates, &queue.PriorityQueueItem{Node: ep.Node, Distance: ep.Distance})

	topCandidates := &queue.PriorityQueue{Order: true}
	heap.Init(topCandidates)
	heap.Push(topCandidates, &queue.PriorityQueueItem{Node: ep.Node, Distance: ep.Distance})

	for candidates.Len() > 0 {
		lowerBound := topCandidates.Top().(*queue.PriorityQueueItem).Distance

		candidate, _ := heap.Pop(candidates).(*queue.PriorityQueueItem)
		if candidate.Distance > lowerBound && topCandidates.Len() >= ef {
			break
		}

		for _, neighbour := range h.connections(candidate.Node, level) {
			if visited.Contains(neighbour) {
				continue
			}
			visited.Add(neighbour)

			dist, err := h.distanceFunc(q, h.nodes[neighbour].Vector)
			if err != nil {
				return nil, err
			}

			topDistance := topCandidates.Top().(*queue.PriorityQueueItem).Distance

			if topCandidates.Len() < ef {
				heap.Push(topCandidates, &queue.PriorityQueueItem{Node: neighbour, Distance: dist})
				heap.Push(candidates, &queue.PriorityQueueItem{Node: neighbour, Distance: dist})
			} else if topDistance > dist {
				heap.Pop(topCandidates)
				heap.Push(topCandidates, &queue.PriorityQueueItem{Node: neighbour, Distance: dist})
				heap.Push(candidates, &queue.PriorityQueueItem{Node: neighbour, Distance: dist})
			}
		}
	}

	return topCandidates, nil
}

// link adds a connection from first to second at level, pruning the
// neighbour list when it exceeds the per-layer maximum. Callers must hold
// the write lock.
func (h *HNSW) link(first uint32, second uint32, level int) error {
	maxConnections := h.mmax
	// HNSW allows double the connections on the bottom layer.
	if level == 0 {
		maxConnections = h.mmax0
	}

	node := h.nodes[first]
	if level >= len(node.Connections) {
		return nil
	}

	node.Connections[level] = append(node.Connections[level], second)

	if len(node.Connections[level]) <= maxConnections {
		return nil
	}

	// Re-select the best neighbours among the overfull list.
	topCandidates := &queue.PriorityQueue{Order: true}
	heap.Init(topCandidates)

	for _, id := range node.Connections[level] {
		dist, err := h.distanceFunc(node.Vector, h.nodes[id].Vector)
		if err != nil {
			return err
		}

		heap.Push(topCandidates, &queue.PriorityQueueItem{Node: id, Distance: dist})
	}

	if h.opts.Heuristic {
		h.selectNeighboursHeuristic(topCandidates, maxConnections)
	} else {
		h.selectNeighboursSimple(topCandidates, maxConnections)
	}

	node.Connections[level] = make([]uint32, topCandidates.Len())

	// Order by best match (index 0) to worst.
	for i := topCandidates.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(topCandidates).(*queue.PriorityQueueItem)
		node.Connections[level][i] = item.Node
	}

	return nil
}

// selectNeighboursSimple reduces topCandidates to the closest M items.
func (h *HNSW) selectNeighboursSimple(topCandidates *queue.PriorityQueue, m int) {
	for topCandidates.Len() > m {
		_ = heap.Pop(topCandidates)
	}
}

// selectNeighboursHeuristic selects up to M neighbours preferring candidates
// that are closer to the query than to any already selected neighbour. This
// keeps links spread across clusters instead of all pointing into one.
func (h *HNSW) selectNeighboursHeuristic(topCandidates *queue.PriorityQueue, m int) {
	if topCandidates.Len() <= m {
		return
	}

	// Drain into a min-heap so we consider the closest candidates first.
	byDistance := &queue.PriorityQueue{Order: false}
	heap.Init(byDistance)

	for topCandidates.Len() > 0 {
		item, _ := heap.Pop(topCandidates).(*queue.PriorityQueueItem)
		heap.Push(byDistance, &queue.PriorityQueueItem{Node: item.Node, Distance: item.Distance})
	}

	selected := make([]*queue.PriorityQueueItem, 0, m)
	rejected := make([]*queue.PriorityQueueItem, 0)

	for byDistance.Len() > 0 && len(selected) < m {
		item, _ := heap.Pop(byDistance).(*queue.PriorityQueueItem)

		keep := true
		for _, s := range selected {
			dist, _ := h.distanceFunc(h.nodes[s.Node].Vector, h.nodes[item.Node].Vector)
			if dist < item.Distance {
				keep = false
				break
			}
		}

		if keep {
			selected = append(selected, item)
		} else {
			rejected = append(rejected, item)
		}
	}

	// Backfill from rejected candidates when the diverse set is too small.
	for _, item := range rejected {
		if len(selected) >= m {
			break
		}
		selected = append(selected, item)
	}

	for _, item := range selected {
		heap.Push(topCandidates, &queue.PriorityQueueItem{Node: item.Node, Distance: item.Distance})
	}
}
