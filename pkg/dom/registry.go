package dom

import (
	"fmt"
	"math"
	"sync"
)

// nodeKey converts an external node id into the registry key type.
// Ids above math.MaxInt32 are not representable and fail with ErrInvalidArgument.
func nodeKey(id uint32) (int32, error) {
	if id > math.MaxInt32 {
		return 0, fmt.Errorf("%w: node id %d out of range", ErrInvalidArgument, id)
	}
	return int32(id), nil
}

// registry maps node ids to nodes. Writes happen only on the manager's
// runner; the lock lets GetNode be called from other goroutines.
type registry struct {
	mu    sync.RWMutex
	nodes map[int32]*Node
}

func newRegistry() *registry {
	return &registry{nodes: make(map[int32]*Node)}
}

// AddNode inserts node under its id, overwriting any existing entry.
func (r *registry) AddNode(node *Node) error {
	key, err := nodeKey(node.id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.nodes[key] = node
	r.mu.Unlock()
	return nil
}

// GetNode returns the node for id, or nil.
func (r *registry) GetNode(id int32) *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[id]
}

// RemoveNode erases id.
func (r *registry) RemoveNode(id int32) {
	r.mu.Lock()
	delete(r.nodes, id)
	r.mu.Unlock()
}

// Len returns the number of registered nodes.
func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// lookup resolves an external id, treating out-of-range ids as absent.
func (r *registry) lookup(id uint32) *Node {
	key, err := nodeKey(id)
	if err != nil {
		return nil
	}
	return r.GetNode(key)
}

// each calls fn for every registered node, in no particular order.
func (r *registry) each(fn func(*Node)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		fn(n)
	}
}
