package rpc

import (
	"strconv"
	"sync"
)

// MaxSafeInteger bounds generations and correlation ids so they stay exact in
// IEEE-754 doubles on the other end of the wire.
const MaxSafeInteger uint64 = 1<<53 - 1

// NonceSource hands out correlation ids. Ids increase monotonically and wrap to 0
// at MaxSafeInteger; an id is unique among calls that are in flight at once.
type NonceSource struct {
	mu   sync.Mutex
	last uint64
}

// NewNonceSource returns a source whose first id is start+1.
func NewNonceSource(start uint64) *NonceSource {
	return &NonceSource{last: start % MaxSafeInteger}
}

// Next returns the next correlation id as a decimal string.
func (n *NonceSource) Next() string {
	n.mu.Lock()
	n.last = (n.last + 1) % MaxSafeInteger
	id := n.last
	n.mu.Unlock()
	return strconv.FormatUint(id, 10)
}
