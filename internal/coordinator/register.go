// Package coordinator hands records to the asynchronous licence resolver
// and applies the resolver's results when they come back.
package coordinator

import (
	"sync"

	"github.com/helixir/oa-compliance-service/internal/domain"
)

// Register is a de-duplicating list of identifiers waiting to be sent to
// the licence resolver. It is safe for concurrent use.
type Register struct {
	mu    sync.Mutex
	items []domain.LookupItem
	seen  map[domain.LookupItem]struct{}
}

// NewRegister returns an empty register.
func NewRegister() *Register {
	return &Register{seen: make(map[domain.LookupItem]struct{})}
}

// Add appends item unless it is already present. It reports whether the
// item was added.
func (r *Register) Add(item domain.LookupItem) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[item]; ok {
		return false
	}
	r.seen[item] = struct{}{}
	r.items = append(r.items, item)
	return true
}

// Items returns a copy of the registered items in insertion order.
func (r *Register) Items() []domain.LookupItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.LookupItem, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of registered items.
func (r *Register) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
