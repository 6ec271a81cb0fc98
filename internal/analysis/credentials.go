package analysis

import (
	"fmt"
	"strings"
)

// CredentialPool is an ordered, de-duplicated set of API keys. It is
// immutable; per-call rotation state lives in a Rotation.
type CredentialPool struct {
	keys []string
}

// NewCredentialPool trims keys and drops blanks and duplicates, keeping
// first-seen order.
func NewCredentialPool(keys ...string) *CredentialPool {
	seen := make(map[string]bool, len(keys))
	p := &CredentialPool{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		p.keys = append(p.keys, k)
	}
	return p
}

// Len returns the number of keys.
func (p *CredentialPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Label identifies key i in logs without exposing it.
func (p *CredentialPool) Label(i int) string {
	k := p.keys[i]
	if len(k) > 4 {
		k = k[len(k)-4:]
	}
	return fmt.Sprintf("key#%d(...%s)", i+1, k)
}

// Rotation starts a pass over the pool for one call.
func (p *CredentialPool) Rotation() *Rotation {
	return &Rotation{pool: p}
}

// Rotation walks the pool in order. A key is handed out once; after it is
// abandoned the rotation moves on and never returns to it.
type Rotation struct {
	pool *CredentialPool
	next int
}

// Next returns the next key and its index, or false when the pool is
// exhausted.
func (r *Rotation) Next() (int, string, bool) {
	if r.next >= r.pool.Len() {
		return 0, "", false
	}
	i := r.next
	r.next++
	return i, r.pool.keys[i], true
}

// Remaining returns how many keys have not been handed out.
func (r *Rotation) Remaining() int {
	return r.pool.Len() - r.next
}
