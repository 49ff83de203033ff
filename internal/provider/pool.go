package provider

import (
	"strings"
	"sync"
)

// CredentialPool holds API keys and a cursor to the key in use. The
// cursor only moves forward, circularly, when a caller reports that the
// key it observed was rate limited.
type CredentialPool struct {
	mu     sync.Mutex
	keys   []string
	cursor int
}

// NewCredentialPool creates a pool from keys, dropping blank entries.
func NewCredentialPool(keys []string) *CredentialPool {
	p := &CredentialPool{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			p.keys = append(p.keys, k)
		}
	}
	return p
}

// Len returns the number of keys.
func (p *CredentialPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Current returns the cursor and the key it points at. ok is false for
// an empty pool.
func (p *CredentialPool) Current() (idx int, key string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return 0, "", false
	}
	return p.cursor, p.keys[p.cursor], true
}

// Cursor returns the index of the key in use.
func (p *CredentialPool) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Advance moves the cursor past observed if it still points there.
// Concurrent callers that saw the same key advance it once. It reports
// whether this call moved the cursor.
func (p *CredentialPool) Advance(observed int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 || p.cursor != observed {
		return false
	}
	p.cursor = (p.cursor + 1) % len(p.keys)
	return true
}
