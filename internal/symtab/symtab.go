// Package symtab implements the VM's symbol tables: the bucketed
// HashTable used for globals, const-globals and the procedure table
// (§3.3), plus the procedure-by-address reverse map the disassembler and
// some call paths rely on.
package symtab

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/pscalvm/pscalvm/internal/value"
)

// Symbol carries everything the VM needs to resolve a name: its declared
// type, where its code begins (for procedures), how many locals/params it
// has, whether it is passed VAR-by-reference, and — for globals — a
// pointer to the storage cell itself.
type Symbol struct {
	Name          string // always lowercased
	DeclaredType  value.Kind
	ByteOffset    int  // procedure entry offset in the chunk
	LocalCount    int
	ParamCount    int
	ByRef         bool
	Storage       *value.Value // non-nil for globals
}

// bucket is one hash chain slot.
type bucket struct {
	sym  *Symbol
	next *bucket
}

// HashTable is a simple chained hash table keyed by lowercased name,
// hashed with xxhash for speed (§3.3: "bucketed by hashed name"). Globals,
// const-globals and the procedure table each get their own instance since
// const-globals need no locking even under threading (§3.3).
type HashTable struct {
	mu      sync.RWMutex
	buckets []*bucket
	count   int
}

// NewHashTable creates a table with the given bucket count (64 if
// buckets <= 0). Slots are chosen by hash modulo the bucket count.
func NewHashTable(buckets int) *HashTable {
	if buckets <= 0 {
		buckets = 64
	}
	return &HashTable{buckets: make([]*bucket, buckets)}
}

func normalize(name string) string { return strings.ToLower(name) }

func (t *HashTable) hash(name string) uint64 {
	return xxhash.Sum64String(name)
}

func (t *HashTable) slot(name string) int {
	return int(t.hash(name) % uint64(len(t.buckets)))
}

// Put inserts or replaces the symbol under name (case-insensitively).
func (t *HashTable) Put(name string, sym *Symbol) {
	name = normalize(name)
	sym.Name = name
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.slot(name)
	for b := t.buckets[idx]; b != nil; b = b.next {
		if b.sym.Name == name {
			b.sym = sym
			return
		}
	}
	t.buckets[idx] = &bucket{sym: sym, next: t.buckets[idx]}
	t.count++
}

// Get looks up a symbol by name, case-insensitively.
func (t *HashTable) Get(name string) (*Symbol, bool) {
	name = normalize(name)
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx := t.slot(name)
	for b := t.buckets[idx]; b != nil; b = b.next {
		if b.sym.Name == name {
			return b.sym, true
		}
	}
	return nil, false
}

// Delete removes a symbol, if present.
func (t *HashTable) Delete(name string) {
	name = normalize(name)
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.slot(name)
	var prev *bucket
	for b := t.buckets[idx]; b != nil; b = b.next {
		if b.sym.Name == name {
			if prev == nil {
				t.buckets[idx] = b.next
			} else {
				prev.next = b.next
			}
			t.count--
			return
		}
		prev = b
	}
}

func (t *HashTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Each calls fn for every symbol in the table. fn must not mutate the
// table itself (no Put/Delete) while iterating.
func (t *HashTable) Each(fn func(sym *Symbol)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, head := range t.buckets {
		for b := head; b != nil; b = b.next {
			fn(b.sym)
		}
	}
}

// ProcedureTable is the reverse map from a code offset to the Symbol of
// the routine starting there (§3.3's procedureByAddress), used by the
// VM's call paths (callAtOffset, callIndirect) that only have an address
// in hand.
type ProcedureTable struct {
	mu      sync.RWMutex
	byName  map[string]*Symbol
	byAddr  map[int]*Symbol
}

func NewProcedureTable() *ProcedureTable {
	return &ProcedureTable{byName: make(map[string]*Symbol), byAddr: make(map[int]*Symbol)}
}

func (p *ProcedureTable) Register(sym *Symbol) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sym.Name = normalize(sym.Name)
	p.byName[sym.Name] = sym
	p.byAddr[sym.ByteOffset] = sym
}

func (p *ProcedureTable) ByName(name string) (*Symbol, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.byName[normalize(name)]
	return s, ok
}

func (p *ProcedureTable) ByAddress(offset int) (*Symbol, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.byAddr[offset]
	return s, ok
}
