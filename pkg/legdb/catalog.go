package legdb

import (
	"fmt"
	"sort"
	"sync"
)

// indexDef describes one declared index: the table it belongs to, the
// attribute set it covers, the key-rendering template, whether it
// tolerates duplicate keys, and the order it was registered in (used by
// the planner to break ties between equally selective candidates, the
// same way the original engine's dict-ordered index registry did).
type indexDef struct {
	Name       string
	Table      string
	Attrs      map[string]struct{}
	Template   string
	Duplicates bool
	Order      int
}

func (ix *indexDef) attrNames() []string {
	names := make([]string, 0, len(ix.Attrs))
	for a := range ix.Attrs {
		names = append(names, a)
	}
	sort.Strings(names)
	return names
}

// subsetOf reports whether every attribute ix declares is present in names.
func (ix *indexDef) subsetOf(names map[string]struct{}) bool {
	for a := range ix.Attrs {
		if _, ok := names[a]; !ok {
			return false
		}
	}
	return true
}

// catalog is the registry of declared indexes, shared by every table in a
// Database. It is distinct from the physical index buckets storage.Table
// maintains: catalog only remembers what a planner needs to know to pick
// one, not how to scan it.
type catalog struct {
	mu      sync.RWMutex
	byTable map[string][]*indexDef
	version map[string]uint64 // bumped on every ensure/force, table-scoped
	seq     int
}

func newCatalog() *catalog {
	return &catalog{
		byTable: make(map[string][]*indexDef),
		version: make(map[string]uint64),
	}
}

// ensure registers or updates an index definition. Re-registering an
// existing name with a different attribute set is rejected: callers that
// actually want to redefine an index should drop and recreate it, mirroring
// ensure_index's force-rebuild-only-of-data, not-of-shape contract.
func (c *catalog) ensure(table, name string, attrs map[string]struct{}, template string, duplicates bool) (*indexDef, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ix := range c.byTable[table] {
		if ix.Name == name {
			if !sameAttrSet(ix.Attrs, attrs) || ix.Template != template {
				return nil, false, fmt.Errorf("legdb: index %s.%s already declared with a different shape", table, name)
			}
			return ix, false, nil
		}
	}

	ix := &indexDef{
		Name:       name,
		Table:      table,
		Attrs:      attrs,
		Template:   template,
		Duplicates: duplicates,
		Order:      c.seq,
	}
	c.seq++
	c.byTable[table] = append(c.byTable[table], ix)
	c.version[table]++
	return ix, true, nil
}

// bumpVersion invalidates every cached plan for table without changing its
// declared indexes, used after a forced index rebuild.
func (c *catalog) bumpVersion(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version[table]++
}

func (c *catalog) indexesFor(table string) []*indexDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*indexDef, len(c.byTable[table]))
	copy(out, c.byTable[table])
	return out
}

func (c *catalog) lookup(table, name string) (*indexDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ix := range c.byTable[table] {
		if ix.Name == name {
			return ix, true
		}
	}
	return nil, false
}

func (c *catalog) tableVersion(table string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version[table]
}

func sameAttrSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func attrSet(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// renderKey renders an index's template against a document's attributes,
// applying the empty-string sentinel escape the same way document storage
// does. The leading '!' some templates carry (a legacy marker meaning
// "duplicates expected") is stripped before substitution; Duplicates on
// the indexDef is what actually controls storage behavior.
func renderKey(template string, get func(name string) (Value, bool)) (string, error) {
	t := template
	if len(t) > 0 && t[0] == '!' {
		t = t[1:]
	}

	var out []byte
	i := 0
	for i < len(t) {
		if t[i] == '{' {
			end := i + 1
			for end < len(t) && t[end] != '}' {
				end++
			}
			if end >= len(t) {
				return "", fmt.Errorf("legdb: unterminated {} in index template %q", template)
			}
			name := t[i+1 : end]
			v, ok := get(name)
			if !ok {
				return "", fmt.Errorf("legdb: index template %q references missing attribute %q", template, name)
			}
			s := v.CanonicalString()
			if s == "" {
				s = emptyStringSentinel
			}
			out = append(out, s...)
			i = end + 1
			continue
		}
		out = append(out, t[i])
		i++
	}
	return string(out), nil
}
