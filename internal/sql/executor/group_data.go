/*
Copyright 2025 Opal Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package executor

import (
	"github.com/opaldb/opal/internal/sql/expr"
	"github.com/opaldb/opal/internal/storage"
)

// groupEntry holds one group's key and its aggregate state vector. The map
// stores pointers so growing the vector never invalidates other groups.
type groupEntry struct {
	key  storage.Row
	data []interface{}
}

// groupData is the state store of a grouped execution. It maps composite
// group keys to state vectors and assigns each aggregate expression a fixed
// slot in those vectors. Allocated on entry to the grouping strategies and
// dropped on exit.
type groupData struct {
	groups map[string]*groupEntry
	order  []*groupEntry
	slots  map[expr.Expression]int

	current *groupEntry
	rowID   int

	// minSize is the statement's expression count; a new group's vector is
	// sized to the larger of minSize and the slot count.
	minSize int
}

func newGroupData(exprCount int) *groupData {
	return &groupData{
		groups:  make(map[string]*groupEntry),
		slots:   make(map[expr.Expression]int),
		minSize: exprCount,
	}
}

// setCurrent makes the group for the given key current, creating it on
// first sight. The key is cloned so callers may reuse their buffer.
func (g *groupData) setCurrent(key storage.Row) *groupEntry {
	ks := key.Key()
	e := g.groups[ks]
	if e == nil {
		size := len(g.slots)
		if size < g.minSize {
			size = g.minSize
		}
		e = &groupEntry{key: key.Clone(), data: make([]interface{}, size)}
		g.groups[ks] = e
		g.order = append(g.order, e)
	}
	g.current = e
	return e
}

// freshCurrent installs a new unkeyed group, used by group-sorted execution
// where groups are never revisited.
func (g *groupData) freshCurrent(key storage.Row) *groupEntry {
	size := len(g.slots)
	if size < g.minSize {
		size = g.minSize
	}
	e := &groupEntry{key: key.Clone(), data: make([]interface{}, size)}
	g.current = e
	return e
}

func (g *groupData) nextRow() { g.rowID++ }

// slot returns the expression's slot index, assigning the next free one on
// first use.
func (g *groupData) slot(e expr.Expression) int {
	if i, ok := g.slots[e]; ok {
		return i
	}
	i := len(g.slots)
	g.slots[e] = i
	return i
}

func (g *groupData) get(e expr.Expression) interface{} {
	if g.current == nil {
		return nil
	}
	i, ok := g.slots[e]
	if !ok || i >= len(g.current.data) {
		return nil
	}
	return g.current.data[i]
}

func (g *groupData) set(e expr.Expression, v interface{}) {
	i := g.slot(e)
	cur := g.current
	for i >= len(cur.data) {
		grown := make([]interface{}, max(len(cur.data)*2, i+1))
		copy(grown, cur.data)
		cur.data = grown
	}
	cur.data[i] = v
}
