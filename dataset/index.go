// Copyright 2026 geyser Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import "github.com/juju/errors"

// NotId represents a name doesn't exist.
const NotId = int32(-1)

// Index manages the map between names and dense ids. A name is an article key
// or a user name. Ids are allocated in insertion order and never reused.
type Index struct {
	numbers map[string]int32 // name -> dense id
	names   []string         // dense id -> name
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		numbers: make(map[string]int32),
		names:   make([]string, 0),
	}
}

// Len returns the number of indexed names.
func (idx *Index) Len() int {
	return len(idx.names)
}

// Add indexes a name and returns its id. Existing names keep their id.
func (idx *Index) Add(name string) int32 {
	if id, exist := idx.numbers[name]; exist {
		return id
	}
	id := int32(len(idx.names))
	idx.numbers[name] = id
	idx.names = append(idx.names, name)
	return id
}

// Contains returns true if the name is indexed.
func (idx *Index) Contains(name string) bool {
	_, exist := idx.numbers[name]
	return exist
}

// ToNumber converts a name to its dense id, or NotId.
func (idx *Index) ToNumber(name string) int32 {
	if id, exist := idx.numbers[name]; exist {
		return id
	}
	return NotId
}

// ToName converts a dense id to its name.
func (idx *Index) ToName(id int32) string {
	return idx.names[id]
}

// GetNames returns all names ordered by id.
func (idx *Index) GetNames() []string {
	return idx.names
}

// ToMap returns a copy of the name -> id mapping.
func (idx *Index) ToMap() map[string]int32 {
	m := make(map[string]int32, len(idx.names))
	for name, id := range idx.numbers {
		m[name] = id
	}
	return m
}

// IndexFromMap rebuilds an index from a name -> id mapping. The ids must be
// dense and unique.
func IndexFromMap(m map[string]int32) (*Index, error) {
	idx := &Index{
		numbers: make(map[string]int32, len(m)),
		names:   make([]string, len(m)),
	}
	assigned := make([]bool, len(m))
	for name, id := range m {
		if id < 0 || int(id) >= len(m) {
			return nil, errors.Errorf("id %d of %q out of range [0, %d)", id, name, len(m))
		}
		if assigned[id] {
			return nil, errors.Errorf("id %d assigned twice", id)
		}
		assigned[id] = true
		idx.numbers[name] = id
		idx.names[id] = name
	}
	return idx, nil
}
