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

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex(t *testing.T) {
	idx := NewIndex()
	for i := 0; i < 10; i++ {
		assert.Equal(t, int32(i), idx.Add(strconv.Itoa(i)))
	}
	// duplicate names keep their id
	assert.Equal(t, int32(3), idx.Add("3"))
	assert.Equal(t, 10, idx.Len())
	assert.True(t, idx.Contains("9"))
	assert.False(t, idx.Contains("10"))
	assert.Equal(t, int32(5), idx.ToNumber("5"))
	assert.Equal(t, NotId, idx.ToNumber("unknown"))
	assert.Equal(t, "7", idx.ToName(7))
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, idx.GetNames())

	var empty *Index
	assert.Zero(t, empty.Len())
}

func TestIndexFromMap(t *testing.T) {
	idx := NewIndex()
	idx.Add("a")
	idx.Add("b")
	idx.Add("c")
	restored, err := IndexFromMap(idx.ToMap())
	assert.NoError(t, err)
	assert.Equal(t, idx.GetNames(), restored.GetNames())
	assert.Equal(t, int32(2), restored.ToNumber("c"))

	// ToMap returns a copy
	m := idx.ToMap()
	m["d"] = 3
	assert.False(t, idx.Contains("d"))

	_, err = IndexFromMap(map[string]int32{"a": 0, "b": 2})
	assert.Error(t, err)
	_, err = IndexFromMap(map[string]int32{"a": 0, "b": 0})
	assert.Error(t, err)
	_, err = IndexFromMap(map[string]int32{"a": -1})
	assert.Error(t, err)

	empty, err := IndexFromMap(nil)
	assert.NoError(t, err)
	assert.Zero(t, empty.Len())
}
