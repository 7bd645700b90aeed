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

package heap

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/constraints"
)

func values[T any, W constraints.Float](elems []Elem[T, W]) []T {
	return lo.Map(elems, func(e Elem[T, W], _ int) T { return e.Value })
}

func TestTopKFilter(t *testing.T) {
	// Test a adjacent vec
	a := NewTopKFilter[int32, float32](3)
	a.Push(10, 2)
	a.Push(20, 8)
	a.Push(30, 1)
	assert.Equal(t, []int32{20, 10, 30}, values(a.PopAll()))
	// Test a full adjacent vec
	a = NewTopKFilter[int32, float32](3)
	a.Push(10, 2)
	a.Push(20, 8)
	a.Push(30, 1)
	a.Push(40, 2)
	a.Push(50, 5)
	a.Push(12, 10)
	a.Push(67, 7)
	a.Push(32, 9)
	elems := a.PopAll()
	assert.Equal(t, []int32{12, 32, 20}, values(elems))
	assert.Equal(t, []float32{10, 9, 8}, lo.Map(elems, func(e Elem[int32, float32], _ int) float32 { return e.Weight }))
}

func TestTopKFilterTies(t *testing.T) {
	a := NewTopKFilter[string, float64](3)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		a.Push(name, 1)
	}
	assert.Equal(t, []string{"a", "b", "c"}, values(a.PopAll()))
}

func TestTopKFilterNaN(t *testing.T) {
	a := NewTopKFilter[int, float64](4)
	a.Push(0, math.NaN())
	a.Push(1, -1)
	a.Push(2, math.Inf(-1))
	a.Push(3, math.NaN())
	a.Push(4, 3)
	assert.Equal(t, []int{4, 1, 2, 0}, values(a.PopAll()))

	a = NewTopKFilter[int, float64](2)
	a.Push(0, math.NaN())
	a.Push(1, math.NaN())
	assert.Equal(t, []int{0, 1}, values(a.PopAll()))
}

func TestTopKFilterEmpty(t *testing.T) {
	for _, k := range []int{-1, 0} {
		a := NewTopKFilter[int, float64](k)
		a.Push(1, 1)
		assert.Empty(t, a.PopAll())
	}
	assert.Empty(t, NewTopKFilter[int, float64](5).PopAll())
}

func TestTopKFilterSorted(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	weights := make([]float64, 1000)
	for i := range weights {
		// coarse weights produce many ties
		weights[i] = float64(rng.Intn(50))
	}
	a := NewTopKFilter[int, float64](100)
	for i, w := range weights {
		a.Push(i, w)
	}
	ids := lo.Range(len(weights))
	sort.SliceStable(ids, func(i, j int) bool { return weights[ids[i]] > weights[ids[j]] })
	assert.Equal(t, ids[:100], values(a.PopAll()))
}
