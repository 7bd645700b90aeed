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

package parallel

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	a := lo.Range(10000)
	for _, nWorkers := range []int{1, 4} {
		b := make([]int, len(a))
		For(len(a), nWorkers, func(jobId int) {
			b[jobId] = a[jobId]
		})
		assert.Equal(t, a, b)
	}
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []lo.Tuple2[int, int]{{A: 0, B: 4}, {A: 4, B: 7}, {A: 7, B: 10}}, Split(10, 3))
	assert.Equal(t, []lo.Tuple2[int, int]{{A: 0, B: 1}, {A: 1, B: 2}}, Split(2, 8))
	assert.Equal(t, []lo.Tuple2[int, int]{{A: 0, B: 5}}, Split(5, 1))
	assert.Nil(t, Split(0, 4))
	assert.Nil(t, Split(4, 0))
}

func TestFold(t *testing.T) {
	a := lo.Range(1000)
	for _, nChunks := range []int{1, 3, 8, 2000} {
		sums := Fold(len(a), nChunks, func() int { return 0 }, func(acc, i int) int {
			return acc + a[i]
		})
		assert.Equal(t, min(nChunks, len(a)), len(sums))
		assert.Equal(t, lo.Sum(a), lo.Sum(sums))
	}
	// chunks are contiguous and ordered
	chunks := Fold(10, 3, func() []int { return nil }, func(acc []int, i int) []int {
		return append(acc, i)
	})
	assert.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5, 6}, {7, 8, 9}}, chunks)
	assert.Empty(t, Fold(0, 4, func() int { return 0 }, func(acc, i int) int { return acc + i }))
}
