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
	"sync"

	"github.com/samber/lo"
)

const chanSize = 1024

// For runs worker on every job id in [0, nJobs) with nWorkers goroutines.
func For(nJobs, nWorkers int, worker func(int)) {
	if nWorkers <= 1 {
		for i := 0; i < nJobs; i++ {
			worker(i)
		}
		return
	}
	c := make(chan int, chanSize)
	// producer
	go func() {
		for i := 0; i < nJobs; i++ {
			c <- i
		}
		close(c)
	}()
	// consumer
	var wg sync.WaitGroup
	for j := 0; j < nWorkers; j++ {
		wg.Go(func() {
			for jobId := range c {
				worker(jobId)
			}
		})
	}
	wg.Wait()
}

// Split a range [0, n) into at most nChunks contiguous ranges of nearly equal
// size. Ranges are ordered and the first n%nChunks ranges hold one extra element.
func Split(n, nChunks int) []lo.Tuple2[int, int] {
	if n <= 0 || nChunks <= 0 {
		return nil
	}
	nChunks = min(nChunks, n)
	minChunkSize := n / nChunks
	maxChunkNum := n % nChunks
	chunks := make([]lo.Tuple2[int, int], nChunks)
	for i, begin := 0, 0; i < nChunks; i++ {
		chunkSize := minChunkSize
		if i < maxChunkNum {
			chunkSize++
		}
		chunks[i] = lo.T2(begin, begin+chunkSize)
		begin += chunkSize
	}
	return chunks
}

// Fold splits [0, n) into nChunks contiguous chunks and folds every chunk into
// its own accumulator on its own goroutine. Accumulators are returned in chunk
// order, so reducing them sequentially gives the same result for the same
// nChunks regardless of scheduling.
func Fold[A any](n, nChunks int, init func() A, fold func(acc A, i int) A) []A {
	chunks := Split(n, nChunks)
	accs := make([]A, len(chunks))
	For(len(chunks), len(chunks), func(c int) {
		acc := init()
		for i := chunks[c].A; i < chunks[c].B; i++ {
			acc = fold(acc, i)
		}
		accs[c] = acc
	})
	return accs
}
