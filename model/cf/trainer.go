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

package cf

import (
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/geyser-io/geyser/base/log"
	"github.com/geyser-io/geyser/base/parallel"
	"github.com/geyser-io/geyser/base/progress"
	"github.com/geyser-io/geyser/dataset"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// initValue is the initial value of every factor.
const initValue = 0.1

// Score summarizes a training run.
type Score struct {
	// MSE is the mean squared error after the last iteration of each factor.
	MSE []float64
	// History is the mean squared error of every iteration of every factor.
	History [][]float64
}

// Trainer learns latent factors one at a time by batched gradient descent.
type Trainer struct {
	params Params
	config FitConfig
	sink   progress.Sink
}

// NewTrainer creates a trainer reporting progress to nothing until SetProgress.
func NewTrainer(params Params, config FitConfig) *Trainer {
	return &Trainer{
		params: params,
		config: config,
		sink:   progress.Nop{},
	}
}

// SetProgress sets the sink receiving per-factor events.
func (t *Trainer) SetProgress(sink progress.Sink) *Trainer {
	if sink == nil {
		sink = progress.Nop{}
	}
	t.sink = sink
	return t
}

// sweepResult accumulates the gradients of one chunk of articles.
type sweepResult struct {
	userGrad []float64
	sse      float64
	count    int
}

// Fit trains a model from the store. The store is frozen and owned by the
// returned model.
func (t *Trainer) Fit(store *dataset.VoteStore) (*Model, Score, error) {
	if err := t.params.Validate(); err != nil {
		return nil, Score{}, errors.Trace(err)
	}
	if err := t.config.Validate(); err != nil {
		return nil, Score{}, errors.Trace(err)
	}
	store.Freeze()
	nUsers, nArticles, nFactors := store.CountUsers(), store.CountArticles(), t.params.NFactors
	runId := uuid.New().String()
	log.Logger().Info("fit model",
		zap.String("run_id", runId),
		zap.Int("n_users", nUsers),
		zap.Int("n_articles", nArticles),
		zap.Int("n_votes", store.CountVotes()),
		zap.Any("params", t.params),
		zap.Int("n_jobs", t.config.Jobs))

	userFactor := newFactors(nUsers, nFactors)
	articleFactor := newFactors(nArticles, nFactors)
	score := Score{
		MSE:     make([]float64, nFactors),
		History: make([][]float64, nFactors),
	}
	fitStart := time.Now()
	for k := 0; k < nFactors; k++ {
		t.sink.FactorStarted(k, nFactors)
		factorStart := time.Now()
		history := make([]float64, t.params.NIterations)
		for it := 0; it < t.params.NIterations; it++ {
			history[it] = t.step(store, userFactor, articleFactor, k)
			log.Logger().Debug("fit model iteration",
				zap.String("run_id", runId),
				zap.Int("factor", k+1),
				zap.Int("iteration", it+1),
				zap.Float64("mse", history[it]))
		}
		elapsed := time.Since(factorStart)
		score.History[k] = history
		score.MSE[k] = history[len(history)-1]
		t.sink.FactorFinished(k, nFactors, elapsed, score.MSE[k])
	}
	log.Logger().Info("fit model complete",
		zap.String("run_id", runId),
		zap.Duration("fit_time", time.Since(fitStart)),
		zap.Float64s("mse", score.MSE))

	return &Model{
		params:        t.params,
		store:         store,
		userFactor:    userFactor,
		articleFactor: articleFactor,
		seen:          buildSeen(store),
	}, score, nil
}

// step runs one iteration on factor k and returns the mean squared error of
// the predictions before the update. Predictions use all factors. The factor
// matrices are read during the sweep and updated after it.
func (t *Trainer) step(store *dataset.VoteStore, userFactor, articleFactor [][]float64, k int) float64 {
	nUsers, nArticles := len(userFactor), len(articleFactor)
	reg := t.params.Reg
	// chunks own disjoint articles, so article gradients are written in place
	articleGrad := make([]float64, nArticles)
	results := parallel.Fold(nArticles, t.config.Jobs,
		func() sweepResult {
			return sweepResult{userGrad: make([]float64, nUsers)}
		},
		func(acc sweepResult, articleId int) sweepResult {
			q := articleFactor[articleId]
			var grad float64
			for _, vote := range store.ArticleVotes(int32(articleId)) {
				p := userFactor[vote.UserId]
				e := vote.Value() - floats.Dot(p, q)
				acc.sse += e * e
				acc.userGrad[vote.UserId] += q[k]*e - reg*p[k]
				grad += p[k]*e - reg*q[k]
			}
			acc.count += len(store.ArticleVotes(int32(articleId)))
			articleGrad[articleId] = grad
			return acc
		})
	// reduce in chunk order
	userGrad := make([]float64, nUsers)
	var sse float64
	var count int
	for _, result := range results {
		floats.Add(userGrad, result.userGrad)
		sse += result.sse
		count += result.count
	}
	for u, grad := range userGrad {
		userFactor[u][k] += t.params.Lr * grad
	}
	for a, grad := range articleGrad {
		articleFactor[a][k] += t.params.Lr * grad
	}
	if count == 0 {
		return 0
	}
	return sse / float64(count)
}

func newFactors(n, nFactors int) [][]float64 {
	data := make([]float64, n*nFactors)
	for i := range data {
		data[i] = initValue
	}
	factors := make([][]float64, n)
	for i := range factors {
		factors[i] = data[i*nFactors : (i+1)*nFactors : (i+1)*nFactors]
	}
	return factors
}

// buildSeen collects the articles voted by each user in one pass over votes.
func buildSeen(store *dataset.VoteStore) []*bitset.BitSet {
	seen := make([]*bitset.BitSet, store.CountUsers())
	for u := range seen {
		seen[u] = bitset.New(uint(store.CountArticles()))
	}
	for a := 0; a < store.CountArticles(); a++ {
		for _, vote := range store.ArticleVotes(int32(a)) {
			seen[vote.UserId].Set(uint(a))
		}
	}
	return seen
}
