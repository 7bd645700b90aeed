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
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/geyser-io/geyser/dataset"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// newStore creates a store from votes given as article -> user -> vote.
func newStore(t *testing.T, users []string, articles []string, votes map[string]map[string]bool) *dataset.VoteStore {
	store := dataset.NewVoteStore()
	for _, name := range users {
		_, err := store.AddUser(name)
		assert.NoError(t, err)
	}
	for _, key := range articles {
		var articleVotes []dataset.Vote
		for _, name := range users {
			if up, ok := votes[key][name]; ok {
				articleVotes = append(articleVotes, dataset.Vote{UserId: store.UserId(name), Up: up})
			}
		}
		assert.NoError(t, store.AddArticle(key, "page-"+key, articleVotes))
	}
	return store
}

func randomStore(rng *rand.Rand, nUsers, nArticles, maxVotes int) *dataset.VoteStore {
	store := dataset.NewVoteStore()
	for u := 0; u < nUsers; u++ {
		_, _ = store.AddUser(fmt.Sprintf("user-%d", u))
	}
	for a := 0; a < nArticles; a++ {
		votes := make([]dataset.Vote, rng.Intn(maxVotes+1))
		for i := range votes {
			votes[i] = dataset.Vote{UserId: int32(rng.Intn(nUsers)), Up: rng.Intn(3) > 0}
		}
		_ = store.AddArticle(fmt.Sprintf("scp-%03d", a), fmt.Sprint(a), votes)
	}
	return store
}

type recordingSink struct {
	started  []int
	finished []int
	mse      []float64
}

func (r *recordingSink) FactorStarted(k, total int) {
	r.started = append(r.started, k)
}

func (r *recordingSink) FactorFinished(k, total int, elapsed time.Duration, mse float64) {
	r.finished = append(r.finished, k)
	r.mse = append(r.mse, mse)
}

type TrainerTestSuite struct {
	suite.Suite
}

func (suite *TrainerTestSuite) TestEmptyStore() {
	store := dataset.NewVoteStore()
	m, score, err := NewTrainer(Params{NFactors: 1, NIterations: 1, Lr: 0.1}, FitConfig{Jobs: 2}).Fit(store)
	suite.NoError(err)
	suite.True(store.Frozen())
	suite.Equal(1, m.CountFactors())
	suite.Equal([]float64{0}, score.MSE)
	_, err = m.TopArticlesForUser("alice", 10)
	suite.True(errors.Is(err, ErrUnknownUser))
	_, err = m.TopUsersForArticle("scp-173", 10)
	suite.True(errors.Is(err, ErrUnknownArticle))
	_, err = m.Predict("alice", "scp-173")
	suite.True(errors.Is(err, ErrUnknownUser))
}

func (suite *TrainerTestSuite) TestSingleton() {
	store := dataset.NewVoteStore()
	alice, _ := store.AddUser("alice")
	suite.Equal(int32(0), alice)
	suite.NoError(store.AddArticle("a1", "p1", []dataset.Vote{{UserId: alice, Up: true}}))
	suite.Equal(1, store.CountVotes())

	sink := &recordingSink{}
	m, score, err := NewTrainer(Params{NFactors: 1, NIterations: 50, Lr: 0.1, Reg: 0}, FitConfig{Jobs: 1}).
		SetProgress(sink).Fit(store)
	suite.NoError(err)
	suite.Equal([]int{0}, sink.started)
	suite.Equal([]int{0}, sink.finished)
	suite.Equal(score.MSE, sink.mse)

	p, q := m.GetUserFactor(0)[0], m.GetArticleFactor(0)[0]
	suite.Greater(p, initValue)
	suite.Greater(q, initValue)
	suite.InDelta(1.0, p*q, 0.05)
	history := score.History[0]
	suite.Len(history, 50)
	for i := 1; i < len(history); i++ {
		suite.Less(history[i], history[i-1])
	}

	recs, err := m.TopArticlesForUser("alice", 10)
	suite.NoError(err)
	suite.Empty(recs)
	recs, err = m.TopUsersForArticle("a1", 10)
	suite.NoError(err)
	suite.Empty(recs)
	prediction, err := m.Predict("alice", "a1")
	suite.NoError(err)
	suite.InDelta(p*q, prediction, 1e-12)
}

func (suite *TrainerTestSuite) TestMirroredVotes() {
	// Both users and both articles start from identical factors and receive
	// mirrored gradients, so they stay indistinguishable.
	for _, jobs := range []int{1, 2} {
		store := newStore(suite.T(), []string{"u0", "u1"}, []string{"a0", "a1"}, map[string]map[string]bool{
			"a0": {"u0": true, "u1": false},
			"a1": {"u0": false, "u1": true},
		})
		m, _, err := NewTrainer(Params{NFactors: 2, NIterations: 200, Lr: 0.01, Reg: 0.001}, FitConfig{Jobs: jobs}).Fit(store)
		suite.NoError(err)
		suite.InDeltaSlice(m.GetUserFactor(0), m.GetUserFactor(1), 1e-12)
		suite.InDeltaSlice(m.GetArticleFactor(0), m.GetArticleFactor(1), 1e-12)
		for _, name := range []string{"u0", "u1"} {
			recs, err := m.TopArticlesForUser(name, 10)
			suite.NoError(err)
			suite.Empty(recs)
		}
		for _, key := range []string{"a0", "a1"} {
			recs, err := m.TopUsersForArticle(key, 10)
			suite.NoError(err)
			suite.Empty(recs)
		}
	}
}

func (suite *TrainerTestSuite) TestUpvotesGeneralize() {
	store := newStore(suite.T(), []string{"u0", "u1"}, []string{"a0", "a1"}, map[string]map[string]bool{
		"a0": {"u0": true, "u1": true},
		"a1": {"u1": true},
	})
	m, _, err := NewTrainer(Params{NFactors: 2, NIterations: 100, Lr: 0.05, Reg: 0}, FitConfig{Jobs: 1}).Fit(store)
	suite.NoError(err)
	recs, err := m.TopArticlesForUser("u0", 10)
	suite.NoError(err)
	suite.Len(recs, 1)
	suite.Equal("a1", recs[0].Name)
	suite.Greater(recs[0].Score, 0.0)
	recs, err = m.TopUsersForArticle("a1", 10)
	suite.NoError(err)
	suite.Len(recs, 1)
	suite.Equal("u0", recs[0].Name)
}

func (suite *TrainerTestSuite) TestTwoFactorsByHand() {
	store := newStore(suite.T(), []string{"u0", "u1"}, []string{"a0", "a1"}, map[string]map[string]bool{
		"a0": {"u0": true, "u1": false},
		"a1": {"u0": false},
	})
	const lr, reg = 0.1, 0.01
	m, score, err := NewTrainer(Params{NFactors: 2, NIterations: 1, Lr: lr, Reg: reg}, FitConfig{Jobs: 2}).Fit(store)
	suite.NoError(err)

	// factor 0: every prediction is 0.1*0.1 + 0.1*0.1
	e00, e10, e01 := 1-0.02, -1-0.02, -1-0.02
	p0 := 0.1 + lr*((0.1*e00-reg*0.1)+(0.1*e01-reg*0.1))
	p1 := 0.1 + lr*(0.1*e10-reg*0.1)
	q0 := 0.1 + lr*((0.1*e00-reg*0.1)+(0.1*e10-reg*0.1))
	q1 := 0.1 + lr*(0.1*e01-reg*0.1)
	suite.InDelta((e00*e00+e10*e10+e01*e01)/3, score.MSE[0], 1e-12)

	// factor 1: the untrained column still contributes 0.1*0.1, and all
	// gradients are taken from the factors before the update
	e00, e10, e01 = 1-(p0*q0+0.01), -1-(p1*q0+0.01), -1-(p0*q1+0.01)
	p0b := 0.1 + lr*((0.1*e00-reg*0.1)+(0.1*e01-reg*0.1))
	p1b := 0.1 + lr*(0.1*e10-reg*0.1)
	q0b := 0.1 + lr*((0.1*e00-reg*0.1)+(0.1*e10-reg*0.1))
	q1b := 0.1 + lr*(0.1*e01-reg*0.1)
	suite.InDelta((e00*e00+e10*e10+e01*e01)/3, score.MSE[1], 1e-12)

	expected := map[string][]float64{"u0": {p0, p0b}, "u1": {p1, p1b}}
	for name, factor := range expected {
		actual := m.GetUserFactor(store.UserId(name))
		suite.InDelta(factor[0], actual[0], 1e-12, name)
		suite.InDelta(factor[1], actual[1], 1e-12, name)
	}
	expected = map[string][]float64{"a0": {q0, q0b}, "a1": {q1, q1b}}
	for key, factor := range expected {
		actual := m.GetArticleFactor(store.ArticleId(key))
		suite.InDelta(factor[0], actual[0], 1e-12, key)
		suite.InDelta(factor[1], actual[1], 1e-12, key)
	}
}

func (suite *TrainerTestSuite) TestInvalidHyperparameters() {
	for _, params := range []Params{
		{NFactors: 0, NIterations: 1, Lr: 0.1},
		{NFactors: 1, NIterations: 0, Lr: 0.1},
		{NFactors: 1, NIterations: 1, Lr: 0},
		{NFactors: 1, NIterations: 1, Lr: -1},
		{NFactors: 1, NIterations: 1, Lr: 0.1, Reg: -0.1},
	} {
		store := dataset.NewVoteStore()
		_, _, err := NewTrainer(params, FitConfig{Jobs: 1}).Fit(store)
		suite.True(errors.Is(err, ErrInvalidHyperparameter), "%+v", params)
		suite.True(errors.Is(err, errors.NotValid))
		suite.False(store.Frozen())
	}
	_, _, err := NewTrainer(NewParams(), FitConfig{Jobs: 0}).Fit(dataset.NewVoteStore())
	suite.True(errors.Is(err, ErrInvalidHyperparameter))
}

func (suite *TrainerTestSuite) TestShapesAndSeen() {
	rng := rand.New(rand.NewSource(1))
	store := randomStore(rng, 30, 40, 15)
	m, score, err := NewTrainer(Params{NFactors: 3, NIterations: 5, Lr: 0.004, Reg: 0.02}, NewFitConfig()).Fit(store)
	suite.NoError(err)
	suite.Len(score.MSE, 3)
	suite.Len(score.History, 3)
	for u := 0; u < store.CountUsers(); u++ {
		suite.Len(m.GetUserFactor(int32(u)), 3)
	}
	for a := 0; a < store.CountArticles(); a++ {
		suite.Len(m.GetArticleFactor(int32(a)), 3)
		for _, vote := range store.ArticleVotes(int32(a)) {
			suite.True(m.IsSeen(vote.UserId, int32(a)))
		}
	}
	suite.Same(store, m.GetVoteStore())
	suite.Equal(3, m.GetParams().NFactors)
}

func (suite *TrainerTestSuite) TestMSEDecreases() {
	rng := rand.New(rand.NewSource(2))
	store := randomStore(rng, 50, 50, 20)
	_, score, err := NewTrainer(Params{NFactors: 2, NIterations: 30, Lr: 0.001, Reg: 0}, FitConfig{Jobs: 4}).Fit(store)
	suite.NoError(err)
	history := score.History[0]
	suite.Less(history[len(history)-1], history[0])
}

func (suite *TrainerTestSuite) TestJobs() {
	params := Params{NFactors: 4, NIterations: 10, Lr: 0.004, Reg: 0.02}
	fit := func(jobs int) *Model {
		store := randomStore(rand.New(rand.NewSource(3)), 40, 60, 25)
		m, _, err := NewTrainer(params, FitConfig{Jobs: jobs}).Fit(store)
		suite.NoError(err)
		return m
	}
	sequential, parallel, again := fit(1), fit(4), fit(4)
	for u := int32(0); int(u) < sequential.GetVoteStore().CountUsers(); u++ {
		suite.InDeltaSlice(sequential.GetUserFactor(u), parallel.GetUserFactor(u), 1e-9)
		// same number of jobs gives identical results
		suite.Equal(parallel.GetUserFactor(u), again.GetUserFactor(u))
	}
	for a := int32(0); int(a) < sequential.GetVoteStore().CountArticles(); a++ {
		suite.InDeltaSlice(sequential.GetArticleFactor(a), parallel.GetArticleFactor(a), 1e-9)
		suite.Equal(parallel.GetArticleFactor(a), again.GetArticleFactor(a))
	}
}

func TestTrainer(t *testing.T) {
	suite.Run(t, new(TrainerTestSuite))
}

func TestTopK(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	store := randomStore(rng, 20, 30, 10)
	m, _, err := NewTrainer(Params{NFactors: 2, NIterations: 5, Lr: 0.01, Reg: 0.01}, FitConfig{Jobs: 2}).Fit(store)
	assert.NoError(t, err)
	for u := int32(0); int(u) < store.CountUsers(); u++ {
		name := store.UserName(u)
		all, err := m.TopArticlesForUser(name, store.CountArticles()+10)
		assert.NoError(t, err)
		nSeen := 0
		for a := int32(0); int(a) < store.CountArticles(); a++ {
			if m.IsSeen(u, a) {
				nSeen++
			}
		}
		assert.Len(t, all, store.CountArticles()-nSeen)
		for i, rec := range all {
			assert.False(t, m.IsSeen(u, store.ArticleId(rec.Name)))
			if i > 0 {
				assert.GreaterOrEqual(t, all[i-1].Score, rec.Score)
			}
		}
		top, err := m.TopArticlesForUser(name, 3)
		assert.NoError(t, err)
		assert.Equal(t, all[:min(3, len(all))], top)
		none, err := m.TopArticlesForUser(name, 0)
		assert.NoError(t, err)
		assert.Empty(t, none)
	}
	for a := int32(0); int(a) < store.CountArticles(); a++ {
		recs, err := m.TopUsersForArticle(store.ArticleKey(a), 5)
		assert.NoError(t, err)
		assert.LessOrEqual(t, len(recs), 5)
		for _, rec := range recs {
			assert.False(t, m.IsSeen(store.UserId(rec.Name), a))
		}
	}
}

func TestTopKTies(t *testing.T) {
	// untouched articles keep identical factors and tie
	store := newStore(t, []string{"u0", "u1"}, []string{"a0", "a1", "a2", "a3"}, map[string]map[string]bool{
		"a0": {"u1": true},
	})
	m, _, err := NewTrainer(Params{NFactors: 1, NIterations: 1, Lr: 0.01}, FitConfig{Jobs: 1}).Fit(store)
	assert.NoError(t, err)
	recs, err := m.TopArticlesForUser("u1", 10)
	assert.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "a3"}, []string{recs[0].Name, recs[1].Name, recs[2].Name})
}
