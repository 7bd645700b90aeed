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
	"github.com/bits-and-blooms/bitset"
	"github.com/geyser-io/geyser/base/heap"
	"github.com/geyser-io/geyser/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrUnknownUser    = dataset.ErrUnknownUser
	ErrUnknownArticle = dataset.ErrUnknownArticle
)

// Recommendation is a scored article or user.
type Recommendation struct {
	Name  string
	Score float64
}

// Model predicts votes by the dot product of user factors and article factors.
// A model is read-only after training.
type Model struct {
	params        Params
	store         *dataset.VoteStore
	userFactor    [][]float64
	articleFactor [][]float64
	// seen[u] holds the articles voted by user u
	seen []*bitset.BitSet
}

func (m *Model) GetParams() Params {
	return m.params
}

// GetVoteStore returns the frozen store the model was trained on.
func (m *Model) GetVoteStore() *dataset.VoteStore {
	return m.store
}

func (m *Model) CountFactors() int {
	return m.params.NFactors
}

func (m *Model) GetUserFactor(userId int32) []float64 {
	return m.userFactor[userId]
}

func (m *Model) GetArticleFactor(articleId int32) []float64 {
	return m.articleFactor[articleId]
}

// IsSeen returns true if the user voted on the article.
func (m *Model) IsSeen(userId, articleId int32) bool {
	return m.seen[userId].Test(uint(articleId))
}

func (m *Model) internalPredict(userId, articleId int32) float64 {
	return floats.Dot(m.userFactor[userId], m.articleFactor[articleId])
}

// Predict the vote of a user on an article.
func (m *Model) Predict(userName, articleKey string) (float64, error) {
	userId := m.store.UserId(userName)
	if userId == dataset.NotId {
		return 0, errors.Annotate(ErrUnknownUser, userName)
	}
	articleId := m.store.ArticleId(articleKey)
	if articleId == dataset.NotId {
		return 0, errors.Annotate(ErrUnknownArticle, articleKey)
	}
	return m.internalPredict(userId, articleId), nil
}

// TopArticlesForUser returns the n articles with the highest predicted votes
// among articles the user has not voted on.
func (m *Model) TopArticlesForUser(userName string, n int) ([]Recommendation, error) {
	userId := m.store.UserId(userName)
	if userId == dataset.NotId {
		return nil, errors.Annotate(ErrUnknownUser, userName)
	}
	filter := heap.NewTopKFilter[int32, float64](n)
	for articleId := int32(0); int(articleId) < m.store.CountArticles(); articleId++ {
		if !m.IsSeen(userId, articleId) {
			filter.Push(articleId, m.internalPredict(userId, articleId))
		}
	}
	return lo.Map(filter.PopAll(), func(e heap.Elem[int32, float64], _ int) Recommendation {
		return Recommendation{Name: m.store.ArticleKey(e.Value), Score: e.Weight}
	}), nil
}

// TopUsersForArticle returns the n users with the highest predicted votes
// among users who have not voted on the article.
func (m *Model) TopUsersForArticle(articleKey string, n int) ([]Recommendation, error) {
	articleId := m.store.ArticleId(articleKey)
	if articleId == dataset.NotId {
		return nil, errors.Annotate(ErrUnknownArticle, articleKey)
	}
	filter := heap.NewTopKFilter[int32, float64](n)
	for userId := int32(0); int(userId) < m.store.CountUsers(); userId++ {
		if !m.IsSeen(userId, articleId) {
			filter.Push(userId, m.internalPredict(userId, articleId))
		}
	}
	return lo.Map(filter.PopAll(), func(e heap.Elem[int32, float64], _ int) Recommendation {
		return Recommendation{Name: m.store.UserName(e.Value), Score: e.Weight}
	}), nil
}
