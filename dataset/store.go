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
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
)

var (
	ErrDuplicateArticle = errors.AlreadyExistsf("article")
	ErrUnknownArticle   = errors.NotFoundf("article")
	ErrUnknownUser      = errors.NotFoundf("user")
	ErrFrozen           = errors.Forbiddenf("mutating frozen vote store")
)

// Vote is a signed observation of a user on an article.
type Vote struct {
	UserId int32 `bson:"user"`
	Up     bool  `bson:"up"`
}

// Value returns +1 for an upvote and -1 for a downvote.
func (v Vote) Value() float64 {
	if v.Up {
		return 1
	}
	return -1
}

// VoteStore holds articles, users and the votes of users on articles. Article
// ids and user ids are dense and stable. A store is filled by an ingestion
// collaborator, then frozen before it is handed to the trainer.
type VoteStore struct {
	articles     *Index
	pageIds      []string
	articleVotes [][]Vote
	totalVotes   int
	users        *Index
	frozen       bool
}

// NewVoteStore creates an empty store.
func NewVoteStore() *VoteStore {
	return &VoteStore{
		articles:     NewIndex(),
		pageIds:      make([]string, 0),
		articleVotes: make([][]Vote, 0),
		users:        NewIndex(),
	}
}

// AddArticle inserts a new article with its votes. The article gets the next
// article id.
func (s *VoteStore) AddArticle(key, pageId string, votes []Vote) error {
	if s.frozen {
		return errors.Trace(ErrFrozen)
	}
	if s.articles.Contains(key) {
		return errors.Annotate(ErrDuplicateArticle, key)
	}
	if err := s.checkVotes(votes); err != nil {
		return errors.Trace(err)
	}
	s.articles.Add(key)
	s.pageIds = append(s.pageIds, pageId)
	s.articleVotes = append(s.articleVotes, votes)
	s.totalVotes += len(votes)
	return nil
}

// UpdateArticle replaces the votes of an existing article.
func (s *VoteStore) UpdateArticle(key string, votes []Vote) error {
	if s.frozen {
		return errors.Trace(ErrFrozen)
	}
	articleId := s.articles.ToNumber(key)
	if articleId == NotId {
		return errors.Annotate(ErrUnknownArticle, key)
	}
	if err := s.checkVotes(votes); err != nil {
		return errors.Trace(err)
	}
	s.totalVotes += len(votes) - len(s.articleVotes[articleId])
	s.articleVotes[articleId] = votes
	return nil
}

func (s *VoteStore) checkVotes(votes []Vote) error {
	for _, vote := range votes {
		if vote.UserId < 0 || int(vote.UserId) >= s.users.Len() {
			return errors.Annotatef(ErrUnknownUser, "user id %d", vote.UserId)
		}
	}
	return nil
}

// AddUser returns the id of a user, allocating the next user id for new names.
func (s *VoteStore) AddUser(name string) (int32, error) {
	if s.frozen && !s.users.Contains(name) {
		return NotId, errors.Trace(ErrFrozen)
	}
	return s.users.Add(name), nil
}

// Freeze makes the store read-only.
func (s *VoteStore) Freeze() {
	s.frozen = true
}

// Frozen returns true if the store is read-only.
func (s *VoteStore) Frozen() bool {
	return s.frozen
}

// PageId returns the page id of an article.
func (s *VoteStore) PageId(key string) (string, bool) {
	articleId := s.articles.ToNumber(key)
	if articleId == NotId {
		return "", false
	}
	return s.pageIds[articleId], true
}

func (s *VoteStore) CountArticles() int {
	return s.articles.Len()
}

func (s *VoteStore) CountUsers() int {
	return s.users.Len()
}

// CountVotes returns the total number of votes.
func (s *VoteStore) CountVotes() int {
	return s.totalVotes
}

// ArticleVotes returns the votes on an article. The slice must not be modified.
func (s *VoteStore) ArticleVotes(articleId int32) []Vote {
	return s.articleVotes[articleId]
}

// ArticleId returns the id of an article key, or NotId.
func (s *VoteStore) ArticleId(key string) int32 {
	return s.articles.ToNumber(key)
}

// UserId returns the id of a user name, or NotId.
func (s *VoteStore) UserId(name string) int32 {
	return s.users.ToNumber(name)
}

func (s *VoteStore) ArticleKey(articleId int32) string {
	return s.articles.ToName(articleId)
}

func (s *VoteStore) UserName(userId int32) string {
	return s.users.ToName(userId)
}

func (s *VoteStore) PageIds() []string {
	return s.pageIds
}

func (s *VoteStore) GetArticleIndex() *Index {
	return s.articles
}

func (s *VoteStore) GetUserIndex() *Index {
	return s.users
}

// Duplicates counts votes repeating an (article, user) pair already seen on
// the same article. Repeated pairs are kept as independent training samples.
func (s *VoteStore) Duplicates() int {
	count := 0
	for _, votes := range s.articleVotes {
		voters := mapset.NewThreadUnsafeSetWithSize[int32](len(votes))
		for _, vote := range votes {
			if !voters.Add(vote.UserId) {
				count++
			}
		}
	}
	return count
}
