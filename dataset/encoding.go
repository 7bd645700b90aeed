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
	"io"

	"github.com/geyser-io/geyser/base/encoding"
	"github.com/geyser-io/geyser/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const (
	Format = "geyser.votestore"
	Schema = 1
)

// Document is the encoded form of a VoteStore.
type Document struct {
	encoding.Header `bson:",inline"`
	Articles        map[string]int32 `bson:"articles"`
	PageIds         []string         `bson:"page_ids"`
	ArticleVotes    [][]Vote         `bson:"article_votes"`
	TotalVotes      int              `bson:"total_votes"`
	Users           map[string]int32 `bson:"users"`
}

// Document returns the encoded form of the store.
func (s *VoteStore) Document() Document {
	return Document{
		Header:       encoding.NewHeader(Format, Schema),
		Articles:     s.articles.ToMap(),
		PageIds:      s.pageIds,
		ArticleVotes: s.articleVotes,
		TotalVotes:   s.totalVotes,
		Users:        s.users.ToMap(),
	}
}

// FromDocument rebuilds a store from its encoded form. The store is not frozen.
func FromDocument(doc Document) (*VoteStore, error) {
	if err := doc.Check(Format, Schema); err != nil {
		return nil, errors.Trace(err)
	}
	articles, err := IndexFromMap(doc.Articles)
	if err != nil {
		return nil, errors.WithType(errors.Annotate(err, "articles"), encoding.ErrDecode)
	}
	users, err := IndexFromMap(doc.Users)
	if err != nil {
		return nil, errors.WithType(errors.Annotate(err, "users"), encoding.ErrDecode)
	}
	if len(doc.PageIds) != articles.Len() || len(doc.ArticleVotes) != articles.Len() {
		return nil, errors.WithType(errors.Errorf("%d articles with %d page ids and %d vote lists",
			articles.Len(), len(doc.PageIds), len(doc.ArticleVotes)), encoding.ErrDecode)
	}
	s := &VoteStore{
		articles:     articles,
		pageIds:      make([]string, articles.Len()),
		articleVotes: make([][]Vote, articles.Len()),
		users:        users,
	}
	copy(s.pageIds, doc.PageIds)
	for articleId, votes := range doc.ArticleVotes {
		for _, vote := range votes {
			if vote.UserId < 0 || int(vote.UserId) >= users.Len() {
				return nil, errors.WithType(errors.Errorf("article %d references user id %d out of range [0, %d)",
					articleId, vote.UserId, users.Len()), encoding.ErrDecode)
			}
		}
		if votes == nil {
			votes = make([]Vote, 0)
		}
		s.articleVotes[articleId] = votes
		s.totalVotes += len(votes)
	}
	if s.totalVotes != doc.TotalVotes {
		log.Logger().Warn("stored vote count mismatch",
			zap.Int("stored", doc.TotalVotes), zap.Int("counted", s.totalVotes))
	}
	return s, nil
}

// Marshal writes the store to byte stream.
func (s *VoteStore) Marshal(w io.Writer) error {
	return encoding.Marshal(w, s.Document())
}

// UnmarshalVoteStore reads a store from byte stream.
func UnmarshalVoteStore(r io.Reader) (*VoteStore, error) {
	var doc Document
	if err := encoding.Unmarshal(r, &doc); err != nil {
		return nil, errors.Trace(err)
	}
	return FromDocument(doc)
}

// Save replaces the file at path with the store.
func (s *VoteStore) Save(path string) error {
	return encoding.WriteFile(path, s.Document())
}

// LoadVoteStore reads the store saved at path.
func LoadVoteStore(path string) (*VoteStore, error) {
	var doc Document
	if err := encoding.ReadFile(path, &doc); err != nil {
		return nil, errors.Trace(err)
	}
	s, err := FromDocument(doc)
	if err != nil {
		return nil, errors.Annotate(err, path)
	}
	return s, nil
}
