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
	"io"

	"github.com/geyser-io/geyser/base/encoding"
	"github.com/geyser-io/geyser/dataset"
	"github.com/juju/errors"
)

const (
	Format = "geyser.model"
	Schema = 1
)

// Document is the encoded form of a Model.
type Document struct {
	encoding.Header `bson:",inline"`
	Params          Params           `bson:"params"`
	Store           dataset.Document `bson:"store"`
	UserFactor      encoding.Matrix  `bson:"user_factor"`
	ArticleFactor   encoding.Matrix  `bson:"article_factor"`
	// Seen holds the sorted ids of articles voted by each user.
	Seen [][]int32 `bson:"seen"`
}

// Document returns the encoded form of the model.
func (m *Model) Document() Document {
	seen := make([][]int32, len(m.seen))
	for u, set := range m.seen {
		seen[u] = make([]int32, 0, set.Count())
		for a, ok := set.NextSet(0); ok; a, ok = set.NextSet(a + 1) {
			seen[u] = append(seen[u], int32(a))
		}
	}
	return Document{
		Header:        encoding.NewHeader(Format, Schema),
		Params:        m.params,
		Store:         m.store.Document(),
		UserFactor:    encoding.NewMatrix(m.userFactor, m.params.NFactors),
		ArticleFactor: encoding.NewMatrix(m.articleFactor, m.params.NFactors),
		Seen:          seen,
	}
}

func decodeError(format string, args ...any) error {
	return errors.WithType(errors.Errorf(format, args...), encoding.ErrDecode)
}

// FromDocument rebuilds a model from its encoded form.
func FromDocument(doc Document) (*Model, error) {
	if err := doc.Check(Format, Schema); err != nil {
		return nil, errors.Trace(err)
	}
	store, err := dataset.FromDocument(doc.Store)
	if err != nil {
		return nil, errors.Trace(err)
	}
	store.Freeze()
	userFactor, err := doc.UserFactor.Unflatten()
	if err != nil {
		return nil, errors.Annotate(err, "user factors")
	}
	articleFactor, err := doc.ArticleFactor.Unflatten()
	if err != nil {
		return nil, errors.Annotate(err, "article factors")
	}
	params := doc.Params
	if params.NFactors == 0 {
		params.NFactors = doc.UserFactor.Cols
	}
	switch {
	case params.NFactors < 1:
		return nil, decodeError("model has %d factors", params.NFactors)
	case len(userFactor) != store.CountUsers() || doc.UserFactor.Cols != params.NFactors:
		return nil, decodeError("user factors %dx%d mismatch %d users and %d factors",
			doc.UserFactor.Rows, doc.UserFactor.Cols, store.CountUsers(), params.NFactors)
	case len(articleFactor) != store.CountArticles() || doc.ArticleFactor.Cols != params.NFactors:
		return nil, decodeError("article factors %dx%d mismatch %d articles and %d factors",
			doc.ArticleFactor.Rows, doc.ArticleFactor.Cols, store.CountArticles(), params.NFactors)
	case doc.Seen != nil && len(doc.Seen) != store.CountUsers():
		return nil, decodeError("seen filter has %d users but store has %d", len(doc.Seen), store.CountUsers())
	}
	// the rebuilt filter covers every vote of the store
	seen := buildSeen(store)
	for u, articles := range doc.Seen {
		for _, a := range articles {
			if a < 0 || int(a) >= store.CountArticles() {
				return nil, decodeError("user %d has seen article id %d out of range [0, %d)", u, a, store.CountArticles())
			}
			seen[u].Set(uint(a))
		}
	}
	return &Model{
		params:        params,
		store:         store,
		userFactor:    userFactor,
		articleFactor: articleFactor,
		seen:          seen,
	}, nil
}

// Marshal writes the model to byte stream.
func (m *Model) Marshal(w io.Writer) error {
	return encoding.Marshal(w, m.Document())
}

// UnmarshalModel reads a model from byte stream.
func UnmarshalModel(r io.Reader) (*Model, error) {
	var doc Document
	if err := encoding.Unmarshal(r, &doc); err != nil {
		return nil, errors.Trace(err)
	}
	return FromDocument(doc)
}

// Save replaces the file at path with the model.
func (m *Model) Save(path string) error {
	return encoding.WriteFile(path, m.Document())
}

// LoadModel reads the model saved at path.
func LoadModel(path string) (*Model, error) {
	var doc Document
	if err := encoding.ReadFile(path, &doc); err != nil {
		return nil, errors.Trace(err)
	}
	m, err := FromDocument(doc)
	if err != nil {
		return nil, errors.Annotate(err, path)
	}
	return m, nil
}
