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

// Package storage exports vote stores to SQLite for ad-hoc inspection.
package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/geyser-io/geyser/base/log"
	"github.com/geyser-io/geyser/dataset"
	"github.com/juju/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE articles (
		id INTEGER PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		page_id TEXT NOT NULL
	)`,
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE votes (
		article_id INTEGER NOT NULL REFERENCES articles(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		vote INTEGER NOT NULL CHECK (vote IN (-1, 1))
	)`,
	`CREATE INDEX idx_votes_article ON votes(article_id)`,
	`CREATE INDEX idx_votes_user ON votes(user_id)`,
}

// ExportSQLite writes the store into a new SQLite database at path. The file
// is built next to path and renamed over it once complete, so an existing
// export is replaced only on success.
func ExportSQLite(ctx context.Context, path string, store *dataset.VoteStore) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Annotatef(err, "create directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Trace(err)
	}
	tmpPath := tmp.Name()
	if err = tmp.Close(); err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			log.Logger().Warn("failed to remove temporary export", zap.String("path", tmpPath), zap.Error(err))
		}
	}()

	if err = export(ctx, tmpPath, store); err != nil {
		return errors.Trace(err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return errors.Annotatef(err, "rename %s", tmpPath)
	}
	log.Logger().Info("export vote store",
		zap.String("path", path),
		zap.Int("n_articles", store.CountArticles()),
		zap.Int("n_users", store.CountUsers()),
		zap.Int("n_votes", store.CountVotes()))
	return nil
}

func export(ctx context.Context, path string, store *dataset.VoteStore) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return errors.Annotate(err, "open database")
	}
	defer db.Close()
	// pragmas apply per connection
	db.SetMaxOpenConns(1)
	if _, err = db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return errors.Annotate(err, "enable foreign keys")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		// no-op after commit
		_ = tx.Rollback()
	}()
	for _, stmt := range schema {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return errors.Annotate(err, "create schema")
		}
	}

	insertArticle, err := tx.PrepareContext(ctx, "INSERT INTO articles (id, key, page_id) VALUES (?, ?, ?)")
	if err != nil {
		return errors.Trace(err)
	}
	defer insertArticle.Close()
	for articleId, key := range store.GetArticleIndex().GetNames() {
		if _, err = insertArticle.ExecContext(ctx, articleId, key, store.PageIds()[articleId]); err != nil {
			return errors.Annotatef(err, "insert article %s", key)
		}
	}

	insertUser, err := tx.PrepareContext(ctx, "INSERT INTO users (id, name) VALUES (?, ?)")
	if err != nil {
		return errors.Trace(err)
	}
	defer insertUser.Close()
	for userId, name := range store.GetUserIndex().GetNames() {
		if _, err = insertUser.ExecContext(ctx, userId, name); err != nil {
			return errors.Annotatef(err, "insert user %s", name)
		}
	}

	insertVote, err := tx.PrepareContext(ctx, "INSERT INTO votes (article_id, user_id, vote) VALUES (?, ?, ?)")
	if err != nil {
		return errors.Trace(err)
	}
	defer insertVote.Close()
	for articleId := 0; articleId < store.CountArticles(); articleId++ {
		for _, vote := range store.ArticleVotes(int32(articleId)) {
			if _, err = insertVote.ExecContext(ctx, articleId, vote.UserId, int(vote.Value())); err != nil {
				return errors.Annotatef(err, "insert vote of user %d on article %d", vote.UserId, articleId)
			}
		}
	}
	return errors.Trace(tx.Commit())
}
