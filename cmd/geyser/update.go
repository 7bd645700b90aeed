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

package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/geyser-io/geyser/base/log"
	"github.com/geyser-io/geyser/dataset"
	"github.com/geyser-io/geyser/ingest"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var updateCommand = &cobra.Command{
	Use:   "update",
	Short: "Scrape votes of SCP articles into the vote database",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		conf := globalConfig.Update
		if cmd.Flags().Changed("from") {
			conf.From, _ = cmd.Flags().GetInt("from")
		}
		if cmd.Flags().Changed("to") {
			conf.To, _ = cmd.Flags().GetInt("to")
		}
		if conf.From < 0 || conf.To < conf.From {
			log.Logger().Fatal("invalid article range", zap.Int("from", conf.From), zap.Int("to", conf.To))
		}
		incremental, _ := cmd.Flags().GetBool("incremental")
		path := globalConfig.Database.Path

		store, err := openStore(path, incremental)
		if err != nil {
			log.Logger().Fatal("failed to load vote database", zap.String("path", path), zap.Error(err))
		}
		scraper, err := ingest.NewScraper(ingest.Options{
			WikiURL:      conf.WikiURL,
			VoteEndpoint: conf.VoteEndpoint,
			UserAgent:    conf.UserAgent,
			Timeout:      conf.Timeout,
			RateLimit:    conf.RateLimit,
			MaxRetries:   conf.MaxRetries,
		})
		if err != nil {
			log.Logger().Fatal("failed to create scraper", zap.Error(err))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		bar := progressbar.NewOptions(conf.To-conf.From+1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("update"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true))
		err = updateStore(ctx, scraper, store, path, conf.From, conf.To, incremental, func(key string) {
			bar.Describe(key)
			_ = bar.Add(1)
		})
		if err != nil {
			log.Logger().Fatal("failed to update votes", zap.String("path", path), zap.Error(err))
		}
	},
}

// updateStore scrapes articles numbered from..to into the store and saves it
// to path. An interrupted update is saved only if it extends an existing
// database; otherwise the file at path is left untouched.
func updateStore(ctx context.Context, scraper *ingest.Scraper, store *dataset.VoteStore, path string,
	from, to int, incremental bool, onArticle func(key string)) error {
	result, err := scraper.Update(ctx, store, from, to, onArticle)
	if errors.Is(err, context.Canceled) {
		if !incremental {
			return errors.Annotate(err, "update interrupted, vote database left unchanged")
		}
		log.Logger().Warn("update interrupted, save scraped articles",
			zap.Int("added", result.Added), zap.Int("updated", result.Updated))
	} else if err != nil {
		return errors.Trace(err)
	}
	if n := store.Duplicates(); n > 0 {
		log.Logger().Warn("vote database contains repeated votes", zap.Int("n_duplicates", n))
	}
	if err = store.Save(path); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("save vote database",
		zap.String("path", path),
		zap.Int("n_articles", store.CountArticles()),
		zap.Int("n_users", store.CountUsers()),
		zap.Int("n_votes", store.CountVotes()))
	return nil
}

// openStore loads the existing vote database for incremental updates. A
// missing database starts an empty store.
func openStore(path string, incremental bool) (*dataset.VoteStore, error) {
	if !incremental {
		return dataset.NewVoteStore(), nil
	}
	store, err := dataset.LoadVoteStore(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Logger().Warn("vote database not found, start from scratch", zap.String("path", path))
		return dataset.NewVoteStore(), nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return store, nil
}

func init() {
	defaultConfig := globalConfig.Update
	updateCommand.Flags().Int("from", defaultConfig.From, "number of the first article")
	updateCommand.Flags().Int("to", defaultConfig.To, "number of the last article")
	updateCommand.Flags().Bool("incremental", false, "update the existing vote database")
	rootCommand.AddCommand(updateCommand)
}
