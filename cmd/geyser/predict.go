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
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/geyser-io/geyser/base/log"
	"github.com/geyser-io/geyser/model/cf"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// recommender returns the top n recommendations for a user or an article.
type recommender func(model *cf.Model, name string, n int) ([]cf.Recommendation, error)

var predictCommand = &cobra.Command{
	Use:   "predict USER...",
	Short: "Recommend unvoted articles to users",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runRecommend(cmd, args, "article", (*cf.Model).TopArticlesForUser)
	},
}

var advertiseCommand = &cobra.Command{
	Use:   "advertise ARTICLE...",
	Short: "Recommend articles to users who have not voted on them",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runRecommend(cmd, args, "user", (*cf.Model).TopUsersForArticle)
	},
}

func runRecommend(cmd *cobra.Command, names []string, column string, recommend recommender) {
	n := globalConfig.Predict.Top
	if cmd.Flags().Changed("top") {
		n, _ = cmd.Flags().GetInt("top")
	}
	if n < 1 {
		log.Logger().Fatal("invalid number of recommendations", zap.Int("top", n))
	}
	model, err := cf.LoadModel(globalConfig.Database.ModelPath)
	if err != nil {
		log.Logger().Fatal("failed to load model", zap.String("path", globalConfig.Database.ModelPath), zap.Error(err))
	}
	if err = writeRecommendations(os.Stdout, model, names, n, column, recommend); err != nil {
		log.Logger().Fatal("failed to write recommendations", zap.Error(err))
	}
}

// writeRecommendations writes a table of recommendations for every name. A
// name missing from the model is reported in one line and skipped.
func writeRecommendations(w io.Writer, model *cf.Model, names []string, n int, column string, recommend recommender) error {
	for _, name := range names {
		recommendations, err := recommend(model, name, n)
		if errors.Is(err, errors.NotFound) {
			if _, err = fmt.Fprintf(w, "%s: not found\n", name); err != nil {
				return errors.Trace(err)
			}
			continue
		} else if err != nil {
			return errors.Trace(err)
		}
		if _, err = fmt.Fprintf(w, "%s:\n", name); err != nil {
			return errors.Trace(err)
		}
		table := tablewriter.NewWriter(w)
		table.Header("rank", column, "score")
		rows := lo.Map(recommendations, func(r cf.Recommendation, i int) []string {
			return []string{strconv.Itoa(i + 1), r.Name, strconv.FormatFloat(r.Score, 'f', 4, 64)}
		})
		if err = table.Bulk(rows); err != nil {
			return errors.Trace(err)
		}
		if err = table.Render(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func init() {
	defaultTop := globalConfig.Predict.Top
	predictCommand.Flags().IntP("top", "n", defaultTop, "number of recommendations per user")
	advertiseCommand.Flags().IntP("top", "n", defaultTop, "number of recommendations per article")
	rootCommand.AddCommand(predictCommand, advertiseCommand)
}
