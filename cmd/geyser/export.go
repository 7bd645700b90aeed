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
	"github.com/geyser-io/geyser/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportCommand = &cobra.Command{
	Use:   "export",
	Short: "Export the vote database to SQLite",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		store, err := dataset.LoadVoteStore(globalConfig.Database.Path)
		if err != nil {
			log.Logger().Fatal("failed to load vote database", zap.String("path", globalConfig.Database.Path), zap.Error(err))
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err = storage.ExportSQLite(ctx, output, store); err != nil {
			log.Logger().Fatal("failed to export votes", zap.String("output", output), zap.Error(err))
		}
		log.Logger().Info("export votes", zap.String("output", output), zap.Int("n_votes", store.CountVotes()))
	},
}

func init() {
	exportCommand.Flags().StringP("output", "o", "votes.db", "path of the SQLite database")
	rootCommand.AddCommand(exportCommand)
}
