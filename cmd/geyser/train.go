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
	"os"

	"github.com/geyser-io/geyser/base/log"
	"github.com/geyser-io/geyser/base/progress"
	"github.com/geyser-io/geyser/config"
	"github.com/geyser-io/geyser/dataset"
	"github.com/geyser-io/geyser/model/cf"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var trainCommand = &cobra.Command{
	Use:   "train",
	Short: "Train the prediction model from the vote database",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		conf := trainConfig(cmd.Flags(), globalConfig.Train)
		params := cf.Params{
			NFactors:    conf.LatentFactors,
			NIterations: conf.Iterations,
			Lr:          conf.LearningRate,
			Reg:         conf.Regularization,
		}
		fitConfig := cf.NewFitConfig().SetJobs(conf.Jobs)
		if err := params.Validate(); err != nil {
			log.Logger().Fatal("invalid hyperparameters", zap.Error(err))
		}
		if err := fitConfig.Validate(); err != nil {
			log.Logger().Fatal("invalid fit config", zap.Error(err))
		}

		store, err := dataset.LoadVoteStore(globalConfig.Database.Path)
		if err != nil {
			log.Logger().Fatal("failed to load vote database", zap.String("path", globalConfig.Database.Path), zap.Error(err))
		}
		sinks := progress.Multi{progress.NewBarSink(os.Stderr), progress.LogSink{}}
		if conf.MetricsTextfile != "" {
			sinks = append(sinks, progress.NewMetricsSink(conf.MetricsTextfile))
		}
		model, score, err := cf.NewTrainer(params, fitConfig).SetProgress(sinks).Fit(store)
		if err != nil {
			log.Logger().Fatal("failed to train model", zap.Error(err))
		}
		if err = model.Save(globalConfig.Database.ModelPath); err != nil {
			log.Logger().Fatal("failed to save model", zap.String("path", globalConfig.Database.ModelPath), zap.Error(err))
		}
		var mse float64
		if len(score.MSE) > 0 {
			mse = score.MSE[len(score.MSE)-1]
		}
		log.Logger().Info("save model", zap.String("path", globalConfig.Database.ModelPath), zap.Float64("mse", mse))
	},
}

// trainConfig overrides the configured training options by flags set on the
// command line.
func trainConfig(flags *pflag.FlagSet, conf config.TrainConfig) config.TrainConfig {
	if flags.Changed("latent_factors") {
		conf.LatentFactors, _ = flags.GetInt("latent_factors")
	}
	if flags.Changed("iterations") {
		conf.Iterations, _ = flags.GetInt("iterations")
	}
	if flags.Changed("learning_rate") {
		conf.LearningRate, _ = flags.GetFloat64("learning_rate")
	}
	if flags.Changed("regularization") {
		conf.Regularization, _ = flags.GetFloat64("regularization")
	}
	if flags.Changed("jobs") {
		conf.Jobs, _ = flags.GetInt("jobs")
	}
	if flags.Changed("metrics-textfile") {
		conf.MetricsTextfile, _ = flags.GetString("metrics-textfile")
	}
	return conf
}

func addTrainFlags(flags *pflag.FlagSet) {
	defaultConfig := config.GetDefaultConfig().Train
	flags.Int("latent_factors", defaultConfig.LatentFactors, "number of latent factors")
	flags.Int("iterations", defaultConfig.Iterations, "number of iterations per factor")
	flags.Float64("learning_rate", defaultConfig.LearningRate, "learning rate")
	flags.Float64("regularization", defaultConfig.Regularization, "regularization strength")
	flags.IntP("jobs", "j", defaultConfig.Jobs, "number of working goroutines")
	flags.String("metrics-textfile", "", "write training metrics to a node exporter textfile")
}

func init() {
	addTrainFlags(trainCommand.Flags())
	rootCommand.AddCommand(trainCommand)
}
