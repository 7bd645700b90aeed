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

package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

const envPrefix = "GEYSER"

// Config is the configuration of geyser.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Update   UpdateConfig   `mapstructure:"update"`
	Train    TrainConfig    `mapstructure:"train"`
	Predict  PredictConfig  `mapstructure:"predict"`
}

// DatabaseConfig is the configuration for the files of votes and model.
type DatabaseConfig struct {
	Path      string `mapstructure:"path" validate:"required"`
	ModelPath string `mapstructure:"model_path" validate:"required"`
}

// UpdateConfig is the configuration for scraping votes.
type UpdateConfig struct {
	From         int           `mapstructure:"from" validate:"gte=0"`
	To           int           `mapstructure:"to" validate:"gtefield=From"`
	WikiURL      string        `mapstructure:"wiki_url" validate:"required,url"`
	VoteEndpoint string        `mapstructure:"vote_endpoint" validate:"required,url"`
	UserAgent    string        `mapstructure:"user_agent" validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RateLimit    float64       `mapstructure:"rate_limit" validate:"gt=0"`
	MaxRetries   uint          `mapstructure:"max_retries" validate:"gte=1"`
}

// TrainConfig is the configuration for training.
type TrainConfig struct {
	LatentFactors   int     `mapstructure:"latent_factors" validate:"gte=1"`
	Iterations      int     `mapstructure:"iterations" validate:"gte=1"`
	LearningRate    float64 `mapstructure:"learning_rate" validate:"gt=0"`
	Regularization  float64 `mapstructure:"regularization" validate:"gte=0"`
	Jobs            int     `mapstructure:"jobs" validate:"gte=1"`
	MetricsTextfile string  `mapstructure:"metrics_textfile"`
}

// PredictConfig is the configuration for predict and advertise.
type PredictConfig struct {
	Top int `mapstructure:"top" validate:"gte=1"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "database.bin",
			ModelPath: "prediction_model.bin",
		},
		Update: UpdateConfig{
			From:         6000,
			To:           7999,
			WikiURL:      "https://scp-wiki.wikidot.com/",
			VoteEndpoint: "https://scp-wiki.wikidot.com/ajax-module-connector.php",
			UserAgent:    "geyser-scp-vote-counter/0.2.0",
			Timeout:      5 * time.Second,
			RateLimit:    4,
			MaxRetries:   3,
		},
		Train: TrainConfig{
			LatentFactors:  30,
			Iterations:     120,
			LearningRate:   0.004,
			Regularization: 0.02,
			Jobs:           runtime.NumCPU(),
		},
		Predict: PredictConfig{
			Top: 10,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [database]
	viper.SetDefault("database.path", defaultConfig.Database.Path)
	viper.SetDefault("database.model_path", defaultConfig.Database.ModelPath)
	// [update]
	viper.SetDefault("update.from", defaultConfig.Update.From)
	viper.SetDefault("update.to", defaultConfig.Update.To)
	viper.SetDefault("update.wiki_url", defaultConfig.Update.WikiURL)
	viper.SetDefault("update.vote_endpoint", defaultConfig.Update.VoteEndpoint)
	viper.SetDefault("update.user_agent", defaultConfig.Update.UserAgent)
	viper.SetDefault("update.timeout", defaultConfig.Update.Timeout)
	viper.SetDefault("update.rate_limit", defaultConfig.Update.RateLimit)
	viper.SetDefault("update.max_retries", defaultConfig.Update.MaxRetries)
	// [train]
	viper.SetDefault("train.latent_factors", defaultConfig.Train.LatentFactors)
	viper.SetDefault("train.iterations", defaultConfig.Train.Iterations)
	viper.SetDefault("train.learning_rate", defaultConfig.Train.LearningRate)
	viper.SetDefault("train.regularization", defaultConfig.Train.Regularization)
	viper.SetDefault("train.jobs", defaultConfig.Train.Jobs)
	viper.SetDefault("train.metrics_textfile", defaultConfig.Train.MetricsTextfile)
	// [predict]
	viper.SetDefault("predict.top", defaultConfig.Predict.Top)
}

// bindEnv binds every config key to an environment variable, for example
// train.jobs to GEYSER_TRAIN_JOBS.
func bindEnv() error {
	for _, key := range viper.AllKeys() {
		env := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := viper.BindEnv(key, env); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a TOML file, then overrides it by
// environment variables. An empty path loads defaults and environment
// variables only.
func LoadConfig(path string) (*Config, error) {
	viper.Reset()
	setDefault()
	if err := bindEnv(); err != nil {
		return nil, errors.Trace(err)
	}
	if path != "" {
		viper.SetConfigType("toml")
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "read config %s", path)
		}
	}
	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks values in the config.
func (config *Config) Validate() error {
	if err := validator.New().Struct(config); err != nil {
		return errors.NewNotValid(err, "invalid config")
	}
	return nil
}
