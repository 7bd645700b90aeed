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
	"runtime"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
)

var ErrInvalidHyperparameter = errors.NotValidf("hyperparameter")

const (
	DefaultNFactors    = 30
	DefaultNIterations = 120
	DefaultLr          = 0.004
	DefaultReg         = 0.02
)

// Params are the hyperparameters of the trainer.
type Params struct {
	NFactors    int     `bson:"n_factors" validate:"gte=1"`
	NIterations int     `bson:"n_iterations" validate:"gte=1"`
	Lr          float64 `bson:"lr" validate:"gt=0"`
	Reg         float64 `bson:"reg" validate:"gte=0"`
}

// NewParams returns the default hyperparameters.
func NewParams() Params {
	return Params{
		NFactors:    DefaultNFactors,
		NIterations: DefaultNIterations,
		Lr:          DefaultLr,
		Reg:         DefaultReg,
	}
}

func (p Params) Validate() error {
	return validate(p)
}

// FitConfig controls how the trainer runs. It does not change the model
// except for the floating point summation order, which depends on Jobs.
type FitConfig struct {
	Jobs int `validate:"gte=1"`
}

// NewFitConfig runs one job per CPU.
func NewFitConfig() FitConfig {
	return FitConfig{Jobs: runtime.NumCPU()}
}

// SetJobs returns a copy of the config with the number of jobs set.
func (config FitConfig) SetJobs(jobs int) FitConfig {
	config.Jobs = jobs
	return config
}

func (config FitConfig) Validate() error {
	return validate(config)
}

func validate(v any) error {
	if err := validator.New().Struct(v); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			fe := fieldErrors[0]
			return errors.Annotatef(ErrInvalidHyperparameter, "%s=%v must satisfy %s %s", fe.Field(), fe.Value(), fe.Tag(), fe.Param())
		}
		return errors.Annotate(ErrInvalidHyperparameter, err.Error())
	}
	return nil
}
