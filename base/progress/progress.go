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

package progress

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/geyser-io/geyser/base/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Sink receives training progress. Events are delivered synchronously from
// the training goroutine, factor by factor.
type Sink interface {
	FactorStarted(k, total int)
	FactorFinished(k, total int, elapsed time.Duration, mse float64)
}

// Nop discards all events.
type Nop struct{}

func (Nop) FactorStarted(int, int)                           {}
func (Nop) FactorFinished(int, int, time.Duration, float64) {}

// Multi forwards events to every sink in order.
type Multi []Sink

func (m Multi) FactorStarted(k, total int) {
	for _, sink := range m {
		sink.FactorStarted(k, total)
	}
}

func (m Multi) FactorFinished(k, total int, elapsed time.Duration, mse float64) {
	for _, sink := range m {
		sink.FactorFinished(k, total, elapsed, mse)
	}
}

// LogSink writes events to the package logger.
type LogSink struct{}

func (LogSink) FactorStarted(k, total int) {
	log.Logger().Debug("start training factor", zap.Int("factor", k+1), zap.Int("n_factors", total))
}

func (LogSink) FactorFinished(k, total int, elapsed time.Duration, mse float64) {
	log.Logger().Info("finish training factor",
		zap.Int("factor", k+1), zap.Int("n_factors", total),
		zap.Duration("elapsed", elapsed), zap.Float64("mse", mse))
}

// BarSink renders a progress bar with one step per factor.
type BarSink struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewBarSink creates a progress bar writing to w.
func NewBarSink(w io.Writer) *BarSink {
	return &BarSink{w: w}
}

func (b *BarSink) FactorStarted(k, total int) {
	if b.bar == nil {
		b.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(b.w),
			progressbar.OptionSetDescription("training"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetElapsedTime(true),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionOnCompletion(func() {
				_, _ = fmt.Fprintln(b.w)
			}))
	}
	b.bar.Describe(fmt.Sprintf("factor %d/%d", k+1, total))
}

func (b *BarSink) FactorFinished(k, total int, _ time.Duration, mse float64) {
	if b.bar == nil {
		return
	}
	b.bar.Describe(fmt.Sprintf("factor %d/%d mse=%.6f", k+1, total, mse))
	// the bar finishes itself at the last factor
	_ = b.bar.Add(1)
}

// MetricsSink exports training metrics to a node exporter textfile. The file
// is rewritten after every factor.
type MetricsSink struct {
	path     string
	registry *prometheus.Registry
	mse      *prometheus.GaugeVec
	seconds  *prometheus.GaugeVec
	finished prometheus.Gauge
	total    prometheus.Gauge
}

// NewMetricsSink creates a sink writing to the textfile at path.
func NewMetricsSink(path string) *MetricsSink {
	m := &MetricsSink{
		path:     path,
		registry: prometheus.NewRegistry(),
		mse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "geyser",
			Subsystem: "train",
			Name:      "factor_mse",
			Help:      "Mean squared error after the last iteration of a factor.",
		}, []string{"factor"}),
		seconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "geyser",
			Subsystem: "train",
			Name:      "factor_seconds",
			Help:      "Time spent training a factor.",
		}, []string{"factor"}),
		finished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "geyser",
			Subsystem: "train",
			Name:      "factors_finished",
			Help:      "Number of trained factors.",
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "geyser",
			Subsystem: "train",
			Name:      "factors_total",
			Help:      "Number of factors to train.",
		}),
	}
	m.registry.MustRegister(m.mse, m.seconds, m.finished, m.total)
	return m
}

// Gatherer returns the registry holding the training metrics.
func (m *MetricsSink) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *MetricsSink) FactorStarted(_, total int) {
	m.total.Set(float64(total))
}

func (m *MetricsSink) FactorFinished(k, total int, elapsed time.Duration, mse float64) {
	factor := strconv.Itoa(k)
	m.mse.WithLabelValues(factor).Set(mse)
	m.seconds.WithLabelValues(factor).Set(elapsed.Seconds())
	m.finished.Set(float64(k + 1))
	m.total.Set(float64(total))
	if err := prometheus.WriteToTextfile(m.path, m.registry); err != nil {
		log.Logger().Warn("failed to write metrics textfile", zap.String("path", m.path), zap.Error(err))
	}
}
