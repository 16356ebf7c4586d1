/*
Copyright 2025 Flant JSC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics counts database commands and action outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mongoCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repliagent_mongo_commands_total",
		Help: "Admin commands issued to the local MongoDB node.",
	}, []string{"command"})

	mongoCommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repliagent_mongo_command_errors_total",
		Help: "Admin commands that returned an error.",
	}, []string{"command"})

	mongoCommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "repliagent_mongo_command_duration_seconds",
		Help:    "Duration of admin commands issued to the local MongoDB node.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	actions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repliagent_actions_total",
		Help: "Actions that reached a terminal state, by kind and outcome.",
	}, []string{"kind", "outcome"})
)

// ObserveCommand starts timing one database command. The returned func
// records the duration and counts the error, if any.
func ObserveCommand(command string) func(err error) {
	start := time.Now()
	return func(err error) {
		mongoCommands.WithLabelValues(command).Inc()
		mongoCommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
		if err != nil {
			mongoCommandErrors.WithLabelValues(command).Inc()
		}
	}
}

// CountAction records one terminal action outcome.
func CountAction(kind, outcome string) {
	actions.WithLabelValues(kind, outcome).Inc()
}
