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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"mongo-replicaset-agent/config"
	"mongo-replicaset-agent/pkg/control"
	"mongo-replicaset-agent/pkg/logger"
	"mongo-replicaset-agent/pkg/mongo"
	"mongo-replicaset-agent/pkg/nodeinfo"
	"mongo-replicaset-agent/pkg/service"
	"mongo-replicaset-agent/pkg/topology"
)

var GitCommit string

var (
	flagConfig   = flag.String("config", config.DefaultConfigPath, "Path to the configuration file")
	flagAddr     = flag.String("addr", "", "Listen address, overrides the configuration file")
	flagMode     = flag.String("mode", "", "Topology mode, overrides the configuration file")
	flagLogLevel = flag.String("log-level", "", "Log verbosity 0..4, overrides the configuration file")
	flagVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *flagVersion {
		fmt.Printf("Git-commit: '%s'\n", GitCommit)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", config.AgentName, err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := config.NewConfig(*flagConfig)
	if err != nil {
		return err
	}
	if *flagAddr != "" {
		opts.ListenAddr = *flagAddr
	}
	if *flagMode != "" {
		opts.Mode = *flagMode
	}
	if *flagLogLevel != "" {
		opts.LogLevel = logger.Verbosity(*flagLogLevel)
	}

	log, err := logger.NewLogger(opts.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting agent",
		"version", GitCommit,
		"node", opts.NodeName,
		"mode", opts.Mode,
		"mongo", opts.MongoLocalAddress)

	client, err := mongo.New(ctx, mongo.Options{
		Address:        opts.MongoLocalAddress,
		ConnectTimeout: opts.ConnectTimeout.Std(),
		Username:       opts.MongoUsername,
		Password:       opts.MongoPassword,
		RPS:            opts.MongoRPS,
		Burst:          opts.MongoBurst,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Warning("disconnecting mongodb client", "err", err)
		}
	}()

	dispatcher := service.NewDispatcher(opts.Mode, client, opts.MongoClusterAddress)
	runner := service.NewRunner(
		ctx,
		topology.NewReader(client, log),
		topology.NewApplier(client, log),
		dispatcher,
		service.RunnerOptions{
			Attempts:     opts.RetryAttempts,
			BaseDelay:    opts.RetryBaseDelay.Std(),
			ReadTimeout:  opts.ReadTimeout.Std(),
			ApplyTimeout: opts.ApplyTimeout.Std(),
		},
		log,
	)
	reporter := nodeinfo.NewReporter(client, opts.NodeName, opts.Mode, log)
	srv := control.NewServer(runner, reporter, GitCommit, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, opts.ListenAddr)
	})

	err = g.Wait()
	// Let an in-flight action finish its apply before exiting.
	runner.Wait()

	if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("agent stopped")
	return nil
}
