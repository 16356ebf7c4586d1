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

// Package mongo is the production implementation of the database
// capability interfaces: a thin, rate-limited, instrumented wrapper around
// the official driver, connected directly and exclusively to the local
// node.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/time/rate"

	"mongo-replicaset-agent/pkg/logger"
	"mongo-replicaset-agent/pkg/metrics"
	"mongo-replicaset-agent/pkg/topology"
)

const (
	appName = "mongo-replicaset-agent"
	adminDB = "admin"
	localDB = "local"

	cmdReplSetGetConfig = "replSetGetConfig"
	cmdReplSetGetStatus = "replSetGetStatus"
	cmdReplSetInitiate  = "replSetInitiate"
	cmdReplSetReconfig  = "replSetReconfig"
	cmdGetCmdLineOpts   = "getCmdLineOpts"
	cmdGetParameter     = "getParameter"
	cmdCollStats        = "collStats"

	// Local connections only; a long server selection timeout just delays
	// error reporting.
	defaultServerSelectionTimeout = 500 * time.Millisecond
)

type Options struct {
	// Address of the local mongod, host:port.
	Address string
	// ConnectTimeout for establishing connections, zero for driver default.
	ConnectTimeout time.Duration
	// Username/Password are passed through to the driver when set. The
	// agent does not provision credentials.
	Username string
	Password string
	// RPS limits admin commands per second, <= 0 for unlimited.
	RPS float64
	// Burst for the rate limiter, used only when RPS > 0.
	Burst int
}

// Client issues admin commands against the local MongoDB node.
type Client struct {
	mc      *mongo.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

var _ topology.Commander = (*Client)(nil)

func New(ctx context.Context, opts Options, log *logger.Logger) (*Client, error) {
	clientOpts := options.Client().
		SetHosts([]string{opts.Address}).
		// Connect directly and exclusively to our corresponding node.
		SetDirect(true).
		SetAppName(appName).
		SetServerSelectionTimeout(defaultServerSelectionTimeout)
	if opts.ConnectTimeout > 0 {
		clientOpts = clientOpts.SetConnectTimeout(opts.ConnectTimeout)
	}
	if opts.Username != "" {
		clientOpts = clientOpts.SetAuth(options.Credential{
			Username: opts.Username,
			Password: opts.Password,
		})
	}

	mc, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("creating mongodb client for %q: %w", opts.Address, err)
	}

	r := rate.Limit(opts.RPS)
	burst := opts.Burst
	if r <= 0 {
		r = rate.Inf
		burst = 0
	}

	return &Client{
		mc:      mc,
		limiter: rate.NewLimiter(r, burst),
		log:     log.WithName("mongo"),
	}, nil
}

// Disconnect releases the underlying connection pool.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.mc.Disconnect(ctx)
}

// runCommand runs one admin command with rate limiting, metrics and error
// classification. out may be nil when the reply document is irrelevant.
func (c *Client) runCommand(ctx context.Context, db, name string, command bson.D, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return classify(name, err)
	}

	done := metrics.ObserveCommand(name)
	res := c.mc.Database(db).RunCommand(ctx, command)
	err := res.Err()
	if err == nil && out != nil {
		err = res.Decode(out)
	}
	done(err)

	if err != nil {
		c.log.Debug("admin command failed", "command", name, "err", err)
		return classify(name, err)
	}
	return nil
}

func (c *Client) ReplSetGetConfig(ctx context.Context) (*topology.Config, error) {
	var out struct {
		Config topology.Config `bson:"config"`
	}
	command := bson.D{{Key: cmdReplSetGetConfig, Value: 1}}
	if err := c.runCommand(ctx, adminDB, cmdReplSetGetConfig, command, &out); err != nil {
		return nil, err
	}
	return &out.Config, nil
}

func (c *Client) ReplSetGetStatus(ctx context.Context) (*topology.Status, error) {
	var out topology.Status
	command := bson.D{{Key: cmdReplSetGetStatus, Value: 1}}
	if err := c.runCommand(ctx, adminDB, cmdReplSetGetStatus, command, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ReplSetInitiate(ctx context.Context, cfg *topology.Config) error {
	command := bson.D{{Key: cmdReplSetInitiate, Value: cfg}}
	return c.runCommand(ctx, adminDB, cmdReplSetInitiate, command, nil)
}

func (c *Client) ReplSetReconfig(ctx context.Context, cfg *topology.Config) error {
	command := bson.D{{Key: cmdReplSetReconfig, Value: cfg}}
	return c.runCommand(ctx, adminDB, cmdReplSetReconfig, command, nil)
}

// ReplSetName reads the replica set name the mongod was started with,
// from getCmdLineOpts. Empty when replication is not configured.
func (c *Client) ReplSetName(ctx context.Context) (string, error) {
	var out struct {
		Parsed struct {
			Replication struct {
				ReplSetName string `bson:"replSetName"`
			} `bson:"replication"`
		} `bson:"parsed"`
	}
	command := bson.D{{Key: cmdGetCmdLineOpts, Value: 1}}
	if err := c.runCommand(ctx, adminDB, cmdGetCmdLineOpts, command, &out); err != nil {
		return "", err
	}
	return out.Parsed.Replication.ReplSetName, nil
}

// FeatureCompatibilityVersion reads the node's FCV parameter.
func (c *Client) FeatureCompatibilityVersion(ctx context.Context) (string, error) {
	var out struct {
		FCV struct {
			Version string `bson:"version"`
		} `bson:"featureCompatibilityVersion"`
	}
	command := bson.D{
		{Key: cmdGetParameter, Value: 1},
		{Key: "featureCompatibilityVersion", Value: 1},
	}
	if err := c.runCommand(ctx, adminDB, cmdGetParameter, command, &out); err != nil {
		return "", err
	}
	return out.FCV.Version, nil
}

// OplogMaxSize reads the configured maximum size of the oplog collection.
func (c *Client) OplogMaxSize(ctx context.Context) (int64, error) {
	var out struct {
		MaxSize int64 `bson:"maxSize"`
	}
	command := bson.D{{Key: cmdCollStats, Value: "oplog.rs"}}
	if err := c.runCommand(ctx, localDB, cmdCollStats, command, &out); err != nil {
		return 0, err
	}
	return out.MaxSize, nil
}
