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

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"mongo-replicaset-agent/pkg/logger"
)

const (
	AgentName         = "mongo-replicaset-agent"
	DefaultConfigPath = "mongoagent.yaml"

	NodeNameEnv            = "NODE_NAME"
	MongoLocalAddressEnv   = "MONGO_LOCAL_ADDRESS"
	MongoClusterAddressEnv = "MONGO_CLUSTER_ADDRESS"
	MongoUsernameEnv       = "MONGO_USERNAME"
	MongoPasswordEnv       = "MONGO_PASSWORD"
	LogLevelEnv            = "LOG_LEVEL"

	DefaultListenAddr        = ":2030"
	DefaultMongoLocalAddress = "127.0.0.1:27017"
	DefaultMode              = "replicaset"

	DefaultRetryAttempts  = 5
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultReadTimeout    = 10 * time.Second
	DefaultApplyTimeout   = 30 * time.Second
	DefaultConnectTimeout = 5 * time.Second

	DefaultMongoRPS   = 10.0
	DefaultMongoBurst = 5
)

// Duration makes time.Duration parseable from "500ms"-style YAML strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Options struct {
	ListenAddr string `yaml:"listenAddr"`
	Mode       string `yaml:"mode"`

	// NodeName identifies this node to the orchestrator.
	NodeName string `yaml:"nodeName"`
	// MongoLocalAddress is the host:port the agent connects to, always the
	// local mongod.
	MongoLocalAddress string `yaml:"mongoLocalAddress"`
	// MongoClusterAddress is the host:port this node is known by inside
	// the replica set configuration.
	MongoClusterAddress string `yaml:"mongoClusterAddress"`
	// MongoUsername/MongoPassword are optional credentials; the password
	// is taken from the environment only.
	MongoUsername string `yaml:"mongoUsername"`
	MongoPassword string `yaml:"-"`

	RetryAttempts  uint     `yaml:"retryAttempts"`
	RetryBaseDelay Duration `yaml:"retryBaseDelay"`
	ReadTimeout    Duration `yaml:"readTimeout"`
	ApplyTimeout   Duration `yaml:"applyTimeout"`
	ConnectTimeout Duration `yaml:"connectTimeout"`

	MongoRPS   float64 `yaml:"mongoRPS"`
	MongoBurst int     `yaml:"mongoBurst"`

	LogLevel logger.Verbosity `yaml:"logLevel"`
}

// NewConfig loads the configuration file (a missing file means defaults)
// and applies environment overrides on top.
func NewConfig(path string) (*Options, error) {
	opts := defaults()

	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, opts); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	case os.IsNotExist(err):
		// Running with defaults and environment only.
	default:
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	applyEnv(opts)
	fill(opts)

	if opts.MongoClusterAddress == "" {
		return nil, fmt.Errorf("mongoClusterAddress (or %s) is required", MongoClusterAddressEnv)
	}
	return opts, nil
}

func defaults() *Options {
	return &Options{
		ListenAddr:        DefaultListenAddr,
		Mode:              DefaultMode,
		MongoLocalAddress: DefaultMongoLocalAddress,
		RetryAttempts:     DefaultRetryAttempts,
		RetryBaseDelay:    Duration(DefaultRetryBaseDelay),
		ReadTimeout:       Duration(DefaultReadTimeout),
		ApplyTimeout:      Duration(DefaultApplyTimeout),
		ConnectTimeout:    Duration(DefaultConnectTimeout),
		MongoRPS:          DefaultMongoRPS,
		MongoBurst:        DefaultMongoBurst,
		LogLevel:          logger.InfoLevel,
	}
}

func applyEnv(opts *Options) {
	if v := os.Getenv(NodeNameEnv); v != "" {
		opts.NodeName = v
	}
	if v := os.Getenv(MongoLocalAddressEnv); v != "" {
		opts.MongoLocalAddress = v
	}
	if v := os.Getenv(MongoClusterAddressEnv); v != "" {
		opts.MongoClusterAddress = v
	}
	if v := os.Getenv(MongoUsernameEnv); v != "" {
		opts.MongoUsername = v
	}
	if v := os.Getenv(MongoPasswordEnv); v != "" {
		opts.MongoPassword = v
	}
	if v := os.Getenv(LogLevelEnv); v != "" {
		opts.LogLevel = logger.Verbosity(v)
	}
}

func fill(opts *Options) {
	if opts.NodeName == "" {
		if hostname, err := os.Hostname(); err == nil {
			opts.NodeName = hostname
		}
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = Duration(DefaultRetryBaseDelay)
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if opts.ApplyTimeout <= 0 {
		opts.ApplyTimeout = Duration(DefaultApplyTimeout)
	}
	if opts.LogLevel == "" {
		opts.LogLevel = logger.InfoLevel
	}
}
