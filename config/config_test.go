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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongo-replicaset-agent/pkg/logger"
)

func TestNewConfigRequiresClusterAddress(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), MongoClusterAddressEnv)
}

func TestNewConfigDefaults(t *testing.T) {
	t.Setenv(MongoClusterAddressEnv, "db-0.local:27017")

	opts, err := NewConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, opts.ListenAddr)
	assert.Equal(t, DefaultMode, opts.Mode)
	assert.Equal(t, DefaultMongoLocalAddress, opts.MongoLocalAddress)
	assert.Equal(t, "db-0.local:27017", opts.MongoClusterAddress)
	assert.Equal(t, uint(DefaultRetryAttempts), opts.RetryAttempts)
	assert.Equal(t, DefaultRetryBaseDelay, opts.RetryBaseDelay.Std())
	assert.Equal(t, DefaultReadTimeout, opts.ReadTimeout.Std())
	assert.Equal(t, logger.InfoLevel, opts.LogLevel)

	hostname, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, hostname, opts.NodeName)
}

func TestNewConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mongoagent.yaml")
	content := `
listenAddr: ":3000"
nodeName: node-7
mongoLocalAddress: "127.0.0.1:28017"
mongoClusterAddress: "db-7.local:28017"
retryAttempts: 3
retryBaseDelay: 250ms
logLevel: "4"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	opts, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":3000", opts.ListenAddr)
	assert.Equal(t, "node-7", opts.NodeName)
	assert.Equal(t, "127.0.0.1:28017", opts.MongoLocalAddress)
	assert.Equal(t, "db-7.local:28017", opts.MongoClusterAddress)
	assert.Equal(t, uint(3), opts.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, opts.RetryBaseDelay.Std())
	assert.Equal(t, logger.TraceLevel, opts.LogLevel)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mongoagent.yaml")
	content := `
nodeName: from-file
mongoClusterAddress: "db-file.local:27017"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv(NodeNameEnv, "from-env")
	t.Setenv(MongoClusterAddressEnv, "db-env.local:27017")
	t.Setenv(LogLevelEnv, "3")

	opts, err := NewConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", opts.NodeName)
	assert.Equal(t, "db-env.local:27017", opts.MongoClusterAddress)
	assert.Equal(t, logger.DebugLevel, opts.LogLevel)
}

func TestNewConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mongoagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: [broken"), 0o600))

	_, err := NewConfig(path)
	assert.Error(t, err)
}
