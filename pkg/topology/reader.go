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

package topology

import (
	"context"
	"fmt"

	"mongo-replicaset-agent/pkg/errs"
	"mongo-replicaset-agent/pkg/logger"
)

// Reader fetches the current replica set configuration and a health
// summary of the local member. Purely observational.
type Reader struct {
	cmd Commander
	log *logger.Logger
}

func NewReader(cmd Commander, log *logger.Logger) *Reader {
	return &Reader{cmd: cmd, log: log.WithName("reader")}
}

// Read returns the live topology of the local node. A node without a
// replica set configuration yields Current{Initialized: false} and no
// error; network failures and timeouts come back classified as
// unreachable.
func (r *Reader) Read(ctx context.Context) (*Current, error) {
	cfg, err := r.cmd.ReplSetGetConfig(ctx)
	if err != nil {
		if errs.IsKind(err, errs.KindNotInitialized) {
			r.log.Debug("node has no replica set configuration yet")
			return &Current{Initialized: false, MyState: StateStartup}, nil
		}
		return nil, fmt.Errorf("reading replica set config: %w", err)
	}

	current := &Current{
		Initialized: true,
		Config:      cfg,
		Set:         cfg.ID,
		MyState:     StateUnknown,
	}

	// Status is a liveness summary on top of the config; losing it between
	// the two commands must not fail the read.
	status, err := r.cmd.ReplSetGetStatus(ctx)
	if err != nil {
		r.log.Warning("replica set status unavailable", "err", err)
		return current, nil
	}
	current.Set = status.Set
	current.MyState = status.MyState

	r.log.Debug("observed topology",
		"set", current.Set,
		"version", cfg.Version,
		"members", len(cfg.Members),
		"myState", current.MyState.String())
	return current, nil
}
