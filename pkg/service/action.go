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

// Package service turns submitted actions into read-plan-apply cycles
// against the local node's replica set and tracks their lifecycle.
package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"mongo-replicaset-agent/pkg/errs"
)

// Action kinds accepted by the agent.
const (
	KindClusterInit = "cluster.init"
	KindClusterAdd  = "cluster.add"
)

// InitArgs are the arguments of a cluster.init action. Settings, when
// present, is passed through into the initial config's settings document.
type InitArgs struct {
	Settings map[string]interface{} `json:"settings,omitempty"`
}

// AddArgs are the arguments of a cluster.add action. Host accepts "node"
// as an alias for compatibility with older clients.
type AddArgs struct {
	ID   *int   `json:"id,omitempty"`
	Host string `json:"host"`
}

func (a *AddArgs) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   *int   `json:"id"`
		Host string `json:"host"`
		Node string `json:"node"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.ID = raw.ID
	a.Host = raw.Host
	if a.Host == "" {
		a.Host = raw.Node
	}
	return nil
}

func decodeInitArgs(params json.RawMessage) (*InitArgs, error) {
	args := &InitArgs{}
	if len(params) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(params, args); err != nil {
		return nil, errs.Wrap(errs.KindInvalid, err, "malformed cluster.init arguments")
	}
	return args, nil
}

func decodeAddArgs(params json.RawMessage) (*AddArgs, error) {
	args := &AddArgs{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, args); err != nil {
			return nil, errs.Wrap(errs.KindInvalid, err, "malformed cluster.add arguments")
		}
	}
	args.Host = strings.TrimSpace(args.Host)
	if args.Host == "" {
		return nil, errs.New(errs.KindInvalid, "cluster.add requires a host")
	}
	if args.ID != nil && *args.ID < 0 {
		return nil, errs.New(errs.KindInvalid, fmt.Sprintf("member id %d is negative", *args.ID))
	}
	return args, nil
}
