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

// Package model holds the wire models exchanged with the orchestrator.
package model

import "encoding/json"

// Topology modes the agent can be deployed in. Only replica sets are
// managed today; sharded and standalone deployments are rejected at
// dispatch.
const (
	ModeReplicaSet = "replicaset"
)

type ActionState string

const (
	StateNew     ActionState = "new"
	StateRunning ActionState = "running"
	StateDone    ActionState = "done"
	StateFailed  ActionState = "failed"
)

// Terminal reports whether the state is final and immutable.
func (s ActionState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// ActionRequest is submitted by the orchestrator to request a topology
// change. Parameters are kind-specific and kept opaque at this layer.
type ActionRequest struct {
	Kind          string          `json:"kind"`
	Parameters    json.RawMessage `json:"parameters,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// ActionError reports the classified reason of a failed action.
type ActionError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ActionResponse reports the lifecycle state of one action execution.
type ActionResponse struct {
	ID             string       `json:"id"`
	Kind           string       `json:"kind"`
	CorrelationID  string       `json:"correlation_id,omitempty"`
	State          ActionState  `json:"state"`
	Error          *ActionError `json:"error,omitempty"`
	NoOp           bool         `json:"no_op,omitempty"`
	AppliedVersion int          `json:"applied_version,omitempty"`
	Attempts       int          `json:"attempts,omitempty"`
	CreatedAt      string       `json:"created_at,omitempty"`
	FinishedAt     string       `json:"finished_at,omitempty"`
}

// NodeReport is the convergent node status surfaced to the orchestrator.
type NodeReport struct {
	NodeID     string            `json:"node_id"`
	StoreID    string            `json:"store_id"`
	ClusterID  string            `json:"cluster_id,omitempty"`
	Status     NodeStatus        `json:"status"`
	Detail     string            `json:"detail,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type NodeStatus string

const (
	NodeHealthy      NodeStatus = "healthy"
	NodeUnhealthy    NodeStatus = "unhealthy"
	NodeJoining      NodeStatus = "joining-cluster"
	NodeNotInCluster NodeStatus = "not-in-cluster"
	NodeUnknown      NodeStatus = "unknown"
)
