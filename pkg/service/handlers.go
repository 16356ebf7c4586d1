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

package service

import (
	"context"
	"fmt"

	"mongo-replicaset-agent/pkg/errs"
	"mongo-replicaset-agent/pkg/model"
	"mongo-replicaset-agent/pkg/topology"
)

// Handler plans one action kind against the current topology. Plan must be
// pure apart from reads through its collaborators: it is re-invoked on
// every retry cycle with a freshly read topology.
type Handler interface {
	Kind() string
	Plan(ctx context.Context, current *topology.Current) (*topology.Plan, error)
}

// NameSource reports the replica set name the local mongod was started
// with. Satisfied by *mongo.Client.
type NameSource interface {
	ReplSetName(ctx context.Context) (string, error)
}

// Dispatcher resolves a submitted action to a handler according to the
// topology mode the agent runs in.
type Dispatcher struct {
	mode        string
	names       NameSource
	clusterAddr string
}

func NewDispatcher(mode string, names NameSource, clusterAddr string) *Dispatcher {
	return &Dispatcher{mode: mode, names: names, clusterAddr: clusterAddr}
}

// Dispatch validates the request arguments and returns the handler for its
// kind. Unknown modes and kinds fail with KindUnsupported, malformed
// arguments with KindInvalid; both are reported at submit time.
func (d *Dispatcher) Dispatch(req model.ActionRequest) (Handler, error) {
	switch d.mode {
	case model.ModeReplicaSet:
	default:
		return nil, errs.New(errs.KindUnsupported, fmt.Sprintf("topology mode %q is not supported", d.mode))
	}

	switch req.Kind {
	case KindClusterInit:
		args, err := decodeInitArgs(req.Parameters)
		if err != nil {
			return nil, err
		}
		return &initHandler{names: d.names, selfHost: d.clusterAddr, args: args}, nil
	case KindClusterAdd:
		args, err := decodeAddArgs(req.Parameters)
		if err != nil {
			return nil, err
		}
		return &addHandler{args: args}, nil
	default:
		return nil, errs.New(errs.KindUnsupported, fmt.Sprintf("unknown action kind %q", req.Kind))
	}
}

type initHandler struct {
	names    NameSource
	selfHost string
	args     *InitArgs
}

func (h *initHandler) Kind() string { return KindClusterInit }

func (h *initHandler) Plan(ctx context.Context, current *topology.Current) (*topology.Plan, error) {
	setName, err := h.names.ReplSetName(ctx)
	if err != nil {
		return nil, err
	}
	return topology.PlanInit(current, setName, h.selfHost, h.args.Settings)
}

type addHandler struct {
	args *AddArgs
}

func (h *addHandler) Kind() string { return KindClusterAdd }

func (h *addHandler) Plan(_ context.Context, current *topology.Current) (*topology.Plan, error) {
	return topology.PlanAdd(current, h.args.Host, h.args.ID)
}
