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

// Package nodeinfo derives the node report the orchestrator polls: the
// local member's health in the replica set plus host and database
// attributes. The report is recomputed from live state on every request.
package nodeinfo

import (
	"context"
	"strconv"

	"github.com/shirou/gopsutil/v4/host"

	"mongo-replicaset-agent/pkg/errs"
	"mongo-replicaset-agent/pkg/logger"
	"mongo-replicaset-agent/pkg/model"
	"mongo-replicaset-agent/pkg/topology"
)

// StoreID identifies the kind of data store this agent fronts.
const StoreID = "mongo.replica"

// Source is the slice of database commands the reporter needs. Satisfied
// by *mongo.Client.
type Source interface {
	ReplSetGetStatus(ctx context.Context) (*topology.Status, error)
	FeatureCompatibilityVersion(ctx context.Context) (string, error)
	OplogMaxSize(ctx context.Context) (int64, error)
}

type Reporter struct {
	src    Source
	nodeID string
	mode   string
	log    *logger.Logger
}

func NewReporter(src Source, nodeID, mode string, log *logger.Logger) *Reporter {
	return &Reporter{src: src, nodeID: nodeID, mode: mode, log: log.WithName("nodeinfo")}
}

// Report builds the current node report. It never fails: anything the
// reporter cannot learn degrades the status or drops an attribute.
func (r *Reporter) Report(ctx context.Context) *model.NodeReport {
	report := &model.NodeReport{
		NodeID:     r.nodeID,
		StoreID:    StoreID,
		Attributes: map[string]string{"mode": r.mode},
	}

	status, err := r.src.ReplSetGetStatus(ctx)
	switch {
	case err == nil:
		report.ClusterID = status.Set
		report.Status = statusFromMemberState(status.MyState)
		report.Detail = status.MyState.String()
	case errs.IsKind(err, errs.KindNotInitialized):
		report.Status = model.NodeNotInCluster
		report.Detail = "replica set not initialized"
	case errs.IsKind(err, errs.KindUnreachable):
		report.Status = model.NodeUnhealthy
		report.Detail = "database node unreachable"
	default:
		report.Status = model.NodeUnknown
		report.Detail = errs.MessageOf(err)
	}

	r.collectDatabaseAttributes(ctx, report)
	r.collectHostAttributes(ctx, report)
	return report
}

// statusFromMemberState folds the replica set member states into the
// orchestrator's coarse node statuses.
func statusFromMemberState(state topology.MemberState) model.NodeStatus {
	switch state {
	case topology.StatePrimary, topology.StateSecondary, topology.StateArbiter:
		return model.NodeHealthy
	case topology.StateStartup2, topology.StateRecovering:
		return model.NodeJoining
	case topology.StateStartup:
		return model.NodeNotInCluster
	case topology.StateDown, topology.StateRollback, topology.StateRemoved:
		return model.NodeUnhealthy
	}
	return model.NodeUnknown
}

func (r *Reporter) collectDatabaseAttributes(ctx context.Context, report *model.NodeReport) {
	if fcv, err := r.src.FeatureCompatibilityVersion(ctx); err == nil && fcv != "" {
		report.Attributes["fcv"] = fcv
	} else if err != nil {
		r.log.Debug("feature compatibility version unavailable", "err", err)
	}

	if report.Status == model.NodeNotInCluster {
		// No oplog exists before replSetInitiate.
		return
	}
	if size, err := r.src.OplogMaxSize(ctx); err == nil && size > 0 {
		report.Attributes["oplog_max_size"] = strconv.FormatInt(size, 10)
	} else if err != nil {
		r.log.Debug("oplog stats unavailable", "err", err)
	}
}

func (r *Reporter) collectHostAttributes(ctx context.Context, report *model.NodeReport) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		r.log.Debug("host info unavailable", "err", err)
		return
	}
	report.Attributes["hostname"] = info.Hostname
	report.Attributes["kernel_version"] = info.KernelVersion
	report.Attributes["os"] = info.Platform + " " + info.PlatformVersion
	report.Attributes["uptime_seconds"] = strconv.FormatUint(info.Uptime, 10)
}
