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

// Applier submits a mutation plan to the database. It is the only
// component that issues replSetInitiate/replSetReconfig; the action state
// machine guarantees a single apply is in flight per agent process.
type Applier struct {
	cmd Commander
	log *logger.Logger
}

func NewApplier(cmd Commander, log *logger.Logger) *Applier {
	return &Applier{cmd: cmd, log: log.WithName("applier")}
}

// Apply submits the plan's configuration and returns the accepted version.
// Errors come back classified: conflict (another writer reconfigured the
// set first, retryable with a fresh cycle), rejected (structural refusal,
// terminal) or unreachable.
func (a *Applier) Apply(ctx context.Context, plan *Plan) (int, error) {
	switch plan.Op {
	case PlanInitiate:
		a.log.Info("initiating replica set",
			"set", plan.Config.ID, "host", plan.Config.Members[0].Host)
		if err := a.cmd.ReplSetInitiate(ctx, plan.Config); err != nil {
			return 0, fmt.Errorf("replSetInitiate: %w", err)
		}
	case PlanReconfig:
		a.log.Info("reconfiguring replica set",
			"set", plan.Config.ID,
			"version", plan.Config.Version,
			"members", len(plan.Config.Members))
		if err := a.cmd.ReplSetReconfig(ctx, plan.Config); err != nil {
			return 0, fmt.Errorf("replSetReconfig: %w", err)
		}
	default:
		return 0, errs.Newf(errs.KindRejected, "plan %q is not applicable", plan.Op)
	}
	return plan.Config.Version, nil
}
