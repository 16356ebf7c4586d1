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

// Package topology implements the replica-set topology reconciliation
// engine: reading the live configuration, diffing it against a requested
// change and applying at most one configuration mutation under MongoDB's
// monotonic-version reconfiguration protocol.
package topology

import "context"

// Config is the replica set configuration document as stored by the
// database. The agent only reads it and proposes new versions.
type Config struct {
	ID       string                 `bson:"_id" json:"_id"`
	Version  int                    `bson:"version" json:"version"`
	Term     int64                  `bson:"term,omitempty" json:"term,omitempty"`
	Members  []Member               `bson:"members" json:"members"`
	Settings map[string]interface{} `bson:"settings,omitempty" json:"settings,omitempty"`
}

// Member is one node's entry within a replica set configuration. Votes is
// a pointer so that an absent field keeps the server default of 1.
type Member struct {
	ID          int     `bson:"_id" json:"_id"`
	Host        string  `bson:"host" json:"host"`
	ArbiterOnly bool    `bson:"arbiterOnly,omitempty" json:"arbiterOnly,omitempty"`
	Hidden      bool    `bson:"hidden,omitempty" json:"hidden,omitempty"`
	Priority    float64 `bson:"priority,omitempty" json:"priority,omitempty"`
	Votes       *int    `bson:"votes,omitempty" json:"votes,omitempty"`
}

// Voting reports whether the member takes part in elections.
func (m Member) Voting() bool {
	return m.Votes == nil || *m.Votes > 0
}

// MemberState is the replica set member state reported by replSetGetStatus.
// https://www.mongodb.com/docs/manual/reference/replica-states/
type MemberState int

const (
	StateStartup    MemberState = 0
	StatePrimary    MemberState = 1
	StateSecondary  MemberState = 2
	StateRecovering MemberState = 3
	// State 4 is reserved and not used.
	StateStartup2 MemberState = 5
	StateUnknown  MemberState = 6
	StateArbiter  MemberState = 7
	StateDown     MemberState = 8
	StateRollback MemberState = 9
	StateRemoved  MemberState = 10
)

func (s MemberState) String() string {
	switch s {
	case StateStartup:
		return "STARTUP"
	case StatePrimary:
		return "PRIMARY"
	case StateSecondary:
		return "SECONDARY"
	case StateRecovering:
		return "RECOVERING"
	case StateStartup2:
		return "STARTUP2"
	case StateUnknown:
		return "UNKNOWN"
	case StateArbiter:
		return "ARBITER"
	case StateDown:
		return "DOWN"
	case StateRollback:
		return "ROLLBACK"
	case StateRemoved:
		return "REMOVED"
	}
	return "UNKNOWN"
}

// Status is the subset of the replSetGetStatus output the agent consumes.
type Status struct {
	Set     string         `bson:"set"`
	MyState MemberState    `bson:"myState"`
	Members []StatusMember `bson:"members"`
}

type StatusMember struct {
	ID    int         `bson:"_id"`
	Name  string      `bson:"name"`
	State MemberState `bson:"state"`
	Self  bool        `bson:"self,omitempty"`
}

// Current is the observed topology of the local node. Initialized is false
// when the node has no replica set configuration yet; that is a valid
// outcome, not an error.
type Current struct {
	Initialized bool
	Config      *Config
	Set         string
	MyState     MemberState
}

// FindMember returns the member entry for host, if present.
func (c *Current) FindMember(host string) (Member, bool) {
	if c.Config == nil {
		return Member{}, false
	}
	for _, m := range c.Config.Members {
		if m.Host == host {
			return m, true
		}
	}
	return Member{}, false
}

// Commander is the database capability interface the reconciliation engine
// consumes. The production implementation lives in pkg/mongo; tests supply
// fakes. All errors returned by implementations are classified (pkg/errs).
type Commander interface {
	ReplSetGetConfig(ctx context.Context) (*Config, error)
	ReplSetGetStatus(ctx context.Context) (*Status, error)
	ReplSetInitiate(ctx context.Context, cfg *Config) error
	ReplSetReconfig(ctx context.Context, cfg *Config) error
}

// PlanOp discriminates the reconciliation plans the diff planner produces.
type PlanOp string

const (
	// PlanNoOp means the requested change is already satisfied.
	PlanNoOp PlanOp = "noop"
	// PlanInitiate means a replSetInitiate with the attached config.
	PlanInitiate PlanOp = "initiate"
	// PlanReconfig means a replSetReconfig with the attached config.
	PlanReconfig PlanOp = "reconfigure"
)

// Plan is an ephemeral, derived value: the next configuration to submit,
// or nothing at all. It never outlives a single action execution. Invalid
// requests are reported as classified errors instead of a plan variant.
type Plan struct {
	Op     PlanOp
	Config *Config
}
