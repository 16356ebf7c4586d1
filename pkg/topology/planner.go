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
	"mongo-replicaset-agent/pkg/errs"
)

// The planner is pure: it looks at the observed topology and the requested
// change and decides whether anything needs to be submitted. All database
// I/O stays in the Reader and the Applier.

// PlanInit decides how to satisfy a cluster.init request. settings are
// caller-supplied replSetInitiate settings merged over defaults.
func PlanInit(current *Current, setName, selfHost string, settings map[string]interface{}) (*Plan, error) {
	if !current.Initialized {
		if setName == "" {
			return nil, errs.New(errs.KindInvalid,
				"no replica set name configured on the database node")
		}
		cfg := &Config{
			ID:      setName,
			Version: 1,
			Members: []Member{{ID: 0, Host: selfHost}},
		}
		if len(settings) > 0 {
			cfg.Settings = mergeSettings(defaultInitSettings(), settings)
		}
		return &Plan{Op: PlanInitiate, Config: cfg}, nil
	}

	// Already initialized: a single-member set containing this node means
	// the request is satisfied; anything else was initialised by someone
	// with a different topology in mind.
	if len(current.Config.Members) == 1 && current.Config.Members[0].Host == selfHost {
		return &Plan{Op: PlanNoOp}, nil
	}
	return nil, errs.New(errs.KindInvalid,
		"already initialized with different topology")
}

// PlanAdd decides how to satisfy a cluster.add request. memberID is the
// caller-requested identifier, nil to auto-assign the lowest unused one.
func PlanAdd(current *Current, host string, memberID *int) (*Plan, error) {
	if !current.Initialized {
		return nil, errs.New(errs.KindInvalid,
			"replica set is not initialized on this node")
	}

	if existing, ok := current.FindMember(host); ok {
		if existing.Voting() {
			return &Plan{Op: PlanNoOp}, nil
		}
		return nil, errs.Newf(errs.KindInvalid,
			"host %q is already a non-voting member (id %d)", host, existing.ID)
	}

	used := make(map[int]struct{}, len(current.Config.Members))
	for _, m := range current.Config.Members {
		used[m.ID] = struct{}{}
	}

	var id int
	if memberID != nil {
		if _, taken := used[*memberID]; taken {
			return nil, errs.Newf(errs.KindInvalid,
				"member id %d is already taken", *memberID)
		}
		id = *memberID
	} else {
		for {
			if _, taken := used[id]; !taken {
				break
			}
			id++
		}
	}

	next := nextConfig(current.Config)
	next.Members = append(next.Members, Member{ID: id, Host: host})
	return &Plan{Op: PlanReconfig, Config: next}, nil
}

// nextConfig copies cfg with the version bumped by exactly one. Member
// order is preserved: order carries no meaning to the database but keeping
// it stable makes configs diffable for audit. The term is dropped so the
// server stamps its own on acceptance.
func nextConfig(cfg *Config) *Config {
	next := &Config{
		ID:      cfg.ID,
		Version: cfg.Version + 1,
		Members: make([]Member, len(cfg.Members)),
	}
	copy(next.Members, cfg.Members)
	if len(cfg.Settings) > 0 {
		next.Settings = make(map[string]interface{}, len(cfg.Settings))
		for k, v := range cfg.Settings {
			next.Settings[k] = v
		}
	}
	return next
}

func defaultInitSettings() map[string]interface{} {
	// No opinionated defaults today; the caller's settings document is
	// passed through to replSetInitiate as the original agent did.
	return map[string]interface{}{}
}

func mergeSettings(base, override map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
