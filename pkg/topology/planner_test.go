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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongo-replicaset-agent/pkg/errs"
)

func uninitialized() *Current {
	return &Current{Initialized: false, MyState: StateStartup}
}

func initialized(members ...Member) *Current {
	return &Current{
		Initialized: true,
		Config: &Config{
			ID:      "rs0",
			Version: 3,
			Members: members,
		},
		Set:     "rs0",
		MyState: StatePrimary,
	}
}

func TestPlanInitOnFreshNode(t *testing.T) {
	plan, err := PlanInit(uninitialized(), "rs0", "db-0.local:27017", nil)
	require.NoError(t, err)

	assert.Equal(t, PlanInitiate, plan.Op)
	assert.Equal(t, "rs0", plan.Config.ID)
	assert.Equal(t, 1, plan.Config.Version)
	require.Len(t, plan.Config.Members, 1)
	assert.Equal(t, 0, plan.Config.Members[0].ID)
	assert.Equal(t, "db-0.local:27017", plan.Config.Members[0].Host)
	assert.Nil(t, plan.Config.Settings)
}

func TestPlanInitPassesSettingsThrough(t *testing.T) {
	settings := map[string]interface{}{"electionTimeoutMillis": 5000}
	plan, err := PlanInit(uninitialized(), "rs0", "db-0.local:27017", settings)
	require.NoError(t, err)

	assert.Equal(t, PlanInitiate, plan.Op)
	assert.Equal(t, 5000, plan.Config.Settings["electionTimeoutMillis"])
}

func TestPlanInitWithoutSetName(t *testing.T) {
	_, err := PlanInit(uninitialized(), "", "db-0.local:27017", nil)
	assert.True(t, errs.IsKind(err, errs.KindInvalid))
}

func TestPlanInitAlreadySatisfied(t *testing.T) {
	current := initialized(Member{ID: 0, Host: "db-0.local:27017"})
	plan, err := PlanInit(current, "rs0", "db-0.local:27017", nil)
	require.NoError(t, err)
	assert.Equal(t, PlanNoOp, plan.Op)
}

func TestPlanInitDivergedTopology(t *testing.T) {
	current := initialized(
		Member{ID: 0, Host: "db-1.local:27017"},
		Member{ID: 1, Host: "db-2.local:27017"},
	)
	_, err := PlanInit(current, "rs0", "db-0.local:27017", nil)
	assert.True(t, errs.IsKind(err, errs.KindInvalid))
}

func TestPlanAddBumpsVersionByOne(t *testing.T) {
	current := initialized(Member{ID: 0, Host: "db-0.local:27017"})
	plan, err := PlanAdd(current, "db-1.local:27017", nil)
	require.NoError(t, err)

	assert.Equal(t, PlanReconfig, plan.Op)
	assert.Equal(t, current.Config.Version+1, plan.Config.Version)
	require.Len(t, plan.Config.Members, 2)
	assert.Equal(t, "db-1.local:27017", plan.Config.Members[1].Host)
}

func TestPlanAddAssignsLowestUnusedID(t *testing.T) {
	current := initialized(
		Member{ID: 0, Host: "db-0.local:27017"},
		Member{ID: 2, Host: "db-2.local:27017"},
	)
	plan, err := PlanAdd(current, "db-1.local:27017", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Config.Members[2].ID)
}

func TestPlanAddHonorsRequestedID(t *testing.T) {
	current := initialized(Member{ID: 0, Host: "db-0.local:27017"})
	id := 7
	plan, err := PlanAdd(current, "db-1.local:27017", &id)
	require.NoError(t, err)
	assert.Equal(t, 7, plan.Config.Members[1].ID)
}

func TestPlanAddRejectsTakenID(t *testing.T) {
	current := initialized(Member{ID: 0, Host: "db-0.local:27017"})
	id := 0
	_, err := PlanAdd(current, "db-1.local:27017", &id)
	assert.True(t, errs.IsKind(err, errs.KindInvalid))
}

func TestPlanAddExistingVotingMemberIsNoOp(t *testing.T) {
	current := initialized(
		Member{ID: 0, Host: "db-0.local:27017"},
		Member{ID: 1, Host: "db-1.local:27017"},
	)
	plan, err := PlanAdd(current, "db-1.local:27017", nil)
	require.NoError(t, err)
	assert.Equal(t, PlanNoOp, plan.Op)
	assert.Nil(t, plan.Config)
}

func TestPlanAddExistingNonVotingMember(t *testing.T) {
	votes := 0
	current := initialized(
		Member{ID: 0, Host: "db-0.local:27017"},
		Member{ID: 1, Host: "db-1.local:27017", Votes: &votes},
	)
	_, err := PlanAdd(current, "db-1.local:27017", nil)
	assert.True(t, errs.IsKind(err, errs.KindInvalid))
}

func TestPlanAddUninitialized(t *testing.T) {
	_, err := PlanAdd(uninitialized(), "db-1.local:27017", nil)
	assert.True(t, errs.IsKind(err, errs.KindInvalid))
}

func TestPlanAddDoesNotMutateCurrentConfig(t *testing.T) {
	current := initialized(Member{ID: 0, Host: "db-0.local:27017"})
	current.Config.Settings = map[string]interface{}{"chainingAllowed": true}

	plan, err := PlanAdd(current, "db-1.local:27017", nil)
	require.NoError(t, err)

	plan.Config.Settings["chainingAllowed"] = false
	plan.Config.Members[0].Host = "mutated"

	assert.Equal(t, 3, current.Config.Version)
	assert.Len(t, current.Config.Members, 1)
	assert.Equal(t, "db-0.local:27017", current.Config.Members[0].Host)
	assert.Equal(t, true, current.Config.Settings["chainingAllowed"])
}

func TestPlanAddDropsTerm(t *testing.T) {
	current := initialized(Member{ID: 0, Host: "db-0.local:27017"})
	current.Config.Term = 9

	plan, err := PlanAdd(current, "db-1.local:27017", nil)
	require.NoError(t, err)
	assert.Zero(t, plan.Config.Term)
}
