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

package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongo-replicaset-agent/pkg/errs"
	"mongo-replicaset-agent/pkg/logger"
	"mongo-replicaset-agent/pkg/model"
	"mongo-replicaset-agent/pkg/nodeinfo"
	"mongo-replicaset-agent/pkg/service"
	"mongo-replicaset-agent/pkg/topology"
)

// fakeNode plays both the Commander and the nodeinfo Source of a node that
// starts uninitialized and accepts a single-member initiate.
type fakeNode struct {
	initialized bool
}

func (f *fakeNode) ReplSetGetConfig(context.Context) (*topology.Config, error) {
	if !f.initialized {
		return nil, errs.New(errs.KindNotInitialized, "no replset config")
	}
	return &topology.Config{ID: "rs0", Version: 1, Members: []topology.Member{{ID: 0, Host: "db-0.local:27017"}}}, nil
}

func (f *fakeNode) ReplSetGetStatus(context.Context) (*topology.Status, error) {
	if !f.initialized {
		return nil, errs.New(errs.KindNotInitialized, "no replset config")
	}
	return &topology.Status{Set: "rs0", MyState: topology.StatePrimary}, nil
}

func (f *fakeNode) ReplSetInitiate(context.Context, *topology.Config) error {
	f.initialized = true
	return nil
}

func (f *fakeNode) ReplSetReconfig(context.Context, *topology.Config) error {
	return nil
}

func (f *fakeNode) ReplSetName(context.Context) (string, error) {
	return "rs0", nil
}

func (f *fakeNode) FeatureCompatibilityVersion(context.Context) (string, error) {
	return "7.0", nil
}

func (f *fakeNode) OplogMaxSize(context.Context) (int64, error) {
	if !f.initialized {
		return 0, errs.New(errs.KindRejected, "ns not found")
	}
	return 2048, nil
}

func newTestServer(t *testing.T) (*Server, *fakeNode) {
	t.Helper()
	log, err := logger.NewLogger(logger.ErrorLevel)
	require.NoError(t, err)

	node := &fakeNode{}
	dispatcher := service.NewDispatcher(model.ModeReplicaSet, node, "db-0.local:27017")
	runner := service.NewRunner(
		context.Background(),
		topology.NewReader(node, log),
		topology.NewApplier(node, log),
		dispatcher,
		service.RunnerOptions{Attempts: 3, BaseDelay: time.Millisecond, ApplyTimeout: time.Second},
		log,
	)
	reporter := nodeinfo.NewReporter(node, "node-0", model.ModeReplicaSet, log)
	return NewServer(runner, reporter, "test", log), node
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeAction(t *testing.T, rec *httptest.ResponseRecorder) model.ActionResponse {
	t.Helper()
	var resp model.ActionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSubmitAndPollInitAction(t *testing.T) {
	s, node := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/actions", `{"kind":"cluster.init"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	accepted := decodeAction(t, rec)
	assert.NotEmpty(t, accepted.ID)
	assert.Equal(t, "cluster.init", accepted.Kind)

	deadline := time.Now().Add(5 * time.Second)
	var final model.ActionResponse
	for time.Now().Before(deadline) {
		rec = doRequest(t, s, http.MethodGet, "/api/v1/actions/"+accepted.ID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		final = decodeAction(t, rec)
		if final.State.Terminal() {
			break
		}
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, model.StateDone, final.State)
	assert.Equal(t, 1, final.AppliedVersion)
	assert.True(t, node.initialized)
}

func TestGetUnknownAction(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/actions/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelUnknownAction(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/v1/actions/no-such-id/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitMalformedBody(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/v1/actions", `{"kind":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitMissingKind(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/v1/actions", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitUnknownKind(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/v1/actions", `{"kind":"cluster.remove"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var reply errorReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, string(errs.KindUnsupported), reply.Error.Kind)
}

func TestSubmitInvalidArguments(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/v1/actions", `{"kind":"cluster.add","parameters":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var reply errorReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, string(errs.KindInvalid), reply.Error.Kind)
}

func TestNodeReport(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/node", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report model.NodeReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "node-0", report.NodeID)
	assert.Equal(t, nodeinfo.StoreID, report.StoreID)
	assert.Equal(t, model.NodeNotInCluster, report.Status)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
