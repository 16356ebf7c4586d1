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

package mongo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"

	"mongo-replicaset-agent/pkg/errs"
)

func TestClassifyCommandErrors(t *testing.T) {
	cases := []struct {
		name string
		code int32
		want errs.Kind
	}{
		{"not yet initialized", codeNotYetInitialized, errs.KindNotInitialized},
		{"invalid replica set config", codeInvalidReplicaSetConfig, errs.KindRejected},
		{"already initialized", codeAlreadyInitialized, errs.KindConflict},
		{"new config incompatible", codeNewConfigIncompatible, errs.KindConflict},
		{"configuration in progress", codeConfigurationInProgress, errs.KindConflict},
		{"current config not committed", codeCurrentConfigNotCommitted, errs.KindConflict},
		{"unknown command error", 8000, errs.KindRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("replSetReconfig", mongo.CommandError{Code: tc.code, Message: tc.name})
			assert.Equal(t, tc.want, errs.KindOf(err))
		})
	}
}

func TestClassifyContextErrors(t *testing.T) {
	err := classify("replSetGetConfig", context.Canceled)
	assert.Equal(t, errs.KindCancelled, errs.KindOf(err))

	err = classify("replSetGetConfig", context.DeadlineExceeded)
	assert.Equal(t, errs.KindUnreachable, errs.KindOf(err))
}

func TestClassifyDriverErrors(t *testing.T) {
	err := classify("replSetGetStatus", mongo.ErrClientDisconnected)
	assert.Equal(t, errs.KindUnreachable, errs.KindOf(err))

	err = classify("replSetGetStatus", errors.New("connection refused"))
	assert.Equal(t, errs.KindUnreachable, errs.KindOf(err))
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, classify("replSetGetConfig", nil))
}

func TestClassifyWrapsOriginal(t *testing.T) {
	orig := mongo.CommandError{Code: codeConfigurationInProgress, Message: "in progress"}
	err := classify("replSetReconfig", orig)

	var cmdErr mongo.CommandError
	assert.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, orig.Code, cmdErr.Code)
}
