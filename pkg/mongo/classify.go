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
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"mongo-replicaset-agent/pkg/errs"
)

// Server error codes relevant to replica set reconfiguration.
const (
	codeAlreadyInitialized        = 23
	codeInvalidReplicaSetConfig   = 93
	codeNotYetInitialized         = 94
	codeNewConfigIncompatible     = 103
	codeConfigurationInProgress   = 109
	codeCurrentConfigNotCommitted = 308
)

// classify maps driver and server errors to the agent's error taxonomy.
// Unrecognized command errors are rejected outright; transport-level
// failures fall back to unreachable, which is safe to retry because every
// retry runs a fresh read before deciding anything.
func classify(command string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindCancelled, err, fmt.Sprintf("%s cancelled", command))
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		msg := fmt.Sprintf("%s: (%s) %s", command, cmdErr.Name, cmdErr.Message)
		switch cmdErr.Code {
		case codeNotYetInitialized:
			return errs.Wrap(errs.KindNotInitialized, err, msg)
		case codeInvalidReplicaSetConfig:
			return errs.Wrap(errs.KindRejected, err, msg)
		case codeAlreadyInitialized,
			codeNewConfigIncompatible,
			codeConfigurationInProgress,
			codeCurrentConfigNotCommitted:
			// The config changed under us or an install is racing ours;
			// a fresh read-plan-apply cycle resolves it.
			return errs.Wrap(errs.KindConflict, err, msg)
		default:
			return errs.Wrap(errs.KindRejected, err, msg)
		}
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindUnreachable, err, fmt.Sprintf("%s: node unreachable", command))
	}

	return errs.Wrap(errs.KindUnreachable, err, fmt.Sprintf("%s failed", command))
}
