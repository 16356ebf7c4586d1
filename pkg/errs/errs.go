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

// Package errs defines the classified error kinds the agent reports to the
// orchestrator. Every terminal action state carries one of these kinds plus
// a human-readable message.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindUnreachable is a transient network or timeout failure talking to
	// the local database node.
	KindUnreachable Kind = "unreachable"
	// KindNotInitialized means the node has no replica set configuration
	// yet. This is the expected precondition for cluster.init, not a
	// failure of the database.
	KindNotInitialized Kind = "not_initialized"
	// KindConflict means the database observed a configuration version
	// mismatch: another writer reconfigured the set between our read and
	// apply. Retryable with a fresh read->plan->apply cycle.
	KindConflict Kind = "conflict"
	// KindRejected means the database refused the configuration for a
	// structural reason. Not retryable without a new plan.
	KindRejected Kind = "rejected"
	// KindInvalid means the caller's input or the current cluster state
	// does not permit the requested action.
	KindInvalid Kind = "invalid"
	// KindBusy means another action is already running on this agent.
	KindBusy Kind = "busy"
	// KindCancelled means the caller cancelled the in-flight action.
	KindCancelled Kind = "cancelled"
	// KindConflictExhausted means the conflict retry budget was used up.
	KindConflictExhausted Kind = "conflict_exhausted"
	// KindUnsupported means the action kind is unknown to the configured
	// deployment mode.
	KindUnsupported Kind = "unsupported"
)

// Error carries a machine-readable kind alongside the usual error chain.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

// Wrap attaches a kind and message to err, keeping it unwrappable.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the classified kind from an error chain. Unclassified
// errors report KindRejected: an unknown failure must never be retried
// blindly against a live replica set.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRejected
}

// MessageOf returns the human-readable message of a classified error, or
// the plain error text for unclassified ones.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsTransient reports whether the action retry loop may absorb this error
// by re-running the full read->plan->apply cycle.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindUnreachable:
		return true
	}
	return false
}
