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
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"

	"mongo-replicaset-agent/pkg/errs"
	"mongo-replicaset-agent/pkg/logger"
	"mongo-replicaset-agent/pkg/metrics"
	"mongo-replicaset-agent/pkg/model"
	"mongo-replicaset-agent/pkg/topology"
)

// RunnerOptions tune the retry behavior of action executions.
type RunnerOptions struct {
	// Attempts bounds the number of read-plan-apply cycles per execution.
	Attempts uint
	// BaseDelay is the first backoff delay; it doubles on every retry.
	BaseDelay time.Duration
	// ReadTimeout bounds the read and plan steps of one cycle. An expired
	// read is transient and joins the retry budget, so a wedged connection
	// cannot hold the execution slot forever.
	ReadTimeout time.Duration
	// ApplyTimeout bounds a single apply step. An expired apply is never
	// re-sent blindly; the whole cycle re-reads and re-plans instead.
	ApplyTimeout time.Duration
}

func (o *RunnerOptions) withDefaults() RunnerOptions {
	out := *o
	if out.Attempts == 0 {
		out.Attempts = 5
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = 500 * time.Millisecond
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 10 * time.Second
	}
	if out.ApplyTimeout <= 0 {
		out.ApplyTimeout = 30 * time.Second
	}
	return out
}

// execution is the in-memory record of one action. There is no persisted
// action log: after a restart idempotence comes from the live topology.
type execution struct {
	id     string
	req    model.ActionRequest
	cancel context.CancelFunc

	state          model.ActionState
	actionErr      *model.ActionError
	noOp           bool
	appliedVersion int
	attempts       int
	createdAt      time.Time
	finishedAt     time.Time
}

func (e *execution) response() *model.ActionResponse {
	resp := &model.ActionResponse{
		ID:             e.id,
		Kind:           e.req.Kind,
		CorrelationID:  e.req.CorrelationID,
		State:          e.state,
		Error:          e.actionErr,
		NoOp:           e.noOp,
		AppliedVersion: e.appliedVersion,
		Attempts:       e.attempts,
		CreatedAt:      e.createdAt.UTC().Format(time.RFC3339),
	}
	if !e.finishedAt.IsZero() {
		resp.FinishedAt = e.finishedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Runner executes actions one at a time. A second submission while one is
// running is refused with KindBusy; resubmitting the correlation id of the
// running action returns its status instead of a duplicate execution.
type Runner struct {
	reader     *topology.Reader
	applier    *topology.Applier
	dispatcher *Dispatcher
	opts       RunnerOptions
	log        *logger.Logger

	mu      sync.RWMutex
	execs   map[string]*execution
	running *execution

	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewRunner(
	baseCtx context.Context,
	reader *topology.Reader,
	applier *topology.Applier,
	dispatcher *Dispatcher,
	opts RunnerOptions,
	log *logger.Logger,
) *Runner {
	return &Runner{
		reader:     reader,
		applier:    applier,
		dispatcher: dispatcher,
		opts:       opts.withDefaults(),
		log:        log.WithName("runner"),
		execs:      make(map[string]*execution),
		baseCtx:    baseCtx,
	}
}

// Submit validates the request, acquires the single execution slot and
// starts the action asynchronously. The returned snapshot reports the
// action in its initial state; poll Status for progress.
func (r *Runner) Submit(req model.ActionRequest) (*model.ActionResponse, error) {
	handler, err := r.dispatcher.Dispatch(req)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.running != nil {
		// Duplicate delivery of the in-flight action is answered with its
		// state rather than a refusal.
		if req.CorrelationID != "" && req.CorrelationID == r.running.req.CorrelationID {
			resp := r.running.response()
			r.mu.Unlock()
			return resp, nil
		}
		resp := r.running.response()
		r.mu.Unlock()
		return nil, errs.New(errs.KindBusy, "action "+resp.ID+" is already running")
	}

	ctx, cancel := context.WithCancel(r.baseCtx)
	exec := &execution{
		id:        uuid.NewString(),
		req:       req,
		cancel:    cancel,
		state:     model.StateNew,
		createdAt: time.Now(),
	}
	r.execs[exec.id] = exec
	r.running = exec
	resp := exec.response()
	r.mu.Unlock()

	r.log.Info("action accepted", "id", exec.id, "kind", req.Kind, "correlationID", req.CorrelationID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.run(ctx, exec, handler)
	}()

	return resp, nil
}

// Status returns the snapshot of a known action.
func (r *Runner) Status(id string) (*model.ActionResponse, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.execs[id]
	if !ok {
		return nil, false
	}
	return exec.response(), true
}

// Cancel interrupts a running action between cycles. An apply already in
// flight is left to finish; terminal actions are returned unchanged.
func (r *Runner) Cancel(id string) (*model.ActionResponse, bool) {
	r.mu.RLock()
	exec, ok := r.execs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	exec.cancel()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return exec.response(), true
}

// Wait blocks until all spawned executions have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, exec *execution, handler Handler) {
	r.mu.Lock()
	exec.state = model.StateRunning
	r.mu.Unlock()

	var noOp bool
	var appliedVersion int
	attempts := 0

	err := retry.Do(
		func() error {
			attempts++
			n, v, cErr := r.cycle(ctx, handler)
			if cErr != nil {
				return cErr
			}
			noOp, appliedVersion = n, v
			return nil
		},
		retry.RetryIf(errs.IsTransient),
		retry.Attempts(r.opts.Attempts),
		retry.Delay(r.opts.BaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.log.Warning("retrying action cycle", "id", exec.id, "attempt", n+1, "reason", errs.KindOf(err))
		}),
	)

	if err != nil {
		if ctx.Err() != nil && !errs.IsKind(err, errs.KindCancelled) {
			err = errs.Wrap(errs.KindCancelled, err, "action cancelled")
		}
		if errs.IsKind(err, errs.KindConflict) {
			err = errs.Wrap(errs.KindConflictExhausted, err, "conflict retries exhausted")
		}
	}

	r.mu.Lock()
	exec.attempts = attempts
	exec.finishedAt = time.Now()
	if err != nil {
		exec.state = model.StateFailed
		exec.actionErr = &model.ActionError{
			Kind:    string(errs.KindOf(err)),
			Message: errs.MessageOf(err),
		}
	} else {
		exec.state = model.StateDone
		exec.noOp = noOp
		exec.appliedVersion = appliedVersion
	}
	r.running = nil
	r.mu.Unlock()

	outcome := string(exec.state)
	if err != nil {
		outcome = string(errs.KindOf(err))
		r.log.Error(err, "action failed", "id", exec.id, "kind", exec.req.Kind, "attempts", attempts)
	} else {
		r.log.Info("action finished", "id", exec.id, "kind", exec.req.Kind, "noOp", noOp, "attempts", attempts)
	}
	metrics.CountAction(exec.req.Kind, outcome)
}

// cycle runs one read-plan-apply pass. The apply step is shielded from the
// action's cancellation: an interrupted reconfiguration would leave the
// set in an unknown state, so apply always runs to completion or to its
// own timeout.
func (r *Runner) cycle(ctx context.Context, handler Handler) (noOp bool, version int, err error) {
	if cErr := ctx.Err(); cErr != nil {
		return false, 0, errs.Wrap(errs.KindCancelled, cErr, "action cancelled")
	}

	current, plan, err := r.readAndPlan(ctx, handler)
	if err != nil {
		return false, 0, err
	}

	if plan.Op == topology.PlanNoOp {
		v := 0
		if current.Config != nil {
			v = current.Config.Version
		}
		return true, v, nil
	}

	applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ApplyTimeout)
	defer cancel()

	v, err := r.applier.Apply(applyCtx, plan)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errs.IsTransient(err) {
			// An expired apply may or may not have landed. Re-reading on the
			// next cycle is the only safe way to find out.
			return false, 0, errs.Wrap(errs.KindUnreachable, err, "apply timed out")
		}
		return false, 0, err
	}
	return false, v, nil
}

// readAndPlan runs the observational steps of the cycle under their own
// deadline, shorter than the overall action lifetime.
func (r *Runner) readAndPlan(ctx context.Context, handler Handler) (*topology.Current, *topology.Plan, error) {
	readCtx, cancel := context.WithTimeout(ctx, r.opts.ReadTimeout)
	defer cancel()

	current, err := r.reader.Read(readCtx)
	if err != nil {
		return nil, nil, readStepErr(ctx, err)
	}
	plan, err := handler.Plan(readCtx, current)
	if err != nil {
		return nil, nil, readStepErr(ctx, err)
	}
	return current, plan, nil
}

// readStepErr surfaces an expired read deadline as unreachable so it joins
// the transient retry budget; action cancellation passes through untouched.
func readStepErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return errs.Wrap(errs.KindUnreachable, err, "read step timed out")
	}
	return err
}
