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

// Package control exposes the agent's HTTP API: action submission and
// polling for the orchestrator, the node report, health and metrics.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mongo-replicaset-agent/pkg/errs"
	"mongo-replicaset-agent/pkg/logger"
	"mongo-replicaset-agent/pkg/model"
	"mongo-replicaset-agent/pkg/nodeinfo"
	"mongo-replicaset-agent/pkg/service"
)

const (
	defaultMaxBytesBody = 1 * 1024 * 1024

	shutdownGrace = 10 * time.Second
)

type Server struct {
	router       *mux.Router
	runner       *service.Runner
	reporter     *nodeinfo.Reporter
	version      string
	maxBytesBody int64
	log          *logger.Logger
}

func NewServer(runner *service.Runner, reporter *nodeinfo.Reporter, version string, log *logger.Logger) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		runner:       runner,
		reporter:     reporter,
		version:      version,
		maxBytesBody: defaultMaxBytesBody,
		log:          log.WithName("control"),
	}
	s.routes()
	return s
}

// ServeHTTP wraps the router to cap request bodies.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytesBody)
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/v1/actions", s.submitAction()).Methods("POST")
	s.router.HandleFunc("/api/v1/actions/{action_id}", s.getAction()).Methods("GET")
	s.router.HandleFunc("/api/v1/actions/{action_id}/cancel", s.cancelAction()).Methods("POST")
	s.router.HandleFunc("/api/v1/node", s.getNode()).Methods("GET")
	s.router.HandleFunc("/api/v1/healthz", s.healthz()).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Run serves the API until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:           addr,
		Handler:        s,
		MaxHeaderBytes: 4 * 1024,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) submitAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		var req model.ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorf(http.StatusBadRequest, remoteAddr, w, errs.KindInvalid, "malformed action request: %v", err)
			return
		}
		if req.Kind == "" {
			s.errorf(http.StatusBadRequest, remoteAddr, w, errs.KindInvalid, "action kind is required")
			return
		}

		resp, err := s.runner.Submit(req)
		if err != nil {
			kind := errs.KindOf(err)
			s.errorf(statusForKind(kind), remoteAddr, w, kind, "%s", errs.MessageOf(err))
			return
		}

		s.log.Debug("action submitted", "remote_addr", remoteAddr, "id", resp.ID, "kind", resp.Kind)
		s.replyJSON(w, http.StatusAccepted, resp)
	}
}

func (s *Server) getAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["action_id"]
		resp, ok := s.runner.Status(id)
		if !ok {
			s.errorf(http.StatusNotFound, r.RemoteAddr, w, errs.KindInvalid, "action not found: %s", id)
			return
		}
		s.replyJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) cancelAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["action_id"]
		resp, ok := s.runner.Cancel(id)
		if !ok {
			s.errorf(http.StatusNotFound, r.RemoteAddr, w, errs.KindInvalid, "action not found: %s", id)
			return
		}
		s.log.Info("action cancel requested", "remote_addr", r.RemoteAddr, "id", id)
		s.replyJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) getNode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := s.reporter.Report(r.Context())
		s.replyJSON(w, http.StatusOK, report)
	}
}

func (s *Server) healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if _, err := fmt.Fprintf(w, "ok ('%s')\n", s.version); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

// statusForKind maps classified submit errors to HTTP statuses. Failures
// of running actions are not mapped here; they surface through the action
// state instead.
func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindInvalid:
		return http.StatusBadRequest
	case errs.KindUnsupported:
		return http.StatusUnprocessableEntity
	case errs.KindBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorReply struct {
	Error model.ActionError `json:"error"`
}

func (s *Server) replyJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		s.log.Error(err, "writing response")
	}
}

func (s *Server) errorf(code int, remoteAddr string, w http.ResponseWriter, kind errs.Kind, format string, a ...interface{}) {
	msg := fmt.Sprintf(format, a...)
	s.log.Warning("request refused", "remote_addr", remoteAddr, "code", code, "kind", kind, "error", msg)
	s.replyJSON(w, code, errorReply{Error: model.ActionError{Kind: string(kind), Message: msg}})
}
