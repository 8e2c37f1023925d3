// Package api provides the HTTP surface for the handover orchestrator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ensembl-io/handover/internal/api/middleware"
	"github.com/ensembl-io/handover/internal/control"
	"github.com/ensembl-io/handover/internal/handoverspec"
	"github.com/ensembl-io/handover/internal/ingress"
)

const (
	healthCheckTimeout = 2 * time.Second
	expectedURLParts   = 2
)

type (
	// Route represents an HTTP route configuration with a path and handler.
	// Used for declarative route registration with middleware bypass support.
	Route struct {
		Path    string           // The URL path for this route (e.g., "/ping", "/jobs")
		Handler http.HandlerFunc // The HTTP handler function for this route
	}
)

// setupRoutes sets up all HTTP routes for the API server.
//
// Submission and Status routes are passed to registerPublicRoutes (they are
// the plugin-facing surface the pipeline itself calls and carry no operator
// credential); Control routes (stop/restart/delete) are left off the
// public-endpoint list so AuthenticatePlugin gates them against the
// operator APIKeyStore. The bypass is an exact match on the request path,
// so only fixed paths (/ping, /ready, /health, /jobs, /) are public: a
// GET /jobs/{token} request carries a concrete token in its path, does not
// match, and is gated like the Control routes when an APIKeyStore is set.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},
		Route{"GET /ready", s.handleReady},
		Route{"GET /health", s.handleHealth},
		Route{"POST /jobs", s.handleSubmission},
		Route{"GET /jobs/{token}", s.handleStatusByToken},
		Route{"GET /jobs", s.handleStatusByRelease},
		Route{"/", s.handleNotFound},
	)

	// Control API - gated by AuthenticatePlugin against the operator
	// APIKeyStore (not registered public).
	mux.HandleFunc("DELETE /jobs/{token}", s.handleDelete)
	mux.HandleFunc("GET /jobs/stop/{token}", s.handleStop)
	mux.HandleFunc("GET /jobs/restart", s.handleRestart)
}

// registerPublicRoutes registers HTTP routes that bypass authentication.
// This is a convenience method that:
//  1. Registers the route handler with the HTTP mux
//  2. Automatically registers the path as a public endpoint (bypasses auth middleware)
//
// Security Warning: never register Control-API routes as public.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	validHTTPMethods := map[string]bool{
		"GET":    true,
		"POST":   true,
		"PUT":    true,
		"PATCH":  true,
		"DELETE": true,
	}

	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		path := route.Path

		parts := strings.Fields(path)
		if len(parts) == expectedURLParts && validHTTPMethods[parts[0]] {
			path = strings.TrimSpace(parts[1])
		}

		if path == "" {
			s.logger.Warn("Malformed route path detected, ignoring route", "path", path)

			continue
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("pong")); err != nil {
		s.logger.Error("Failed to write ping response", "correlation_id", correlationID, "error", err.Error())
	}
}

// handleReady responds to Kubernetes readiness probes with storage backend
// health checks. Delegates to the APIKeyStore's HealthCheck method.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if s.apiKeyStore == nil { // pragma: allowlist secret
		s.logger.Warn("API key store not configured - readiness check disabled", "correlation_id", correlationID)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.apiKeyStore.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed", "correlation_id", correlationID, "error", err.Error())

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unavailable"))

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleHealth returns detailed health status information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: "handover",
		Version:     "v1.0.0",
		Uptime:      uptime,
	}

	data, err := json.Marshal(health)
	if err != nil {
		s.logger.Error("Failed to encode health response", "correlation_id", correlationID, "error", err.Error())
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode health response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// handleSubmission handles the Submission API (spec.md §6):
// POST /jobs {src_uri, database, contact, comment, [source]} -> {handover_token}.
func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	req, problem := decodeSubmissionRequest(r)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	token, err := s.ingress.Submit(r.Context(), ingress.Request{
		SrcURI:   req.SrcURI,
		Database: req.Database,
		Contact:  req.Contact,
		Comment:  req.Comment,
		Source:   req.Source,
	})
	if err != nil {
		s.writeSubmissionError(w, r, err)

		return
	}

	writeJSON(w, r, s.logger, http.StatusCreated, SubmissionResponse{HandoverToken: token})
}

// decodeSubmissionRequest reads a SubmissionRequest from either a JSON body
// or a form-encoded body (spec.md §6 accepts both, mirroring the original
// Flask form submission path).
func decodeSubmissionRequest(r *http.Request) (SubmissionRequest, *ProblemDetail) {
	var req SubmissionRequest

	contentType := r.Header.Get("Content-Type")

	if strings.Contains(contentType, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, BadRequest("request body must be valid JSON")
		}

		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, BadRequest("unable to parse request body")
	}

	req.SrcURI = r.FormValue("src_uri")
	req.Database = r.FormValue("database")
	req.Contact = r.FormValue("contact")
	req.Comment = r.FormValue("comment")
	req.Source = r.FormValue("source")

	return req, nil
}

// writeSubmissionError maps ingress errors to RFC 7807 problem responses.
func (s *Server) writeSubmissionError(w http.ResponseWriter, r *http.Request, err error) {
	var alreadyInFlight *ingress.ErrAlreadyInFlight

	switch {
	case errors.As(err, &alreadyInFlight):
		WriteErrorResponse(w, r, s.logger, Conflict(err.Error()))
	case errors.Is(err, ingress.ErrSourceNotFound),
		errors.Is(err, handoverspec.ErrMissingSrcURI),
		errors.Is(err, handoverspec.ErrMissingContact),
		errors.Is(err, handoverspec.ErrMissingDatabase),
		errors.Is(err, handoverspec.ErrInvalidDBType):
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
	default:
		s.logger.Error("submission failed", "error", err.Error())
		WriteErrorResponse(w, r, s.logger, InternalServerError("submission could not be processed"))
	}
}

// handleStatusByToken handles the Status API (spec.md §6):
// GET /jobs/{token} -> array with at most one report, the latest known for
// that handover_token.
func (s *Server) handleStatusByToken(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	report, found, err := s.journal.LatestByToken(r.Context(), token)
	if err != nil {
		s.logger.Error("status lookup failed", "error", err.Error(), "token", token)
		WriteErrorResponse(w, r, s.logger, InternalServerError("status lookup failed"))

		return
	}

	if !found {
		writeJSON(w, r, s.logger, http.StatusOK, []StatusEntry{})

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, []StatusEntry{statusEntryFromReport(report)})
}

// handleStatusByRelease handles the Status API's release aggregate view
// (spec.md §6): GET /jobs?release=<R> -> one entry per database matching
// that release, each the latest report for its token.
func (s *Server) handleStatusByRelease(w http.ResponseWriter, r *http.Request) {
	releaseParam := r.URL.Query().Get("release")
	if releaseParam == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("release query parameter is required"))

		return
	}

	release, err := strconv.Atoi(releaseParam)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("release must be an integer"))

		return
	}

	buckets, err := s.journal.AggregateByRelease(r.Context(), release)
	if err != nil {
		s.logger.Error("release aggregate lookup failed", "error", err.Error(), "release", release)
		WriteErrorResponse(w, r, s.logger, InternalServerError("status lookup failed"))

		return
	}

	entries := make([]StatusEntry, 0, len(buckets))
	for _, bucket := range buckets {
		entries = append(entries, statusEntryFromReport(bucket.Latest))
	}

	writeJSON(w, r, s.logger, http.StatusOK, entries)
}

// handleDelete handles the Control API's purge-and-stop route (spec.md §6):
// DELETE /jobs/{token}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	if err := s.control.Stop(r.Context(), token); err != nil {
		s.writeControlError(w, r, err)

		return
	}

	if err := s.journal.DeleteByToken(r.Context(), token); err != nil {
		s.logger.Error("delete failed", "error", err.Error(), "token", token)
		WriteErrorResponse(w, r, s.logger, InternalServerError("delete could not be completed"))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleStop handles the Control API's stop-only route (spec.md §6):
// GET /jobs/stop/{token}.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	if err := s.control.Stop(r.Context(), token); err != nil {
		s.writeControlError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRestart handles the Control API's restart route (spec.md §6):
// GET /jobs/restart?handover_token=<token>&task_name=<stage>.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("handover_token")
	stage := r.URL.Query().Get("task_name")

	if token == "" || stage == "" {
		WriteErrorResponse(w, r, s.logger, BadRequest("handover_token and task_name query parameters are required"))

		return
	}

	chainID, err := s.control.Restart(r.Context(), token, stage)
	if err != nil {
		s.writeControlError(w, r, err)

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, RestartResponse{HandoverToken: chainID})
}

// writeControlError maps control errors to RFC 7807 problem responses.
func (s *Server) writeControlError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, control.ErrUnknownToken):
		WriteErrorResponse(w, r, s.logger, NotFound(err.Error()))
	case errors.Is(err, control.ErrInvalidRestartStage):
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
	default:
		s.logger.Error("control operation failed", "error", err.Error())
		WriteErrorResponse(w, r, s.logger, InternalServerError("control operation could not be completed"))
	}
}

// writeJSON marshals v and writes it with the given status code, logging
// (but not re-writing headers on) encode failures.
func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to marshal response", "error", err.Error(), "path", r.URL.Path)
		WriteErrorResponse(w, r, logger, InternalServerError("failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
