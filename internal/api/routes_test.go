package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembl-io/handover/internal/control"
	"github.com/ensembl-io/handover/internal/handoverspec"
	"github.com/ensembl-io/handover/internal/ingress"
	"github.com/ensembl-io/handover/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeKeyStore implements storage.APIKeyStore with a configurable
// HealthCheck outcome; every other method is unused by handleReady.
type fakeKeyStore struct {
	healthErr error
}

func (f *fakeKeyStore) FindByKey(context.Context, string) (*storage.APIKey, bool) { return nil, false }
func (f *fakeKeyStore) Add(context.Context, *storage.APIKey) error                { return nil }
func (f *fakeKeyStore) Update(context.Context, *storage.APIKey) error              { return nil }
func (f *fakeKeyStore) Delete(context.Context, string) error                      { return nil }

func (f *fakeKeyStore) ListByPlugin(context.Context, string) ([]*storage.APIKey, error) {
	return nil, nil
}

func (f *fakeKeyStore) HealthCheck(context.Context) error { return f.healthErr }

var _ storage.APIKeyStore = (*fakeKeyStore)(nil)

func TestHandlePing(t *testing.T) {
	s := &Server{logger: discardLogger()}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()

	s.handlePing(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestHandleReady_NoStoreConfigured(t *testing.T) {
	s := &Server{logger: discardLogger()}

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()

	s.handleReady(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestHandleReady_StoreHealthy(t *testing.T) {
	s := &Server{logger: discardLogger(), apiKeyStore: &fakeKeyStore{}}

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()

	s.handleReady(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestHandleReady_StoreUnhealthy(t *testing.T) {
	s := &Server{logger: discardLogger(), apiKeyStore: &fakeKeyStore{healthErr: errors.New("db down")}}

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()

	s.handleReady(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "storage unavailable", rec.Body.String())
}

func TestHandleHealth(t *testing.T) {
	s := &Server{logger: discardLogger(), startTime: time.Now().Add(-time.Minute)}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.handleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.NotEmpty(t, health.Uptime)
}

func TestHandleNotFound(t *testing.T) {
	s := &Server{logger: discardLogger()}

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	s.handleNotFound(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestDecodeSubmissionRequest_JSON(t *testing.T) {
	body := `{"src_uri":"mysql://host/db","database":"homo_sapiens_core_110_38","contact":"a@b.org","comment":"ready"}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	decoded, problem := decodeSubmissionRequest(req)

	require.Nil(t, problem)
	assert.Equal(t, "mysql://host/db", decoded.SrcURI)
	assert.Equal(t, "homo_sapiens_core_110_38", decoded.Database)
	assert.Equal(t, "a@b.org", decoded.Contact)
}

func TestDecodeSubmissionRequest_Form(t *testing.T) {
	form := url.Values{
		"src_uri":  {"mysql://host/db"},
		"database": {"homo_sapiens_core_110_38"},
		"contact":  {"a@b.org"},
	}
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	decoded, problem := decodeSubmissionRequest(req)

	require.Nil(t, problem)
	assert.Equal(t, "mysql://host/db", decoded.SrcURI)
	assert.Equal(t, "a@b.org", decoded.Contact)
}

func TestDecodeSubmissionRequest_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader("{not-json"))
	req.Header.Set("Content-Type", "application/json")

	_, problem := decodeSubmissionRequest(req)

	require.NotNil(t, problem)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
}

func TestWriteSubmissionError(t *testing.T) {
	s := &Server{logger: discardLogger()}

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"already in flight", &ingress.ErrAlreadyInFlight{Token: "tok-1"}, http.StatusConflict},
		{"source not found", ingress.ErrSourceNotFound, http.StatusBadRequest},
		{"missing src uri", handoverspec.ErrMissingSrcURI, http.StatusBadRequest},
		{"missing contact", handoverspec.ErrMissingContact, http.StatusBadRequest},
		{"missing database", handoverspec.ErrMissingDatabase, http.StatusBadRequest},
		{"invalid db type", handoverspec.ErrInvalidDBType, http.StatusBadRequest},
		{"unexpected error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
			rec := httptest.NewRecorder()

			s.writeSubmissionError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestWriteControlError(t *testing.T) {
	s := &Server{logger: discardLogger()}

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown token", control.ErrUnknownToken, http.StatusNotFound},
		{"invalid restart stage", control.ErrInvalidRestartStage, http.StatusBadRequest},
		{"unexpected error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs/restart", nil)
			rec := httptest.NewRecorder()

			s.writeControlError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestStatusEntryFromReport(t *testing.T) {
	now := time.Now()
	report := handoverspec.Report{
		ReportType: handoverspec.ReportInfo,
		ReportTime: now,
		Message:    "copy complete",
		Params: handoverspec.HandoverSpec{
			HandoverToken:    "tok-1",
			Contact:          "a@b.org",
			Comment:          "ready",
			SrcURI:           "mysql://host/db",
			TgtURI:           "mysql://staging/db",
			ProgressComplete: 2,
			ProgressTotal:    3,
		},
	}

	entry := statusEntryFromReport(report)

	assert.Equal(t, "tok-1", entry.ID)
	assert.Equal(t, "tok-1", entry.HandoverToken)
	assert.Equal(t, "copy complete", entry.Message)
	assert.Equal(t, 2, entry.ProgressComplete)
	assert.Equal(t, 3, entry.ProgressTotal)
	assert.Equal(t, now, entry.ReportTime)
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)

	writeJSON(rec, req, discardLogger(), http.StatusCreated, SubmissionResponse{HandoverToken: "tok-1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp SubmissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tok-1", resp.HandoverToken)
}
