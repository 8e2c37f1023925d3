package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembl-io/handover/internal/downstream"
	"github.com/ensembl-io/handover/internal/handoverspec"
	"github.com/ensembl-io/handover/internal/notify"
	"github.com/ensembl-io/handover/internal/taskruntime"
)

// recordingJournal captures every appended report for assertions, without
// needing a real database.
type recordingJournal struct {
	reports []handoverspec.Report
}

func (j *recordingJournal) Append(_ context.Context, report handoverspec.Report) error {
	j.reports = append(j.reports, report)

	return nil
}

// recordingNotifier captures every send for assertions.
type recordingNotifier struct {
	sent []string
}

func (n *recordingNotifier) Notify(to, subject, _ string) error {
	n.sent = append(n.sent, to+":"+subject)

	return nil
}

func TestDataCheckStage_PassedAdvancesProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"passed"}`))
	}))
	defer server.Close()

	client := downstream.NewDataCheckClient(server.URL)
	j := &recordingJournal{}
	stage := NewDataCheckStage(client, j, nil)

	spec := handoverspec.HandoverSpec{HandoverToken: "tok", DCJobID: "job-1"}
	updated, signal := stage.Run(t.Context(), spec)

	require.Equal(t, taskruntime.SignalContinue, signal.Kind)
	assert.Equal(t, 1, updated.ProgressComplete)
	assert.Empty(t, updated.JobProgress)
}

func TestDataCheckStage_NonTerminalRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"running","progress":"42%"}`))
	}))
	defer server.Close()

	client := downstream.NewDataCheckClient(server.URL)
	stage := NewDataCheckStage(client, nil, nil)

	updated, signal := stage.Run(t.Context(), handoverspec.HandoverSpec{DCJobID: "job-1"})

	require.Equal(t, taskruntime.SignalRetry, signal.Kind)
	assert.Equal(t, "42%", updated.JobProgress)
}

func TestDataCheckStage_FailedEmailsAndTerminates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"failed"}`))
	}))
	defer server.Close()

	client := downstream.NewDataCheckClient(server.URL)
	j := &recordingJournal{}
	n := &recordingNotifier{}
	stage := NewDataCheckStage(client, j, n)

	spec := handoverspec.HandoverSpec{Contact: "a@x.test", Database: "homo_sapiens_core_110_38", DCJobID: "job-1"}
	_, signal := stage.Run(t.Context(), spec)

	require.Equal(t, taskruntime.SignalFail, signal.Kind)
	require.Len(t, j.reports, 1)
	assert.Equal(t, handoverspec.ReportError, j.reports[0].ReportType)
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "a@x.test")
}

func TestCopyStage_SubmitsOnFirstEntry(t *testing.T) {
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_id":"copy-1"}`))
	}))
	defer server.Close()

	client := downstream.NewDbCopyClient(server.URL)
	stage := NewCopyStage(client, "handover_op", nil, nil)

	spec := handoverspec.HandoverSpec{
		SrcURI: "mysql://u@src-host:3306/homo_sapiens_core_110_38",
		TgtURI: "mysql://u@staging-host:3306/homo_sapiens_core_110_38",
	}
	updated, signal := stage.Run(t.Context(), spec)

	require.Equal(t, taskruntime.SignalRetry, signal.Kind)
	assert.Equal(t, "copy-1", updated.CopyJobID)
	assert.Equal(t, "/submit", gotPath)
}

func TestCopyStage_CompleteGRCh37EndsAtThree(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"Complete"}`))
	}))
	defer server.Close()

	client := downstream.NewDbCopyClient(server.URL)
	stage := NewCopyStage(client, "handover_op", nil, nil)

	spec := handoverspec.HandoverSpec{CopyJobID: "copy-1", GRCh37: true}
	updated, signal := stage.Run(t.Context(), spec)

	require.Equal(t, taskruntime.SignalContinue, signal.Kind)
	assert.Equal(t, 3, updated.ProgressComplete)
}

func TestCopyStage_CompleteNonGRCh37AdvancesToTwo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"Complete"}`))
	}))
	defer server.Close()

	client := downstream.NewDbCopyClient(server.URL)
	stage := NewCopyStage(client, "handover_op", nil, nil)

	updated, signal := stage.Run(t.Context(), handoverspec.HandoverSpec{CopyJobID: "copy-1"})

	require.Equal(t, taskruntime.SignalContinue, signal.Kind)
	assert.Equal(t, 2, updated.ProgressComplete)
}

func TestDispatchCopyStage_CompleteEndsAtFour(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"Complete"}`))
	}))
	defer server.Close()

	client := downstream.NewDbCopyClient(server.URL)
	stage := NewDispatchCopyStage(client, "handover_op", nil, nil)

	assert.Equal(t, StageDispatch, stage.Name())

	updated, signal := stage.Run(t.Context(), handoverspec.HandoverSpec{DispatchJobID: "dispatch-1"})

	require.Equal(t, taskruntime.SignalContinue, signal.Kind)
	assert.Equal(t, 4, updated.ProgressComplete)
}

func TestParseDBURI(t *testing.T) {
	u, err := parseDBURI("mysql://handover@staging-host:3306/homo_sapiens_core_110_38")
	require.NoError(t, err)
	assert.Equal(t, "handover", u.User)
	assert.Equal(t, "staging-host:3306", u.HostPort)
	assert.Equal(t, "homo_sapiens_core_110_38", u.Database)
}

func TestBuildURI(t *testing.T) {
	assert.Equal(t, "mysql://d/db_name", buildURI("mysql://d", "db_name"))
	assert.Equal(t, "mysql://d/db_name", buildURI("mysql://d/", "db_name"))
}

func TestNoopNotifier(t *testing.T) {
	require.NoError(t, notify.NoopNotifier{}.Notify("a@x", "s", "b"))
}
