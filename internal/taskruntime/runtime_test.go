package taskruntime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembl-io/handover/internal/handoverspec"
)

// fakeTask lets tests script a Task's disposition without a real
// downstream dependency.
type fakeTask struct {
	name   string
	signal Signal
}

func (f *fakeTask) Name() string { return f.name }

func (f *fakeTask) Run(_ context.Context, spec handoverspec.HandoverSpec) (handoverspec.HandoverSpec, Signal) {
	return spec, f.signal
}

func TestStageResolver_UnknownStageIsError(t *testing.T) {
	resolve := StageResolver(func(string) (Task, bool) { return nil, false })

	_, ok := resolve("nonexistent")
	assert.False(t, ok)
}

func TestFakeTask_Fail(t *testing.T) {
	cause := errors.New("downstream error")
	task := &fakeTask{name: "datacheck", signal: Fail(cause)}

	_, signal := task.Run(t.Context(), handoverspec.HandoverSpec{})

	require.Equal(t, SignalFail, signal.Kind)
	assert.Equal(t, cause, signal.Err)
}
