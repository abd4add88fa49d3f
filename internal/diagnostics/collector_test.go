package diagnostics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lwi/internal/types"
)

type scriptedSource struct {
	mu    sync.Mutex
	calls int
	runs  []func() ([]types.Diagnostic, error)
}

func (s *scriptedSource) Collect(ctx context.Context) ([]types.Diagnostic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.runs) {
		i = len(s.runs) - 1
	}
	return s.runs[i]()
}

type recordingSink struct {
	mu      sync.Mutex
	records [][]types.Diagnostic
	errs    []error
}

func (s *recordingSink) SetDiagnostics(records []types.Diagnostic, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records)
	s.errs = append(s.errs, err)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

func TestCollectorRunOncePublishes(t *testing.T) {
	warning := types.Diagnostic{Severity: types.SeverityWarning, Message: "unused"}
	source := &scriptedSource{runs: []func() ([]types.Diagnostic, error){
		func() ([]types.Diagnostic, error) { return []types.Diagnostic{warning}, nil },
		func() ([]types.Diagnostic, error) { return nil, errors.New("cargo missing") },
	}}
	sink := &recordingSink{}
	c := NewCollector(source, sink, time.Minute)

	c.RunOnce(context.Background())
	c.RunOnce(context.Background())

	require.Equal(t, 2, sink.count())
	assert.Equal(t, []types.Diagnostic{warning}, sink.records[0])
	assert.NoError(t, sink.errs[0])
	assert.Nil(t, sink.records[1])
	assert.EqualError(t, sink.errs[1], "cargo missing")
}

func TestCollectorRunsOnTicker(t *testing.T) {
	source := &scriptedSource{runs: []func() ([]types.Diagnostic, error){
		func() ([]types.Diagnostic, error) { return []types.Diagnostic{}, nil },
	}}
	sink := &recordingSink{}
	c := NewCollector(source, sink, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	require.Eventually(t, func() bool { return sink.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestCollectorSkipsPublishAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &scriptedSource{runs: []func() ([]types.Diagnostic, error){
		func() ([]types.Diagnostic, error) {
			cancel()
			return nil, context.Canceled
		},
	}}
	sink := &recordingSink{}

	NewCollector(source, sink, time.Minute).RunOnce(ctx)
	assert.Zero(t, sink.count())
}
