package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/declinewatch/declinewatch-go/internal/models"
)

// The scheduler's dependencies must stay satisfiable by the real services.
var (
	_ portfolioAuditor = (*AuditService)(nil)
	_ findingsNotifier = (*NotifierService)(nil)
)

type stubAuditor struct {
	mu        sync.Mutex
	runs      int
	summaries []models.FiscalSummary
	err       error
	ran       chan struct{}
}

func newStubAuditor(summaries []models.FiscalSummary, err error) *stubAuditor {
	return &stubAuditor{summaries: summaries, err: err, ran: make(chan struct{}, 8)}
}

func (a *stubAuditor) AuditAll(context.Context) ([]models.FiscalSummary, error) {
	a.mu.Lock()
	a.runs++
	a.mu.Unlock()
	select {
	case a.ran <- struct{}{}:
	default:
	}
	return a.summaries, a.err
}

func (a *stubAuditor) runCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

type stubNotifier struct {
	mu    sync.Mutex
	calls int
	last  []models.FiscalSummary
	err   error
}

func (n *stubNotifier) NotifyAuditFindings(_ context.Context, summaries []models.FiscalSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.last = summaries
	return n.err
}

func (n *stubNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func waitForRun(t *testing.T, a *stubAuditor) {
	t.Helper()
	select {
	case <-a.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scheduled audit run")
	}
}

func flaggedSummaries() []models.FiscalSummary {
	return []models.FiscalSummary{
		{
			FieldName: "BRENT ALPHA",
			Flags:     []models.GovernanceFlag{{FlagID: 1, Severity: models.SeverityHigh}},
		},
		{FieldName: "FORTIES BRAVO"},
	}
}

func TestNewSchedulerService_Defaults(t *testing.T) {
	s := NewSchedulerService(newStubAuditor(nil, nil), nil, 0, nil)

	assert.Equal(t, 24*time.Hour, s.interval)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.ctx)
	assert.NotNil(t, s.cancel)
}

func TestSchedulerService_StartRunsImmediately(t *testing.T) {
	auditor := newStubAuditor(flaggedSummaries(), nil)
	notifier := &stubNotifier{}
	s := NewSchedulerService(auditor, notifier, time.Hour, logrus.New())

	s.Start()
	waitForRun(t, auditor)
	s.Stop()

	assert.GreaterOrEqual(t, auditor.runCount(), 1)
	assert.Equal(t, auditor.runCount(), notifier.callCount(),
		"every completed run must hand its findings to the notifier")
}

func TestSchedulerService_StopHaltsTicker(t *testing.T) {
	auditor := newStubAuditor(nil, nil)
	s := NewSchedulerService(auditor, nil, 20*time.Millisecond, logrus.New())

	s.Start()
	waitForRun(t, auditor)
	waitForRun(t, auditor)
	s.Stop()

	runs := auditor.runCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, runs, auditor.runCount(), "runs must stop after Stop returns")
}

func TestSchedulerService_StartStopDoesNotPanic(t *testing.T) {
	s := NewSchedulerService(newStubAuditor(nil, nil), nil, time.Hour, logrus.New())

	assert.NotPanics(t, func() {
		s.Start()
		s.Stop()
	})
}

func TestSchedulerService_RunOnce(t *testing.T) {
	auditor := newStubAuditor(flaggedSummaries(), nil)
	notifier := &stubNotifier{}
	s := NewSchedulerService(auditor, notifier, time.Hour, logrus.New())

	summaries, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, summaries, 2)
	assert.Equal(t, "BRENT ALPHA", summaries[0].FieldName)
	assert.Equal(t, 1, auditor.runCount())
	assert.Equal(t, 1, notifier.callCount())
	assert.Len(t, notifier.last, 2)
}

func TestSchedulerService_RunOnce_AuditError(t *testing.T) {
	auditErr := errors.New("list fields: connection refused")
	notifier := &stubNotifier{}
	s := NewSchedulerService(newStubAuditor(nil, auditErr), notifier, time.Hour, logrus.New())

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, auditErr)
	assert.Equal(t, 0, notifier.callCount(), "a failed audit has no findings to notify")
}

func TestSchedulerService_RunOnce_NotifierFailureIsNotFatal(t *testing.T) {
	auditor := newStubAuditor(flaggedSummaries(), nil)
	notifier := &stubNotifier{err: errors.New("telegram unreachable")}
	s := NewSchedulerService(auditor, notifier, time.Hour, logrus.New())

	summaries, err := s.RunOnce(context.Background())
	require.NoError(t, err, "notification failure must not fail the audit run")
	assert.Len(t, summaries, 2)
}

func TestSchedulerService_RunOnce_NilNotifier(t *testing.T) {
	s := NewSchedulerService(newStubAuditor(flaggedSummaries(), nil), nil, time.Hour, logrus.New())

	summaries, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}
