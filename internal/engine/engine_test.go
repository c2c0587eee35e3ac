package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Continuum/internal/domain"
	"github.com/shaiso/Continuum/internal/ledger"
	"github.com/shaiso/Continuum/internal/mq"
	"github.com/shaiso/Continuum/internal/registry"
	"github.com/shaiso/Continuum/internal/repo"
)

// --- In-memory fakes ---

type memRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.WorkflowRun
}

func newMemRuns() *memRuns {
	return &memRuns{runs: make(map[uuid.UUID]*domain.WorkflowRun)}
}

func (s *memRuns) Create(_ context.Context, run *domain.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *memRuns) GetByID(_ context.Context, id uuid.UUID) (*domain.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *memRuns) Transition(_ context.Context, id uuid.UUID, from, to domain.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.Status != from {
		return repo.ErrInvalidState
	}
	run.Status = to
	run.PendingCallbackID = nil
	if to.IsTerminal() {
		now := time.Now()
		run.FinishedAt = &now
	}
	return nil
}

func (s *memRuns) Suspend(_ context.Context, id, callbackID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.Status != domain.RunStatusRunning {
		return repo.ErrInvalidState
	}
	run.Status = domain.RunStatusSuspended
	run.PendingCallbackID = &callbackID
	return nil
}

func (s *memRuns) MarkFailed(_ context.Context, id uuid.UUID, from domain.RunStatus, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.Status != from {
		return repo.ErrInvalidState
	}
	run.MarkFailed(msg)
	return nil
}

func (s *memRuns) ListRunning(_ context.Context, limit int) ([]domain.WorkflowRun, error) {
	return s.listByStatus(domain.RunStatusRunning, limit), nil
}

func (s *memRuns) ListSuspended(_ context.Context, limit int) ([]domain.WorkflowRun, error) {
	return s.listByStatus(domain.RunStatusSuspended, limit), nil
}

func (s *memRuns) listByStatus(status domain.RunStatus, limit int) []domain.WorkflowRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WorkflowRun
	for _, run := range s.runs {
		if run.Status == status && len(out) < limit {
			out = append(out, *run)
		}
	}
	return out
}

// setStatus rewinds a run's status, simulating a crash mid-transition.
func (s *memRuns) setStatus(id uuid.UUID, status domain.RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id].Status = status
}

type memSteps struct {
	mu      sync.Mutex
	records map[string]*domain.StepRecord
}

func newMemSteps() *memSteps {
	return &memSteps{records: make(map[string]*domain.StepRecord)}
}

func (s *memSteps) key(runID uuid.UUID, stepName string) string {
	return runID.String() + "/" + stepName
}

func (s *memSteps) Insert(_ context.Context, rec *domain.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(rec.RunID, rec.StepName)
	if _, ok := s.records[key]; ok {
		return repo.ErrAlreadyExists
	}
	cp := *rec
	s.records[key] = &cp
	return nil
}

func (s *memSteps) Get(_ context.Context, runID uuid.UUID, stepName string) (*domain.StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[s.key(runID, stepName)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memSteps) ListByRun(_ context.Context, runID uuid.UUID) ([]domain.StepRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StepRecord
	for _, rec := range s.records {
		if rec.RunID == runID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type memCallbacks struct {
	mu        sync.Mutex
	callbacks map[uuid.UUID]*domain.CallbackRegistration
}

func newMemCallbacks() *memCallbacks {
	return &memCallbacks{callbacks: make(map[uuid.UUID]*domain.CallbackRegistration)}
}

func (s *memCallbacks) Create(_ context.Context, cb *domain.CallbackRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cb
	s.callbacks[cb.ID] = &cp
	return nil
}

func (s *memCallbacks) GetByID(_ context.Context, id uuid.UUID) (*domain.CallbackRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.callbacks[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *cb
	return &cp, nil
}

func (s *memCallbacks) MarkResolved(_ context.Context, id uuid.UUID, outcome domain.CallbackOutcome, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.callbacks[id]
	if !ok {
		return repo.ErrNotFound
	}
	if cb.Resolved {
		return repo.ErrInvalidState
	}
	now := time.Now()
	cb.Resolved = true
	cb.Outcome = outcome
	cb.Result = result
	cb.ResolvedAt = &now
	return nil
}

func (s *memCallbacks) ExpireOverdue(_ context.Context, now time.Time, limit int) ([]domain.CallbackRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []domain.CallbackRegistration
	for _, cb := range s.callbacks {
		if len(expired) >= limit {
			break
		}
		if !cb.Resolved && !cb.Deadline.After(now) {
			cb.Resolved = true
			cb.Outcome = domain.OutcomeTimeout
			resolvedAt := now
			cb.ResolvedAt = &resolvedAt
			expired = append(expired, *cb)
		}
	}
	return expired, nil
}

type capturePub struct {
	mu     sync.Mutex
	events []mq.CallbackResolvedPayload
}

func (p *capturePub) PublishCallbackResolved(_ context.Context, payload mq.CallbackResolvedPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload)
	return nil
}

func (p *capturePub) last(t *testing.T) mq.CallbackResolvedPayload {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		t.Fatal("no resolution events published")
	}
	return p.events[len(p.events)-1]
}

// The production collaborators must satisfy the engine's interfaces.
var (
	_ Journal   = (*ledger.Ledger)(nil)
	_ Registrar = (*registry.Registry)(nil)
)

// --- Test harness ---

type harness struct {
	engine   *Engine
	runs     *memRuns
	steps    *memSteps
	registry *registry.Registry
	pub      *capturePub
	clock    *time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	now := time.Now()
	clock := &now

	runs := newMemRuns()
	steps := newMemSteps()
	pub := &capturePub{}
	logger := slog.New(slog.DiscardHandler)

	reg := registry.New(registry.Config{
		Store:     newMemCallbacks(),
		Publisher: pub,
		Logger:    logger,
		Now:       func() time.Time { return *clock },
	})

	eng := New(Config{
		Runs:      runs,
		Journal:   ledger.New(ledger.Config{Store: steps}),
		Registrar: reg,
		Logger:    logger,
	})

	return &harness{engine: eng, runs: runs, steps: steps, registry: reg, pub: pub, clock: clock}
}

// deliver feeds a captured resolution event back into the engine,
// playing the role of the callbacks.resolved consumer.
func (h *harness) deliver(t *testing.T, payload mq.CallbackResolvedPayload) {
	t.Helper()
	if err := h.engine.Resume(context.Background(), payload.RunID, payload.StepName, payload.Outcome, payload.Result); err != nil {
		t.Fatalf("Resume: %v", err)
	}
}

// registrationDefinition builds a three-step definition shaped like the
// customer registration workflow, with counters on every effect.
func registrationDefinition(calls map[string]*int, capturedCallback *uuid.UUID) *Definition {
	count := func(name string) {
		if c, ok := calls[name]; ok {
			*c++
		}
	}

	return &Definition{
		ID: "customer-registration",
		Steps: []Step{
			{
				Name: "create-customer-record",
				Run: func(ctx context.Context, ec *ExecContext) (map[string]any, error) {
					count("create")
					return map[string]any{"customer_id": "01J0TEST"}, nil
				},
			},
			{
				Name: "send-email-verification",
				Wait: &WaitSpec{
					Timeout: 48 * time.Hour,
					OnRegister: func(ctx context.Context, ec *ExecContext, callbackID uuid.UUID) error {
						count("register")
						*capturedCallback = callbackID
						return nil
					},
				},
			},
			{
				Name: "send-welcome-email",
				Run: func(ctx context.Context, ec *ExecContext) (map[string]any, error) {
					count("welcome")
					return map[string]any{"sent": true}, nil
				},
			},
		},
	}
}

func (h *harness) startRun(t *testing.T, def *Definition) *domain.WorkflowRun {
	t.Helper()
	h.engine.RegisterDefinition(def)

	run := domain.NewRun(def.ID, map[string]any{"email": "jane@example.com"})
	if err := h.runs.Create(context.Background(), run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := h.engine.Drive(context.Background(), run.ID); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	return run
}

func (h *harness) runStatus(t *testing.T, id uuid.UUID) domain.RunStatus {
	t.Helper()
	run, err := h.runs.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return run.Status
}

// --- Tests ---

func TestHappyPath(t *testing.T) {
	h := newHarness(t)

	var create, register, welcome int
	var cbID uuid.UUID
	calls := map[string]*int{"create": &create, "register": &register, "welcome": &welcome}

	run := h.startRun(t, registrationDefinition(calls, &cbID))

	// First drive stops at the wait step.
	if got := h.runStatus(t, run.ID); got != domain.RunStatusSuspended {
		t.Fatalf("status after first drive = %s, want SUSPENDED", got)
	}
	if create != 1 || register != 1 || welcome != 0 {
		t.Fatalf("effect counts = create:%d register:%d welcome:%d", create, register, welcome)
	}
	if cbID == uuid.Nil {
		t.Fatal("OnRegister did not receive a callback id")
	}

	// The customer clicks the link: resolve and feed the event back.
	if err := h.registry.Resolve(context.Background(), cbID, map[string]any{"verified": true}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	h.deliver(t, h.pub.last(t))

	if got := h.runStatus(t, run.ID); got != domain.RunStatusCompleted {
		t.Fatalf("status after resume = %s, want COMPLETED", got)
	}
	if create != 1 || register != 1 || welcome != 1 {
		t.Fatalf("effect counts = create:%d register:%d welcome:%d", create, register, welcome)
	}

	// The wait step's record carries the resolution result.
	rec, err := h.steps.Get(context.Background(), run.ID, "send-email-verification")
	if err != nil {
		t.Fatalf("wait step record: %v", err)
	}
	if rec.Result["verified"] != true {
		t.Errorf("wait step result = %v", rec.Result)
	}
}

func TestTimeoutPath(t *testing.T) {
	h := newHarness(t)

	var welcome int
	var cbID uuid.UUID
	calls := map[string]*int{"welcome": &welcome}

	run := h.startRun(t, registrationDefinition(calls, &cbID))

	// Nobody clicks the link for 49 hours.
	*h.clock = h.clock.Add(49 * time.Hour)

	n, err := h.registry.ExpireOverdue(context.Background(), 100)
	if err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d callbacks, want 1", n)
	}
	h.deliver(t, h.pub.last(t))

	if got := h.runStatus(t, run.ID); got != domain.RunStatusTimedOut {
		t.Fatalf("status = %s, want TIMED_OUT", got)
	}
	if welcome != 0 {
		t.Errorf("welcome step ran %d times after timeout, want 0", welcome)
	}

	// A late click is refused and does not revive the run.
	err = h.registry.Resolve(context.Background(), cbID, nil)
	if !errors.Is(err, registry.ErrAlreadyResolved) {
		t.Errorf("late Resolve: err = %v, want ErrAlreadyResolved", err)
	}
	if got := h.runStatus(t, run.ID); got != domain.RunStatusTimedOut {
		t.Errorf("status after late click = %s, want TIMED_OUT", got)
	}
}

func TestReplayAfterCrashSkipsCommittedSteps(t *testing.T) {
	h := newHarness(t)

	var create, register int
	var cbID uuid.UUID
	calls := map[string]*int{"create": &create, "register": &register}

	run := h.startRun(t, registrationDefinition(calls, &cbID))
	firstCallback := cbID

	// Simulate a crash after the registration committed but before the
	// suspension: rewind the status and drive again.
	h.runs.setStatus(run.ID, domain.RunStatusRunning)
	if err := h.engine.Drive(context.Background(), run.ID); err != nil {
		t.Fatalf("re-drive: %v", err)
	}

	if create != 1 {
		t.Errorf("create-customer-record ran %d times, want 1", create)
	}
	if register != 1 {
		t.Errorf("OnRegister ran %d times, want 1", register)
	}
	if got := h.runStatus(t, run.ID); got != domain.RunStatusSuspended {
		t.Errorf("status = %s, want SUSPENDED", got)
	}

	// The run waits for the original callback, not a fresh one.
	stored, err := h.runs.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.PendingCallbackID == nil || *stored.PendingCallbackID != firstCallback {
		t.Errorf("pending callback = %v, want %s", stored.PendingCallbackID, firstCallback)
	}
}

func TestDuplicateResolutionEventIsHarmless(t *testing.T) {
	h := newHarness(t)

	var welcome int
	var cbID uuid.UUID
	calls := map[string]*int{"welcome": &welcome}

	run := h.startRun(t, registrationDefinition(calls, &cbID))

	if err := h.registry.Resolve(context.Background(), cbID, nil); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	event := h.pub.last(t)

	// The broker redelivers the same event three times.
	for i := 0; i < 3; i++ {
		h.deliver(t, event)
	}

	if got := h.runStatus(t, run.ID); got != domain.RunStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got)
	}
	if welcome != 1 {
		t.Errorf("welcome step ran %d times, want 1", welcome)
	}
}

func TestStepFailureFailsRun(t *testing.T) {
	h := newHarness(t)

	def := &Definition{
		ID: "doomed",
		Steps: []Step{
			{
				Name:  "explode",
				Retry: &RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond},
				Run: func(ctx context.Context, ec *ExecContext) (map[string]any, error) {
					return nil, errors.New("downstream unavailable")
				},
			},
		},
	}

	run := h.startRun(t, def)

	stored, err := h.runs.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != domain.RunStatusFailed {
		t.Fatalf("status = %s, want FAILED", stored.Status)
	}
	if !strings.Contains(stored.Error, "downstream unavailable") {
		t.Errorf("error = %q, want cause recorded", stored.Error)
	}
}

func TestStepRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t)

	attempts := 0
	def := &Definition{
		ID: "flaky",
		Steps: []Step{
			{
				Name:  "flaky-step",
				Retry: &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond},
				Run: func(ctx context.Context, ec *ExecContext) (map[string]any, error) {
					attempts++
					if attempts < 3 {
						return nil, errors.New("transient")
					}
					return map[string]any{"ok": true}, nil
				},
			},
		},
	}

	run := h.startRun(t, def)

	if got := h.runStatus(t, run.ID); got != domain.RunStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRecoveryPollPicksUpRunningRuns(t *testing.T) {
	h := newHarness(t)

	var create int
	var cbID uuid.UUID
	calls := map[string]*int{"create": &create}

	def := registrationDefinition(calls, &cbID)
	h.engine.RegisterDefinition(def)

	// A run exists in RUNNING but the run.created event was lost.
	run := domain.NewRun(def.ID, nil)
	if err := h.runs.Create(context.Background(), run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	h.engine.recoverRunning(context.Background())

	if create != 1 {
		t.Errorf("first step ran %d times, want 1", create)
	}
	if got := h.runStatus(t, run.ID); got != domain.RunStatusSuspended {
		t.Errorf("status = %s, want SUSPENDED", got)
	}
}

func TestLostTimeoutEventIsReconciled(t *testing.T) {
	h := newHarness(t)

	var welcome int
	var cbID uuid.UUID
	calls := map[string]*int{"welcome": &welcome}

	run := h.startRun(t, registrationDefinition(calls, &cbID))

	// The sweep commits TIMEOUT but the resolution event never reaches
	// the engine (broker down, publish failed).
	*h.clock = h.clock.Add(49 * time.Hour)
	if _, err := h.registry.ExpireOverdue(context.Background(), 100); err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}

	h.engine.reconcileSuspended(context.Background())

	if got := h.runStatus(t, run.ID); got != domain.RunStatusTimedOut {
		t.Fatalf("status after reconcile = %s, want TIMED_OUT", got)
	}
	if welcome != 0 {
		t.Errorf("welcome step ran %d times after timeout, want 0", welcome)
	}
}

func TestLostSuccessEventIsReconciled(t *testing.T) {
	h := newHarness(t)

	var welcome int
	var cbID uuid.UUID
	calls := map[string]*int{"welcome": &welcome}

	run := h.startRun(t, registrationDefinition(calls, &cbID))

	// The callback resolves but the event is lost in flight.
	if err := h.registry.Resolve(context.Background(), cbID, map[string]any{"verified": true}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	h.engine.reconcileSuspended(context.Background())

	if got := h.runStatus(t, run.ID); got != domain.RunStatusCompleted {
		t.Fatalf("status after reconcile = %s, want COMPLETED", got)
	}
	if welcome != 1 {
		t.Errorf("welcome step ran %d times, want 1", welcome)
	}
}

func TestTimeoutEventBeforeSuspensionCommitted(t *testing.T) {
	h := newHarness(t)

	var cbID uuid.UUID
	run := h.startRun(t, registrationDefinition(map[string]*int{}, &cbID))

	// Crash after the callback registration committed but before the
	// suspension: the run is still RUNNING when the deadline passes.
	h.runs.setStatus(run.ID, domain.RunStatusRunning)
	*h.clock = h.clock.Add(49 * time.Hour)

	if _, err := h.registry.ExpireOverdue(context.Background(), 100); err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}
	h.deliver(t, h.pub.last(t))

	if got := h.runStatus(t, run.ID); got != domain.RunStatusTimedOut {
		t.Fatalf("status = %s, want TIMED_OUT", got)
	}

	// A later re-drive must not revive the run against the dead callback.
	if err := h.engine.Drive(context.Background(), run.ID); err != nil {
		t.Fatalf("re-drive: %v", err)
	}
	if got := h.runStatus(t, run.ID); got != domain.RunStatusTimedOut {
		t.Errorf("status after re-drive = %s, want TIMED_OUT", got)
	}
}

func TestTerminalRunReleasesLock(t *testing.T) {
	h := newHarness(t)

	var cbID uuid.UUID
	run := h.startRun(t, registrationDefinition(map[string]*int{}, &cbID))

	if _, held := h.engine.locks.Load(run.ID); !held {
		t.Fatal("suspended run should still hold a lock entry")
	}

	if err := h.registry.Resolve(context.Background(), cbID, nil); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	h.deliver(t, h.pub.last(t))

	if got := h.runStatus(t, run.ID); got != domain.RunStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got)
	}
	if _, held := h.engine.locks.Load(run.ID); held {
		t.Error("completed run still holds a lock entry")
	}
}

func TestCalculateBackoff(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:  6,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped at max
		{6, 10 * time.Second}, // stays at max
	}

	for _, tt := range tests {
		got := calculateBackoff(tt.attempt, policy)
		if got != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}
}

func TestCalculateBackoffNilPolicy(t *testing.T) {
	got := calculateBackoff(1, nil)
	if got != time.Second {
		t.Errorf("expected 1s default, got %v", got)
	}
}
