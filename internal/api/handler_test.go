package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Continuum/internal/domain"
	"github.com/shaiso/Continuum/internal/repo"
	"github.com/shaiso/Continuum/internal/token"
)

// --- Fakes ---

type fakeStarter struct {
	started []string
	run     *domain.WorkflowRun
}

func (f *fakeStarter) StartRun(_ context.Context, definitionID string, input map[string]any) (*domain.WorkflowRun, error) {
	f.started = append(f.started, definitionID)
	if f.run == nil {
		f.run = domain.NewRun(definitionID, input)
	}
	return f.run, nil
}

type fakeResolver struct {
	resolved []uuid.UUID
	err      error
}

func (f *fakeResolver) Resolve(_ context.Context, id uuid.UUID, _ map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.resolved = append(f.resolved, id)
	return nil
}

type fakeRuns struct {
	runs map[uuid.UUID]*domain.WorkflowRun
}

func (f *fakeRuns) GetByID(_ context.Context, id uuid.UUID) (*domain.WorkflowRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return run, nil
}

func (f *fakeRuns) List(_ context.Context, _ repo.RunFilter) ([]domain.WorkflowRun, error) {
	var out []domain.WorkflowRun
	for _, run := range f.runs {
		out = append(out, *run)
	}
	return out, nil
}

type fakeSteps struct {
	records []domain.StepRecord
}

func (f *fakeSteps) ListByRun(_ context.Context, _ uuid.UUID) ([]domain.StepRecord, error) {
	return f.records, nil
}

type fakeCustomers struct {
	byID    map[string]*domain.Customer
	byEmail map[string]*domain.Customer
}

func (f *fakeCustomers) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return c, nil
}

func (f *fakeCustomers) GetByEmail(_ context.Context, email string) (*domain.Customer, error) {
	c, ok := f.byEmail[email]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return c, nil
}

type testEnv struct {
	mux       *http.ServeMux
	starter   *fakeStarter
	resolver  *fakeResolver
	runs      *fakeRuns
	customers *fakeCustomers
	tokens    *token.Codec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	codec, err := token.New(token.Config{Secret: []byte("api-test-secret")})
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}

	env := &testEnv{
		starter:  &fakeStarter{},
		resolver: &fakeResolver{},
		runs:     &fakeRuns{runs: make(map[uuid.UUID]*domain.WorkflowRun)},
		customers: &fakeCustomers{
			byID:    make(map[string]*domain.Customer),
			byEmail: make(map[string]*domain.Customer),
		},
		tokens: codec,
	}

	h := NewHandler(Config{
		Starter:   env.starter,
		Resolver:  env.resolver,
		Runs:      env.runs,
		Steps:     &fakeSteps{},
		Customers: env.customers,
		Tokens:    codec,
		Logger:    slog.New(slog.DiscardHandler),
	})

	env.mux = http.NewServeMux()
	h.RegisterRoutes(env.mux)

	return env
}

func (env *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) addCustomer(c *domain.Customer) {
	env.customers.byID[c.ID] = c
	env.customers.byEmail[c.Email] = c
}

// --- Tests ---

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)

	body := `{"email":"jane@example.com","first_name":"Jane","last_name":"Doe","password":"longenough"}`
	rec := env.do(t, http.MethodPost, "/api/v1/registrations", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	if len(env.starter.started) != 1 {
		t.Errorf("started %d runs, want 1", len(env.starter.started))
	}

	var resp struct {
		Data RegisterResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.RunID == "" || resp.Data.Status != "RUNNING" {
		t.Errorf("response = %+v", resp.Data)
	}
}

func TestRegisterEndpointRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"garbage", `{not json`},
		{"bad email", `{"email":"nope","first_name":"A","last_name":"B","password":"longenough"}`},
		{"short password", `{"email":"a@b.com","first_name":"A","last_name":"B","password":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/registrations", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}

	if len(env.starter.started) != 0 {
		t.Errorf("started %d runs from invalid input", len(env.starter.started))
	}
}

func TestRegisterEndpointConflict(t *testing.T) {
	env := newTestEnv(t)
	env.addCustomer(&domain.Customer{ID: "01X", Email: "jane@example.com", Status: domain.CustomerStatusEmailVerified})

	body := `{"email":"jane@example.com","first_name":"Jane","last_name":"Doe","password":"longenough"}`
	rec := env.do(t, http.MethodPost, "/api/v1/registrations", body)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	env := newTestEnv(t)

	cbID := uuid.New()
	env.addCustomer(&domain.Customer{
		ID:         "01CUSTOMER",
		Email:      "jane@example.com",
		Status:     domain.CustomerStatusVerificationSent,
		CallbackID: &cbID,
	})

	tok, err := env.tokens.Issue("01CUSTOMER", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/verify?token="+tok, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if len(env.resolver.resolved) != 1 || env.resolver.resolved[0] != cbID {
		t.Errorf("resolved = %v, want [%s]", env.resolver.resolved, cbID)
	}
}

func TestVerifyEndpointBadToken(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"missing token", "/verify", http.StatusBadRequest},
		{"garbage token", "/verify?token=not-a-token", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.target, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestVerifyEndpointExpiredToken(t *testing.T) {
	env := newTestEnv(t)

	// Issue a token that is already past its validity.
	tok, err := env.tokens.Issue("01CUSTOMER", -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/verify?token="+tok, "")
	if rec.Code != http.StatusGone {
		t.Errorf("status = %d, want 410", rec.Code)
	}
}

func TestVerifyEndpointUnknownCustomer(t *testing.T) {
	env := newTestEnv(t)

	tok, err := env.tokens.Issue("01GHOST", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/verify?token="+tok, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestVerifyEndpointIdempotent(t *testing.T) {
	env := newTestEnv(t)

	// Customer already verified: the second click must succeed
	// without touching the resolver.
	env.addCustomer(&domain.Customer{
		ID:     "01DONE",
		Email:  "done@example.com",
		Status: domain.CustomerStatusEmailVerified,
	})

	tok, err := env.tokens.Issue("01DONE", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/verify?token="+tok, "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(env.resolver.resolved) != 0 {
		t.Errorf("resolver called %d times for verified customer", len(env.resolver.resolved))
	}
}

func TestGetRunEndpoint(t *testing.T) {
	env := newTestEnv(t)

	run := domain.NewRun("customer-registration", nil)
	env.runs.runs[run.ID] = run

	rec := env.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown run: status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/runs/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", rec.Code)
	}
}
