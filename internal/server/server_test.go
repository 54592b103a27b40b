package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// blockingRunner holds every objective until released or cancelled.
type blockingRunner struct {
	mu       sync.Mutex
	requests []session.Request
	started  chan string
	release  chan struct{}
	status   session.Status
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan string, 4), release: make(chan struct{})}
}

func (r *blockingRunner) Execute(ctx context.Context, req session.Request) session.Result {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.status = session.Status{Active: true, ID: req.ID, Objective: req.Objective, State: schemas.StateStepRunning, Steps: 3, StepIndex: 1, Iterations: 5}
	r.mu.Unlock()
	r.started <- req.ID

	select {
	case <-r.release:
		return session.Result{ID: req.ID, State: schemas.StateObjectiveDone, Plan: []string{"a", "b", "c"}, Iterations: 7}
	case <-ctx.Done():
		return session.Result{ID: req.ID, State: schemas.StateObjectiveStopped, Err: ctx.Err()}
	}
}

func (r *blockingRunner) Status() session.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func newTestServer(t *testing.T) (*Server, *blockingRunner) {
	t.Helper()
	runner := newBlockingRunner()
	srv := New(config.ServerConfig{ShutdownTimeout: time.Second}, zap.NewNop(), runner)
	t.Cleanup(srv.Close)
	return srv, runner
}

func do(t *testing.T, h http.Handler, method, body string) (int, AgentResponse) {
	t.Helper()
	req := httptest.NewRequest(method, "/agent", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out AgentResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestStartAgent_Validation(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"task":`},
		{"missing task", `{}`},
		{"blank task", `{"task": "   "}`},
		{"negative steps", `{"task": "x", "max_steps": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := do(t, srv.Handler(), http.MethodPost, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, out.Error)
		})
	}
}

func TestStartAgent_LifecycleAndConflict(t *testing.T) {
	srv, runner := newTestServer(t)

	code, out := do(t, srv.Handler(), http.MethodGet, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, statusIdle, out.Status)

	code, out = do(t, srv.Handler(), http.MethodPost, `{"task": "open the terminal", "max_steps": 12}`)
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, statusStarted, out.Status)
	id := out.SessionID
	require.NotEmpty(t, id)
	assert.Equal(t, id, <-runner.started)

	runner.mu.Lock()
	assert.Equal(t, session.Request{ID: id, Objective: "open the terminal", MaxSteps: 12}, runner.requests[0])
	runner.mu.Unlock()

	code, _ = do(t, srv.Handler(), http.MethodPost, `{"task": "something else"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, out = do(t, srv.Handler(), http.MethodGet, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, statusRunning, out.Status)
	assert.Equal(t, id, out.SessionID)
	assert.Equal(t, 2, out.Step)
	assert.Equal(t, 3, out.Steps)

	close(runner.release)
	require.Eventually(t, func() bool {
		_, out := do(t, srv.Handler(), http.MethodGet, "")
		return out.Status == statusFinished
	}, time.Second, 5*time.Millisecond)

	_, out = do(t, srv.Handler(), http.MethodGet, "")
	assert.Equal(t, string(schemas.StateObjectiveDone), out.State)
	assert.Equal(t, 7, out.Iterations)
	assert.Empty(t, out.Error)

	code, _ = do(t, srv.Handler(), http.MethodPost, `{"task": "next one"}`)
	assert.Equal(t, http.StatusAccepted, code, "a finished objective frees the slot")
	<-runner.started
}

func TestServe_ShutdownCancelsRunningObjective(t *testing.T) {
	runner := newBlockingRunner()
	srv := New(config.ServerConfig{ShutdownTimeout: time.Second}, zap.NewNop(), runner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/agent"
	resp, err := http.Post(url, "application/json", strings.NewReader(`{"task": "long job"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	<-runner.started

	cancel()
	select {
	case err := <-serveErr:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}

	code, out := do(t, srv.Handler(), http.MethodGet, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, statusFinished, out.Status)
	assert.Equal(t, string(schemas.StateObjectiveStopped), out.State)
	assert.Contains(t, out.Error, "context canceled")

	code, _ = do(t, srv.Handler(), http.MethodPost, `{"task": "too late"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	http.DefaultClient.CloseIdleConnections()
}
