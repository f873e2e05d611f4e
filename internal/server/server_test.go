package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/bayesopt/internal/config"
	apperrors "github.com/copyleftdev/bayesopt/internal/errors"
	"github.com/copyleftdev/bayesopt/internal/logging"
	"github.com/copyleftdev/bayesopt/internal/metrics"
	"github.com/copyleftdev/bayesopt/internal/optimization"
)

// testConfig creates a test configuration with small optimizer settings
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
	}

	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second

	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "text"
	cfg.Logging.Output = "stdout"

	cfg.Optimization = config.OptimizationConfig{
		Alpha:              1e-6,
		Xi:                 0.01,
		Restarts:           5,
		LBFGSMaxIterations: 50,
		LBFGSEpsilon:       1e-5,
		MaxSessions:        10,
		FitHyperparameters: false,
		Kernel:             "rbf",
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

// testLogger creates a logger writing to a buffer
func testLogger(t *testing.T) (*logging.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return logging.NewWithFormat(logging.DebugLevel, logging.TextFormat, &buf), &buf
}

type testServer struct {
	srv     *Server
	http    *httptest.Server
	metrics *metrics.Metrics
	reg     *prometheus.Registry
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := testConfig(t)
	for _, m := range mutate {
		m(cfg)
	}
	logger, _ := testLogger(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	srv := NewServer(cfg, logger, WithMetrics(m))
	router := NewRouter(srv, logger, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), 30*time.Second)
	ts := httptest.NewServer(router)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return &testServer{srv: srv, http: ts, metrics: m, reg: reg}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (ts *testServer) createSession(t *testing.T, body string) string {
	t.Helper()
	status, data := ts.do(t, http.MethodPost, "/api/v1/sessions", body)
	require.Equal(t, http.StatusCreated, status, string(data))

	var resp CreateSessionResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func TestNewServer(t *testing.T) {
	logger, _ := testLogger(t)
	srv := NewServer(testConfig(t), logger)
	require.NotNil(t, srv)
	assert.NotNil(t, srv.metrics)
	assert.NotNil(t, srv.zlog)
	assert.NoError(t, srv.Close())
}

func TestCreateSession(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "minimal", body: `{"bounds":[[0,1]]}`, wantStatus: http.StatusCreated},
		{
			name:       "all options",
			body:       `{"bounds":[[-5,5],[0,2]],"alpha":1e-4,"xi":0,"restarts":3,"seed":7,"kernel":"matern52"}`,
			wantStatus: http.StatusCreated,
		},
		{name: "invalid json", body: `{"bounds":`, wantStatus: http.StatusBadRequest, wantError: "invalid request body"},
		{name: "missing bounds", body: `{}`, wantStatus: http.StatusBadRequest, wantError: "bounds failed required"},
		{name: "empty bounds", body: `{"bounds":[]}`, wantStatus: http.StatusBadRequest, wantError: "bounds failed min=1"},
		{name: "bound pair length", body: `{"bounds":[[0,1,2]]}`, wantStatus: http.StatusBadRequest, wantError: "bounds[0] failed len=2"},
		{name: "inverted bounds", body: `{"bounds":[[1,0]]}`, wantStatus: http.StatusBadRequest, wantError: "invalid bounds"},
		{name: "negative xi", body: `{"bounds":[[0,1]],"xi":-1}`, wantStatus: http.StatusBadRequest, wantError: "xi failed gte=0"},
		{name: "unknown kernel", body: `{"bounds":[[0,1]],"kernel":"cubic"}`, wantStatus: http.StatusBadRequest, wantError: "kernel failed oneof"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := ts.do(t, http.MethodPost, "/api/v1/sessions", tt.body)
			assert.Equal(t, tt.wantStatus, status, string(data))
			if tt.wantError != "" {
				var body map[string]interface{}
				require.NoError(t, json.Unmarshal(data, &body))
				assert.Contains(t, body["error"], tt.wantError)
				assert.Equal(t, float64(tt.wantStatus), body["code"])
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t, `{"bounds":[[0,1]],"seed":7}`)
	path := "/api/v1/sessions/" + id

	for _, obs := range []string{`{"x":[0.0],"y":-1}`, `{"x":[0.5],"y":2}`, `{"x":[1.0],"y_vector":[-0.5]}`} {
		status, data := ts.do(t, http.MethodPost, path+"/samples", obs)
		require.Equal(t, http.StatusOK, status, string(data))
	}

	status, data := ts.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, status)
	var st SessionStatus
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, id, st.SessionID)
	assert.Equal(t, optimization.Bounds{{0, 1}}, st.Bounds)
	assert.Equal(t, 3, st.Samples)
	require.NotNil(t, st.Best)
	assert.Equal(t, []float64{0.5}, st.Best.X)
	assert.Equal(t, 0, st.Proposals)

	status, data = ts.do(t, http.MethodPost, path+"/next", "")
	require.Equal(t, http.StatusOK, status, string(data))
	var proposal ProposalResponse
	require.NoError(t, json.Unmarshal(data, &proposal))
	require.Len(t, proposal.X, 1)
	assert.True(t, st.Bounds.Contains(proposal.X))
	assert.GreaterOrEqual(t, proposal.ExpectedImprovement, 0.0)
	assert.Positive(t, proposal.FeasibleRestarts)

	// Reseeding reproduces the proposal.
	status, _ = ts.do(t, http.MethodPost, path+"/seed", `{"seed":7}`)
	require.Equal(t, http.StatusNoContent, status)
	status, data = ts.do(t, http.MethodPost, path+"/next", "")
	require.Equal(t, http.StatusOK, status)
	var again ProposalResponse
	require.NoError(t, json.Unmarshal(data, &again))
	assert.Equal(t, proposal.X, again.X)

	status, data = ts.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, 2, st.Proposals)
	assert.Equal(t, again.X, st.LastProposal)

	status, _ = ts.do(t, http.MethodDelete, path+"/samples", "")
	require.Equal(t, http.StatusNoContent, status)
	status, data = ts.do(t, http.MethodPost, path+"/next", "")
	assert.Equal(t, http.StatusBadRequest, status, "next without samples")
	assert.Contains(t, string(data), optimization.ErrNoSamples.Error())

	status, _ = ts.do(t, http.MethodDelete, path, "")
	require.Equal(t, http.StatusNoContent, status)
	status, _ = ts.do(t, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = ts.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAddSampleValidation(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t, `{"bounds":[[0,1],[0,1]]}`)
	path := "/api/v1/sessions/" + id + "/samples"

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "scalar", body: `{"x":[0.1,0.2],"y":1}`, wantStatus: http.StatusOK},
		{name: "missing x", body: `{"y":1}`, wantStatus: http.StatusBadRequest},
		{name: "missing y", body: `{"x":[0.1,0.2]}`, wantStatus: http.StatusBadRequest},
		{name: "both outputs", body: `{"x":[0.1,0.2],"y":1,"y_vector":[1]}`, wantStatus: http.StatusBadRequest},
		{name: "wrong dimensionality", body: `{"x":[0.1],"y":1}`, wantStatus: http.StatusBadRequest},
		{name: "output width fixed by first sample", body: `{"x":[0.1,0.2],"y_vector":[1,2]}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := ts.do(t, http.MethodPost, path, tt.body)
			assert.Equal(t, tt.wantStatus, status, string(data))
		})
	}

	status, _ := ts.do(t, http.MethodPost, "/api/v1/sessions/unknown/samples", `{"x":[0.1,0.2],"y":1}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSessionLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Optimization.MaxSessions = 1 })
	ts.createSession(t, `{"bounds":[[0,1]]}`)

	status, data := ts.do(t, http.MethodPost, "/api/v1/sessions", `{"bounds":[[0,1]]}`)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Contains(t, string(data), "session limit of 1 reached")
}

func rpcCall(t *testing.T, ts *testServer, body string) rpcResponse {
	t.Helper()
	status, data := ts.do(t, http.MethodPost, "/rpc", body)
	require.Equal(t, http.StatusOK, status, string(data))
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(data, &resp), string(data))
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

func TestJSONRPCErrors(t *testing.T) {
	ts := newTestServer(t)
	missing := "1b4e28ba-2fa1-11d2-883f-0016d3cca427"

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "parse error", body: `{"jsonrpc":`, wantCode: rpcParseError},
		{name: "wrong version", body: `{"jsonrpc":"1.0","id":1,"method":"session.status"}`, wantCode: rpcInvalidRequest},
		{name: "unknown method", body: `{"jsonrpc":"2.0","id":1,"method":"session.explode"}`, wantCode: rpcMethodNotFound},
		{name: "missing session id", body: `{"jsonrpc":"2.0","id":1,"method":"session.status","params":{}}`, wantCode: rpcInvalidParams},
		{name: "malformed session id", body: `{"jsonrpc":"2.0","id":1,"method":"session.next","params":{"session_id":"abc"}}`, wantCode: rpcInvalidParams},
		{name: "too many positional params", body: `{"jsonrpc":"2.0","id":1,"method":"session.status","params":[{},{}]}`, wantCode: rpcInvalidParams},
		{
			name:     "unknown session",
			body:     fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"session.status","params":{"session_id":%q}}`, missing),
			wantCode: rpcNotFound,
		},
		{name: "invalid bounds", body: `{"jsonrpc":"2.0","id":1,"method":"session.create","params":{"bounds":[[2,1]]}}`, wantCode: rpcInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rpcCall(t, ts, tt.body)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code, resp.Error.Message)
			assert.Nil(t, resp.Result)
		})
	}
}

func TestJSONRPCSessionFlow(t *testing.T) {
	ts := newTestServer(t)

	resp := rpcCall(t, ts, `{"jsonrpc":"2.0","id":1,"method":"session.create","params":[{"bounds":[[-2,2],[-2,2]],"seed":3}]}`)
	require.Nil(t, resp.Error)
	id := resp.Result.(map[string]interface{})["session_id"].(string)

	call := func(id int, method, params string) rpcResponse {
		return rpcCall(t, ts, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":%q,"params":%s}`, id, method, params))
	}
	ref := fmt.Sprintf(`{"session_id":%q}`, id)

	resp = call(2, "session.next", ref)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpcInvalidParams, resp.Error.Code, "no samples yet")

	for i, x := range [][2]float64{{0, 0}, {1, -1}, {-1.5, 0.5}} {
		params := fmt.Sprintf(`{"session_id":%q,"x":[%g,%g],"y":%g}`, id, x[0], x[1], -(x[0]*x[0] + x[1]*x[1]))
		resp = call(10+i, "session.addSample", params)
		require.Nil(t, resp.Error, "sample %d", i)
		assert.Equal(t, float64(i+1), resp.Result.(map[string]interface{})["samples"])
	}

	resp = call(20, "session.next", ref)
	require.Nil(t, resp.Error)
	assert.Equal(t, float64(20), resp.ID)
	result := resp.Result.(map[string]interface{})
	x := result["x"].([]interface{})
	require.Len(t, x, 2)
	for _, v := range x {
		assert.GreaterOrEqual(t, v.(float64), -2.0)
		assert.LessOrEqual(t, v.(float64), 2.0)
	}

	resp = call(21, "session.seed", fmt.Sprintf(`{"session_id":%q,"seed":3}`, id))
	require.Nil(t, resp.Error)

	resp = call(22, "session.status", ref)
	require.Nil(t, resp.Error)
	status := resp.Result.(map[string]interface{})
	assert.Equal(t, float64(3), status["samples"])
	assert.Equal(t, float64(1), status["proposals"])

	resp = call(23, "session.clear", ref)
	require.Nil(t, resp.Error)
	resp = call(24, "session.delete", ref)
	require.Nil(t, resp.Error)
	resp = call(25, "session.delete", ref)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpcNotFound, resp.Error.Code)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		rpcCode int
	}{
		{name: "no samples", err: optimization.WrapError(optimization.ErrNoSamples, "next"), status: http.StatusBadRequest, rpcCode: rpcInvalidParams},
		{name: "dimension mismatch", err: optimization.ErrDimensionMismatch, status: http.StatusBadRequest, rpcCode: rpcInvalidParams},
		{
			name:    "model fit",
			err:     fmt.Errorf("%w: %w", optimization.ErrModelFit, optimization.ErrDimensionMismatch),
			status:  http.StatusUnprocessableEntity,
			rpcCode: rpcServerError,
		},
		{name: "infeasible", err: optimization.ErrNoFeasibleProposal, status: http.StatusUnprocessableEntity, rpcCode: rpcServerError},
		{name: "not found", err: sessionNotFound("x"), status: http.StatusNotFound, rpcCode: rpcNotFound},
		{name: "canceled", err: context.Canceled, status: http.StatusServiceUnavailable, rpcCode: rpcServerError},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, rpcCode: rpcInternalError},
		{
			name:    "api error keeps status",
			err:     apperrors.New("limit").WithStatus(http.StatusTooManyRequests),
			status:  http.StatusTooManyRequests,
			rpcCode: rpcServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
			assert.Equal(t, tt.status, statusFor(apiError(tt.err)))
			assert.Equal(t, tt.rpcCode, rpcCode(statusFor(tt.err)))
		})
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t, `{"bounds":[[0,1]],"seed":1}`)

	status, data := ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","sessions":1}`, string(data))

	ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/samples", `{"x":[0.2],"y":1}`)
	ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/next", "")

	status, data = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, status)
	body := string(data)
	assert.Contains(t, body, "bayesopt_sessions_active 1")
	assert.Contains(t, body, "bayesopt_samples_total 1")
	assert.Contains(t, body, `bayesopt_proposals_total{result="ok"} 1`)
	assert.Contains(t, body, "bayesopt_proposal_duration_seconds_count 1")
}

func TestConcurrentSessionAccess(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t, `{"bounds":[[0,1]],"seed":5}`)
	path := "/api/v1/sessions/" + id

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"x":[%g],"y":%g}`, float64(i)/8, float64(i%3))
			req, err := http.NewRequest(http.MethodPost, ts.http.URL+path+"/samples", strings.NewReader(body))
			if !assert.NoError(t, err) {
				return
			}
			resp, err := http.DefaultClient.Do(req)
			if assert.NoError(t, err) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				resp.Body.Close()
			}
			if i%2 == 0 {
				resp, err := http.Post(ts.http.URL+path+"/next", "application/json", nil)
				if assert.NoError(t, err) {
					resp.Body.Close()
				}
			}
		}(i)
	}
	wg.Wait()

	st, err := ts.srv.SessionStatus(id)
	require.NoError(t, err)
	assert.Equal(t, 8, st.Samples)
}

func TestNextSampleCancelled(t *testing.T) {
	logger, _ := testLogger(t)
	srv := NewServer(testConfig(t), logger)
	resp, err := srv.CreateSession(CreateSessionRequest{Bounds: [][]float64{{0, 1}}})
	require.NoError(t, err)
	_, err = srv.AddSample(resp.SessionID, AddSampleRequest{X: []float64{0.5}, YVector: []float64{1}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = srv.NextSample(ctx, resp.SessionID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(err))
}
