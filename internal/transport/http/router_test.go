package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-email-verification/internal/application/verification"
	"github.com/go-email-verification/internal/config"
	"github.com/go-email-verification/internal/domain"
	jwtinfra "github.com/go-email-verification/internal/infrastructure/jwt"
	"github.com/go-email-verification/internal/infrastructure/memory"
	"github.com/go-email-verification/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureQueue records jobs instead of sending mail.
type captureQueue struct {
	mu   sync.Mutex
	jobs []domain.DispatchJob
}

func (q *captureQueue) Enqueue(_ context.Context, job domain.DispatchJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *captureQueue) lastToken(t *testing.T) string {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	require.NotEmpty(t, q.jobs)
	u, err := url.Parse(q.jobs[len(q.jobs)-1].Link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

type testServer struct {
	handler http.Handler
	repo    *memory.VerificationRepo
	queue   *captureQueue
	now     time.Time
}

func newTestServer(t *testing.T, opts ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := &config.Config{
		VerificationSecret:   "router-test-secret",
		VerificationTokenTTL: 30 * time.Minute,
		VerifyURL:            "https://app.example.com/verify",
		RateLimitRPS:         100,
		RateLimitBurst:       100,
		AllowedOrigins:       []string{"*"},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	ts := &testServer{repo: memory.NewVerificationRepo(), queue: &captureQueue{}, now: time.Now()}
	codec, err := jwtinfra.NewCodec(cfg, jwtinfra.WithClock(func() time.Time { return ts.now }))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := verification.NewService(verification.ServiceDeps{
		Records:   ts.repo,
		Codec:     codec,
		Queue:     ts.queue,
		VerifyURL: cfg.VerifyURL,
		Metrics:   m,
		Now:       func() time.Time { return ts.now },
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ts.handler = NewRouter(ctx, cfg, &Deps{Verification: svc, Metrics: m, Gatherer: reg})
	return ts
}

func (ts *testServer) post(t *testing.T, path string, body any) (int, map[string]string) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw)))
	var out map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return rr.Code, out
}

func TestRouter_SendThenVerifyFlow(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.post(t, "/v1/verification/send", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "If the email exists, a verification link was sent.", body["message"])
	assert.Equal(t, 1, ts.repo.Count())

	token := ts.queue.lastToken(t)
	code, body = ts.post(t, "/v1/verification/verify", map[string]string{"token": token})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Email verified.", body["message"])

	code, body = ts.post(t, "/v1/verification/verify", map[string]string{"token": token})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Email verified.", body["message"])

	// Verified addresses get the same response and no new email.
	code, _ = ts.post(t, "/v1/verification/send", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusCreated, code)
	assert.Len(t, ts.queue.jobs, 1)
}

func TestRouter_SendResponsesAreUniform(t *testing.T) {
	ts := newTestServer(t)
	_, first := ts.post(t, "/v1/verification/send", map[string]string{"email": "new@x.com"})
	_, again := ts.post(t, "/v1/verification/send", map[string]string{"email": "new@x.com"})
	_, malformed := ts.post(t, "/v1/verification/send", map[string]string{"email": "notanemail"})
	assert.Equal(t, first, again)
	assert.Equal(t, first, malformed)
	assert.Equal(t, 1, ts.repo.Count())
}

func TestRouter_SendMissingEmail(t *testing.T) {
	ts := newTestServer(t)
	code, body := ts.post(t, "/v1/verification/send", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email required.", body["error"])
}

func TestRouter_VerifyFailures(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.post(t, "/v1/verification/verify", map[string]string{"token": ""})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Token required.", body["error"])

	code, body = ts.post(t, "/v1/verification/verify", map[string]string{"token": "garbage"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid token.", body["error"])

	ts.post(t, "/v1/verification/send", map[string]string{"email": "late@x.com"})
	token := ts.queue.lastToken(t)
	ts.now = ts.now.Add(time.Hour)
	code, body = ts.post(t, "/v1/verification/verify", map[string]string{"token": token})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Token expired.", body["error"])
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	ts.post(t, "/v1/verification/send", map[string]string{"email": "m@x.com"})

	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `email_verification_requests_total{result="queued"} 1`)
}

func TestRouter_SendRateLimitIgnoresForwardedForByDefault(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 2
	})

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/verification/send", bytes.NewBufferString(`{"email":"r@x.com"}`))
		req.RemoteAddr = "10.1.1.1:4000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rr := httptest.NewRecorder()
		ts.handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusCreated, send("1.1.1.1"))
	assert.Equal(t, http.StatusCreated, send("2.2.2.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("3.3.3.3"))
}

func TestRouter_SendRateLimitUsesProxyHeaderWhenTrusted(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 1
		c.TrustProxyHeaders = true
	})

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/verification/send", bytes.NewBufferString(`{"email":"p@x.com"}`))
		req.RemoteAddr = "10.0.0.1:4000"
		req.Header.Set("X-Forwarded-For", forwarded)
		rr := httptest.NewRecorder()
		ts.handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusCreated, send("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("1.1.1.1"))
	assert.Equal(t, http.StatusCreated, send("2.2.2.2"))
}
