package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-email-verification/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockVerificationSvc struct{ mock.Mock }

func (m *mockVerificationSvc) RequestVerification(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockVerificationSvc) RedeemToken(ctx context.Context, token string) (domain.MarkResult, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.MarkResult), args.Error(1)
}

// --- helpers ---

func postJSON(t *testing.T, h http.HandlerFunc, body string) (*httptest.ResponseRecorder, MessageEnvelope) {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, r)
	var env MessageEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return rr, env
}

// --- Send ---

func TestSend_Created(t *testing.T) {
	svc := &mockVerificationSvc{}
	svc.On("RequestVerification", mock.Anything, "a@x.com").Return(nil).Once()
	h := NewVerificationHandler(svc)

	rr, env := postJSON(t, h.Send, `{"email":"  A@X.com "}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, msgLinkSent, env.Message)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	svc.AssertExpectations(t)
}

func TestSend_MissingEmail(t *testing.T) {
	for _, body := range []string{`{}`, `{"email":""}`, `{"email":"   "}`, `not-json`, ``} {
		svc := &mockVerificationSvc{}
		h := NewVerificationHandler(svc)

		rr, env := postJSON(t, h.Send, body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, msgEmailRequired, env.Error, body)
		svc.AssertNotCalled(t, "RequestVerification", mock.Anything, mock.Anything)
	}
}

func TestSend_MalformedEmailStillCreated(t *testing.T) {
	svc := &mockVerificationSvc{}
	svc.On("RequestVerification", mock.Anything, "notanemail").Return(nil)
	h := NewVerificationHandler(svc)

	rr, env := postJSON(t, h.Send, `{"email":"notanemail"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, msgLinkSent, env.Message)
}

func TestSend_UnexpectedErrorStaysGeneric(t *testing.T) {
	svc := &mockVerificationSvc{}
	svc.On("RequestVerification", mock.Anything, "a@x.com").Return(errors.New("boom"))
	h := NewVerificationHandler(svc)

	rr, env := postJSON(t, h.Send, `{"email":"a@x.com"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, msgLinkSent, env.Message)
	assert.Empty(t, env.Error)
}

// --- Verify ---

func TestVerify_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		result  domain.MarkResult
		err     error
		status  int
		message string
		errMsg  string
	}{
		{"verified", domain.MarkVerified, nil, http.StatusOK, msgVerified, ""},
		{"already verified", domain.MarkAlreadyVerified, nil, http.StatusOK, msgVerified, ""},
		{"invalid", 0, fmt.Errorf("redeem: %w", domain.ErrTokenInvalid), http.StatusBadRequest, "", msgInvalidToken},
		{"expired", 0, fmt.Errorf("redeem: %w", domain.ErrTokenExpired), http.StatusBadRequest, "", msgTokenExpired},
		{"missing", 0, fmt.Errorf("token: %w", domain.ErrMissingInput), http.StatusBadRequest, "", msgTokenRequired},
		{"internal", 0, errors.New("dynamo down"), http.StatusInternalServerError, "", msgInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockVerificationSvc{}
			svc.On("RedeemToken", mock.Anything, "tok").Return(tc.result, tc.err)
			h := NewVerificationHandler(svc)

			rr, env := postJSON(t, h.Verify, `{"token":"tok"}`)
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.message, env.Message)
			assert.Equal(t, tc.errMsg, env.Error)
		})
	}
}

func TestVerify_InternalErrorDoesNotLeak(t *testing.T) {
	svc := &mockVerificationSvc{}
	svc.On("RedeemToken", mock.Anything, "tok").Return(domain.MarkResult(0), errors.New("table email_verifications missing"))
	h := NewVerificationHandler(svc)

	rr, _ := postJSON(t, h.Verify, `{"token":"tok"}`)
	assert.NotContains(t, rr.Body.String(), "email_verifications")
}

func TestVerify_MissingToken(t *testing.T) {
	for _, body := range []string{`{}`, `{"token":""}`, `garbage`} {
		svc := &mockVerificationSvc{}
		h := NewVerificationHandler(svc)

		rr, env := postJSON(t, h.Verify, body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, msgTokenRequired, env.Error, body)
		svc.AssertNotCalled(t, "RedeemToken", mock.Anything, mock.Anything)
	}
}

// --- Health ---

func TestPing(t *testing.T) {
	h := NewHealthHandler()
	r := httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil)
	r = withChiParam(r, "action", "ping")
	rr := httptest.NewRecorder()
	h.Ping(rr, r)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pong")
}
