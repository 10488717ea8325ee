package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
	status int
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	if d.status != 0 {
		w.WriteHeader(d.status)
	}
	_, _ = w.Write([]byte("ok"))
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		path       string
		header     string
		wantCalled bool
		wantCode   int
	}{
		{name: "disabled", token: "", path: "/api/cart", wantCalled: true, wantCode: http.StatusOK},
		{name: "missing header", token: "s3cret", path: "/api/cart", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", token: "s3cret", path: "/api/cart", header: "Basic s3cret", wantCode: http.StatusUnauthorized},
		{name: "wrong token", token: "s3cret", path: "/api/cart", header: "Bearer nope", wantCode: http.StatusUnauthorized},
		{name: "valid token", token: "s3cret", path: "/api/cart", header: "Bearer s3cret", wantCalled: true, wantCode: http.StatusOK},
		{name: "public path", token: "s3cret", path: "/metrics", wantCalled: true, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dummy := &dummyHandler{}
			h := BearerAuth(tt.token, "/metrics")(dummy)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCalled, dummy.called)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusUnauthorized {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestWithRequestLogging_GeneratesID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dummy := &dummyHandler{}
	h := WithRequestLogging(zap.New(core))(dummy)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart?x=1", nil))

	id := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, GetRequestID(dummy.ctx))

	entries := logs.FilterMessage("request served").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/api/cart?x=1", fields["uri"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.EqualValues(t, 2, fields["size"])
	assert.Equal(t, id, fields["request_id"])
}

func TestWithRequestLogging_ReusesIncomingID(t *testing.T) {
	dummy := &dummyHandler{}
	h := WithRequestLogging(nil)(dummy)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", GetRequestID(dummy.ctx))
}

func TestWithRequestLogging_ServerErrorsWarn(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := WithRequestLogging(zap.New(core))(&dummyHandler{status: http.StatusBadGateway})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/checkout", nil))

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
}

func TestGetRequestID_Missing(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}
