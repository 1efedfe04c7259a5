package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newRecoveryRouter(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.ErrorLevel)
	r := gin.New()
	r.Use(TraceID(), Recovery(zap.New(core)))
	r.GET("/boom", func(c *gin.Context) {
		c.Set(AccountIDKey, int64(17))
		panic("boom")
	})
	r.GET("/stream", func(c *gin.Context) {
		c.String(http.StatusOK, "event: connected\n\n")
		panic("mid-stream")
	})
	return r, logs
}

func TestRecovery_FreshResponse(t *testing.T) {
	r, logs := newRecoveryRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(TraceIDHeader, "panic-trace")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "panic-trace", fields["trace_id"])
	assert.Equal(t, int64(17), fields["account_id"])
	assert.Equal(t, "/boom", fields["path"])
}

func TestRecovery_StartedResponseKeepsBody(t *testing.T) {
	r, logs := newRecoveryRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "event: connected\n\n", w.Body.String())
	assert.Equal(t, 1, logs.Len())
}

func TestRecovery_AbortHandlerRepanics(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/abort", func(*gin.Context) { panic(http.ErrAbortHandler) })

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/abort", nil))
	})
}
