package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func probe(h http.Handler, path string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestReadinessFollowsChecks(t *testing.T) {
	c := New(zap.NewNop())
	var failing error
	c.AddReadiness("nats", func() error { return failing })

	assert.Equal(t, http.StatusOK, probe(c.Handler(), "/live"))
	assert.Equal(t, http.StatusOK, probe(c.Handler(), "/ready"))

	failing = errors.New("nats connection is CLOSED")
	assert.Equal(t, http.StatusOK, probe(c.Handler(), "/live"))
	assert.Equal(t, http.StatusServiceUnavailable, probe(c.Handler(), "/ready"))
}
