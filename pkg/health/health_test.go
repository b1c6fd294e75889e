package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"characterchat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_CriticalComponentDown(t *testing.T) {
	c := NewChecker(logger.Nop(), 0)
	dbErr := errors.New("disk I/O error")
	c.RegisterDatabaseCheck(func(context.Context) error { return dbErr })
	c.RegisterRedisCheck(func(context.Context) error { return nil })

	c.RunChecks(context.Background())

	status := c.GetStatus()
	assert.Equal(t, StatusDown, status["database"].Status)
	assert.Equal(t, "disk I/O error", status["database"].Error)
	assert.Equal(t, StatusUp, status["redis"].Status)
	assert.False(t, c.IsSystemHealthy())

	w := httptest.NewRecorder()
	c.HTTPHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChecker_DegradedIsStillHealthy(t *testing.T) {
	c := NewChecker(logger.Nop(), 0)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })
	c.RegisterRedisCheck(func(context.Context) error { return errors.New("connection refused") })
	state := "open"
	c.RegisterBreakerCheck("gateway", func() string { return state })

	c.RunChecks(context.Background())

	status := c.GetStatus()
	assert.Equal(t, StatusDegraded, status["redis"].Status)
	assert.Equal(t, StatusDegraded, status["gateway"].Status)
	assert.True(t, c.IsSystemHealthy())

	w := httptest.NewRecorder()
	c.HTTPHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status     string                `json:"status"`
		Components map[string]*Component `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Contains(t, body.Components, "self")

	state = "closed"
	c.RunChecks(context.Background())
	assert.Equal(t, StatusUp, c.GetStatus()["gateway"].Status)
}

func TestChecker_NotCheckedYet(t *testing.T) {
	c := NewChecker(logger.Nop(), 0)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })

	assert.False(t, c.IsSystemHealthy(), "critical components start down until checked")
}
