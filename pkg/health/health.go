package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"characterchat/backend/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component works with reduced functionality,
	// e.g. the model gateway while its circuit is open
	StatusDegraded Status = "degraded"
)

// checkTimeout bounds a single check.
const checkTimeout = 5 * time.Second

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Critical    bool      `json:"critical"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check probes one component.
type Check func(ctx context.Context) (Status, string, error)

type registration struct {
	check    Check
	critical bool
}

// Checker runs registered checks periodically and caches their results.
type Checker struct {
	checks      map[string]registration
	components  map[string]*Component
	checkPeriod time.Duration
	mutex       sync.RWMutex
	log         *logger.Logger
	now         func() time.Time
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	if log == nil {
		log = logger.GetGlobal()
	}
	checker := &Checker{
		checks:      make(map[string]registration),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		log:         log.WithComponent("health"),
		now:         time.Now,
	}

	checker.RegisterCheck("self", false, func(context.Context) (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})

	return checker
}

// RegisterCheck registers a check. A critical component that is down marks
// the whole system unhealthy.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = registration{check: check, critical: critical}
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Critical:    critical,
		Description: "Not checked yet",
	}
}

// RunChecks executes all registered checks. Checks run without holding the
// lock so a slow dependency does not block readers.
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make(map[string]registration, len(c.checks))
	for name, reg := range c.checks {
		checks[name] = reg
	}
	c.mutex.RUnlock()

	for name, reg := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		status, description, err := reg.check(checkCtx)
		cancel()

		c.mutex.Lock()
		component, ok := c.components[name]
		if ok {
			component.Status = status
			component.Description = description
			component.LastChecked = c.now()
			component.Error = ""
			if err != nil {
				component.Error = err.Error()
			}
		}
		c.mutex.Unlock()

		if err != nil {
			c.log.Warn("Health check failed",
				"component", name,
				"status", string(status),
				"error", err.Error(),
			)
		} else {
			c.log.Debug("Health check completed", "component", name, "status", string(status))
		}
	}
}

// Start runs checks immediately and then every check period until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks(ctx)

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RunChecks(ctx)
			}
		}
	}()
}

// GetStatus returns a copy of the latest component results.
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}

	return result
}

// IsSystemHealthy returns true if no critical component is down
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, component := range c.components {
		if component.Critical && component.Status == StatusDown {
			return false
		}
	}

	return true
}

// HTTPHandler returns an HTTP handler for health checks
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := c.GetStatus()

		w.Header().Set("Content-Type", "application/json")

		overall := "ok"
		if !c.IsSystemHealthy() {
			overall = "unavailable"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		response := map[string]any{
			"status":     overall,
			"timestamp":  c.now(),
			"components": components,
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			c.log.Error("Failed to encode health check response", "error", err.Error())
		}
	}
}

// RegisterDatabaseCheck registers the character store check.
func (c *Checker) RegisterDatabaseCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("database", true, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}

// RegisterRedisCheck registers the credential cache check. Redis is
// optional, so a failure only degrades the service.
func (c *Checker) RegisterRedisCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("redis", false, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDegraded, "Redis is unreachable", err
		}
		return StatusUp, "Redis connection is established", nil
	})
}

// RegisterBreakerCheck reports the model gateway as degraded while its
// circuit breaker is not closed.
func (c *Checker) RegisterBreakerCheck(name string, state func() string) {
	c.RegisterCheck(name, false, func(context.Context) (Status, string, error) {
		s := state()
		if s == "closed" {
			return StatusUp, "Circuit closed", nil
		}
		return StatusDegraded, fmt.Sprintf("Circuit %s", s), nil
	})
}
