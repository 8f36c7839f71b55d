// Package health exposes liveness and readiness probes.
package health

import (
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

type Checker struct {
	health healthcheck.Handler
	log    *zap.Logger
}

func New(log *zap.Logger) *Checker {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))
	return &Checker{health: h, log: log}
}

// AddReadiness registers a dependency check. Failures are logged once per probe.
func (c *Checker) AddReadiness(name string, check func() error) {
	c.health.AddReadinessCheck(name, healthcheck.Timeout(func() error {
		err := check()
		if err != nil {
			c.log.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
		}
		return err
	}, 2*time.Second))
}

// Handler serves /live and /ready.
func (c *Checker) Handler() http.Handler {
	return c.health
}
