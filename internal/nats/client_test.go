package nats

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCheckWithoutConnection(t *testing.T) {
	assert.EqualError(t, Check(nil)(), "nats not configured")
}

func TestCheckClosedConnection(t *testing.T) {
	nc := &nats.Conn{}
	assert.Error(t, Check(nc)())
}

func TestSetupUnreachableServer(t *testing.T) {
	_, _, err := Setup("nats://127.0.0.1:1", zap.NewNop())
	assert.ErrorContains(t, err, "error connecting to NATS")
}
