package nats

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	StreamName        = "APPLICATIONS"
	StreamSubj        = "APPLICATIONS.*"
	ApplicationToSend = "APPLICATIONS.send"
	ConsumerName      = "APPLICATION_WORKER"

	// Window in which a republished submission id is dropped as a duplicate.
	duplicateWindow = 10 * time.Minute
)

// Setup connects to NATS and makes sure the work-queue stream exists.
func Setup(natsURL string, log *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("careers-relay"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("error creating JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{StreamSubj},
		Retention:  nats.WorkQueuePolicy,
		Duplicates: duplicateWindow,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		log.Warn("could not create stream (it likely already exists)", zap.Error(err))
	}

	return nc, js, nil
}

// Check fails when the connection is not usable. It backs the readiness probe.
func Check(nc *nats.Conn) func() error {
	return func() error {
		if nc == nil {
			return errors.New("nats not configured")
		}
		if status := nc.Status(); status != nats.CONNECTED {
			return fmt.Errorf("nats connection is %s", status)
		}
		return nil
	}
}
