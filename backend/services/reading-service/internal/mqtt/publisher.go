package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"sensorhub/backend/services/reading-service/internal/models"
)

const (
	defaultQoS     byte = 1
	defaultTimeout      = 5 * time.Second
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt: publish timed out")

// Publisher sends every snapshot to one retained topic so late subscribers get the latest value.
type Publisher struct {
	client  pahomqtt.Client
	topic   string
	timeout time.Duration
}

// NewPublisher wraps a connected client.
func NewPublisher(client pahomqtt.Client, topic string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Publisher{client: client, topic: topic, timeout: timeout}
}

// Connect dials the broker and returns a ready client.
func Connect(broker, clientID string, logger *zap.Logger) (pahomqtt.Client, error) {
	broker = strings.TrimSpace(broker)
	if broker == "" {
		return nil, errors.New("mqtt: broker is empty")
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultTimeout).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, err)
	}
	return client, nil
}

// Name identifies the sink in logs and metrics.
func (p *Publisher) Name() string { return "mqtt" }

// Publish sends the snapshot as JSON.
func (p *Publisher) Publish(_ context.Context, snapshot models.Snapshot) error {
	payload, err := json.Marshal(snapshot.View())
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, defaultQoS, true, payload)
	if !token.WaitTimeout(p.timeout) {
		return ErrTimeout
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
