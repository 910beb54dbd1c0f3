package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConsumer subscribes to the pill-cell event topic and feeds each
// message through the same apply path as the HTTP webhook. The broker's
// own credentials stand in for the shared-secret check.
type MQTTConsumer struct {
	client paho.Client
	topic  string
	logger *slog.Logger
}

// NewMQTTConsumer connects to the broker at brokerURL.
func NewMQTTConsumer(brokerURL, topic string, logger *slog.Logger) (*MQTTConsumer, error) {
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("medibuddy-ingest").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &MQTTConsumer{client: client, topic: topic, logger: logger}, nil
}

// Start subscribes and dispatches messages until Close is called.
// QoS 1: a dropped dose report is worse than a duplicate one, and the
// apply path tolerates replays.
func (c *MQTTConsumer) Start(ctx context.Context, ingestor *Ingestor) error {
	token := c.client.Subscribe(c.topic, 1, func(_ paho.Client, msg paho.Message) {
		var ev Event
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			c.logger.Warn("mqtt: dropping malformed payload", "topic", msg.Topic(), "error", err)
			return
		}
		if err := ingestor.Apply(ctx, ev, "mqtt"); err != nil {
			c.logger.Error("mqtt: event rejected", "cell_id", ev.CellID, "error", err)
		}
	})
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.topic, err)
	}
	c.logger.Info("mqtt ingestor subscribed", "topic", c.topic)
	return nil
}

// Close disconnects from the broker.
func (c *MQTTConsumer) Close() {
	c.client.Unsubscribe(c.topic)
	c.client.Disconnect(1000)
}
