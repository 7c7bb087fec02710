package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// mqttClient is the subset of mqtt.Client used for publishing.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes events to "<topic>/<type>". Alerts use QoS 1, other types QoS 0.
type MQTTPublisher struct {
	client mqttClient
	topic  string
}

// DialMQTT connects to broker (host:port) with automatic reconnects.
func DialMQTT(broker, clientID, topic string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	slog.Info("mqtt connection established", "broker", broker, "client_id", clientID)
	return &MQTTPublisher{client: client, topic: topic}, nil
}

// Name implements Deliverer.
func (p *MQTTPublisher) Name() string { return "mqtt" }

// Topic returns the topic an event of typ is published to.
func (p *MQTTPublisher) Topic(typ Type) string {
	return p.topic + "/" + string(typ)
}

// Deliver implements Deliverer.
func (p *MQTTPublisher) Deliver(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrDelivery, err)
	}
	var qos byte
	if ev.Type == TypeAlert {
		qos = 1
	}
	token := p.client.Publish(p.Topic(ev.Type), qos, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("%w: mqtt publish timeout", ErrDelivery)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: mqtt publish: %w", ErrDelivery, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
