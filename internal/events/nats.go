package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATSPublisher publishes events to "<subject>.<type>".
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	ownsNC  bool
}

// NewNATSPublisher publishes over an existing connection.
func NewNATSPublisher(nc *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{nc: nc, subject: subject}
}

// DialNATS connects to url and returns a publisher owning the connection.
func DialNATS(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("facewatch-events"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: subject, ownsNC: true}, nil
}

// Name implements Deliverer.
func (p *NATSPublisher) Name() string { return "nats" }

// Subject returns the subject an event of typ is published to.
func (p *NATSPublisher) Subject(typ Type) string {
	return p.subject + "." + string(typ)
}

// Deliver implements Deliverer. Trace context from ctx is injected into the message headers.
func (p *NATSPublisher) Deliver(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrDelivery, err)
	}
	msg := &nats.Msg{Subject: p.Subject(ev.Type), Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}

// Close flushes and closes an owned connection.
func (p *NATSPublisher) Close() {
	if p.ownsNC {
		_ = p.nc.Drain()
	}
}
