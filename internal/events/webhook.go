package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/constants"
)

// Webhook POSTs each event as JSON. Each attempt is bounded by the timeout
// and failures are never retried.
type Webhook struct {
	url     string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhook creates a webhook deliverer. perSecond > 0 caps the delivery rate.
func NewWebhook(url string, timeout time.Duration, perSecond float64) *Webhook {
	if timeout <= 0 {
		timeout = constants.DefaultWebhookTimeout
	}
	w := &Webhook{
		url:     url,
		timeout: timeout,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return w
}

// Name implements Deliverer.
func (w *Webhook) Name() string { return "webhook" }

// Deliver implements Deliverer.
func (w *Webhook) Deliver(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limit: %w", ErrDelivery, err)
		}
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrDelivery, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook returned status %d", ErrDelivery, resp.StatusCode)
	}
	return nil
}
