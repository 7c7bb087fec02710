package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhook_PostsEventJSON(t *testing.T) {
	got := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		got <- m
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second, 0)
	ev := Event{Timestamp: time.Now().UTC(), Type: TypeAlert, Source: "cam", Data: AlertData{PersonID: "p1"}}
	require.NoError(t, wh.Deliver(context.Background(), ev))

	m := <-got
	assert.Equal(t, "alert", m["type"])
	assert.Equal(t, "p1", m["data"].(map[string]any)["person_id"])
}

func TestWebhook_Non2xxIsDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second, 0).Deliver(context.Background(), Event{Type: TypeDetection})
	require.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhook_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	err := NewWebhook(srv.URL, 50*time.Millisecond, 0).Deliver(context.Background(), Event{Type: TypeTrack})
	require.ErrorIs(t, err, ErrDelivery)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWebhook_RateLimitedWithinTimeout(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, 50*time.Millisecond, 0.5)
	require.NoError(t, wh.Deliver(context.Background(), Event{Type: TypeAlert}))
	err := wh.Deliver(context.Background(), Event{Type: TypeAlert})
	require.ErrorIs(t, err, ErrDelivery)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, hits)
}

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

func TestNATSPublisher_PublishesPerTypeSubject(t *testing.T) {
	nc := startTestNATS(t)

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("facewatch.events.>", ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	p := NewNATSPublisher(nc, "facewatch.events")
	require.NoError(t, p.Deliver(context.Background(), Event{Type: TypeAlert, Source: "cam", Data: AlertData{PersonName: "Alice"}}))

	select {
	case msg := <-ch:
		assert.Equal(t, "facewatch.events.alert", msg.Subject)
		var ev map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, "cam", ev["source"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNATSPublisher_ClosedConnection(t *testing.T) {
	nc := startTestNATS(t)
	p := NewNATSPublisher(nc, "facewatch.events")
	nc.Close()

	err := p.Deliver(context.Background(), Event{Type: TypeTrack})
	require.ErrorIs(t, err, ErrDelivery)
}

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool { return !t.timeout }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }

func (t *fakeToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

func (t *fakeToken) Error() error { return t.err }

type publishCall struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeMQTT struct {
	calls []publishCall
	token *fakeToken
}

func (f *fakeMQTT) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.calls = append(f.calls, publishCall{topic: topic, qos: qos, payload: payload.([]byte)})
	return f.token
}

func (f *fakeMQTT) Disconnect(uint) {}

func TestMQTTPublisher_TopicAndQoS(t *testing.T) {
	client := &fakeMQTT{token: &fakeToken{}}
	p := &MQTTPublisher{client: client, topic: "facewatch/events"}

	require.NoError(t, p.Deliver(context.Background(), Event{Type: TypeAlert}))
	require.NoError(t, p.Deliver(context.Background(), Event{Type: TypeDetection}))

	require.Len(t, client.calls, 2)
	assert.Equal(t, "facewatch/events/alert", client.calls[0].topic)
	assert.Equal(t, byte(1), client.calls[0].qos)
	assert.Equal(t, "facewatch/events/detection", client.calls[1].topic)
	assert.Equal(t, byte(0), client.calls[1].qos)
}

func TestMQTTPublisher_Failures(t *testing.T) {
	p := &MQTTPublisher{client: &fakeMQTT{token: &fakeToken{timeout: true}}, topic: "t"}
	require.ErrorIs(t, p.Deliver(context.Background(), Event{Type: TypeTrack}), ErrDelivery)

	p = &MQTTPublisher{client: &fakeMQTT{token: &fakeToken{err: errors.New("not connected")}}, topic: "t"}
	require.ErrorIs(t, p.Deliver(context.Background(), Event{Type: TypeTrack}), ErrDelivery)
}
