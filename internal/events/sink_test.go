package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/logging"
)

type recordingDeliverer struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
}

func (d *recordingDeliverer) Name() string { return "recording" }

func (d *recordingDeliverer) Deliver(_ context.Context, ev Event) error {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return d.err
}

func (d *recordingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func TestSink_GetEventsMostRecentLast(t *testing.T) {
	s := NewSink(logging.Discard())
	s.Detection(1, [][4]int{{0, 0, 10, 10}}, "a.jpg")
	s.Alert("p1", "Alice", 0.9, "a.jpg", nil)
	s.Track("p1", "Alice", "a.jpg", nil, 0)
	s.Detection(0, nil, "b.jpg")
	s.Alert("p2", "Bob", 0.8, "b.jpg", map[string]any{"frame": 3})

	all := s.GetEvents("", 0)
	require.Len(t, all, 5)
	assert.Equal(t, TypeDetection, all[0].Type)
	assert.Equal(t, TypeAlert, all[4].Type)

	alerts := s.GetEvents(TypeAlert, 10)
	require.Len(t, alerts, 2)
	assert.Equal(t, "p1", alerts[0].Data.(AlertData).PersonID)
	assert.Equal(t, "p2", alerts[1].Data.(AlertData).PersonID)

	last2 := s.GetEvents("", 2)
	require.Len(t, last2, 2)
	assert.Equal(t, TypeDetection, last2[0].Type)
	assert.Equal(t, "b.jpg", last2[0].Source)
	assert.Equal(t, TypeAlert, last2[1].Type)

	lastAlert := s.GetEvents(TypeAlert, 1)
	require.Len(t, lastAlert, 1)
	assert.Equal(t, "Bob", lastAlert[0].Data.(AlertData).PersonName)
}

func TestSink_DefaultLimit(t *testing.T) {
	s := NewSink(logging.Discard())
	for i := 0; i < 150; i++ {
		s.Track("p", "n", "cam", intPtr(i), float64(i))
	}
	got := s.GetEvents(TypeTrack, 0)
	require.Len(t, got, 100)
	assert.Equal(t, 50, *got[0].Data.(TrackData).FrameNumber)
	assert.Equal(t, 149, *got[99].Data.(TrackData).FrameNumber)
}

func TestSink_ClearAndStats(t *testing.T) {
	s := NewSink(logging.Discard())
	s.Detection(2, [][4]int{{1, 2, 3, 4}, {5, 6, 7, 8}}, "x")
	s.Alert("p", "n", 0.5, "x", nil)
	s.Track("p", "n", "x", intPtr(1), 0.5)

	st := s.Stats()
	assert.Equal(t, Stats{Total: 3, Detections: 1, Alerts: 1, Tracks: 1}, st)

	s.Clear()
	assert.Empty(t, s.GetEvents("", 10))
	assert.Equal(t, 0, s.Stats().Total)
}

func TestSink_EmptyLogReturnsEmptySlice(t *testing.T) {
	s := NewSink(nil)
	got := s.GetEvents(TypeAlert, 5)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSink_DeliveryFailureIsSwallowed(t *testing.T) {
	d := &recordingDeliverer{err: errors.New("boom")}
	s := NewSink(logging.Discard(), d)

	ev := s.Alert("p1", "Alice", 0.99, "cam1", nil)
	assert.Equal(t, TypeAlert, ev.Type)
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, 1, d.count())
	assert.Len(t, s.GetEvents("", 10), 1)
}

func TestSink_RecordDoesNotWaitForDelivery(t *testing.T) {
	d := &recordingDeliverer{block: make(chan struct{})}
	s := NewSink(logging.Discard(), d)

	done := make(chan struct{})
	go func() {
		for n := 0; n < 10; n++ {
			s.Detection(0, nil, "cam")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a stalled deliverer")
	}
	close(d.block)
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 10, d.count())
}

func TestSink_RecordAfterClose(t *testing.T) {
	d := &recordingDeliverer{}
	s := NewSink(logging.Discard(), d)
	require.NoError(t, s.Close(context.Background()))

	s.Detection(0, nil, "late")
	assert.Len(t, s.GetEvents("", 10), 1)
	assert.Zero(t, d.count())
}

func TestEvent_JSONShape(t *testing.T) {
	s := NewSink(logging.Discard())
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 500, time.FixedZone("X", 3600)) }

	ev := s.Track("p1", "Alice", "rtsp://cam", intPtr(42), 12.5)
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2024-05-01T11:00:00.0000005Z", decoded["timestamp"])
	assert.Equal(t, "track", decoded["type"])
	assert.Equal(t, "rtsp://cam", decoded["source"])
	payload := decoded["data"].(map[string]any)
	assert.Equal(t, "Alice", payload["person_name"])
	assert.Equal(t, float64(42), payload["frame_number"])
	assert.Equal(t, 12.5, payload["timestamp"])

	still := s.Track("p1", "Alice", "door.jpg", nil, 0)
	data, err = json.Marshal(still)
	require.NoError(t, err)
	decoded = nil
	require.NoError(t, json.Unmarshal(data, &decoded))
	payload = decoded["data"].(map[string]any)
	assert.NotContains(t, payload, "frame_number")
	assert.Contains(t, payload, "timestamp")
}

func intPtr(i int) *int { return &i }

func TestParseType(t *testing.T) {
	for _, s := range []string{"", "detection", "alert", "track"} {
		_, ok := ParseType(s)
		assert.True(t, ok, s)
	}
	_, ok := ParseType("bogus")
	assert.False(t, ok)
}
