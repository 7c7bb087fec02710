package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/constants"
)

// Deliverer forwards one event to an external target.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Sink owns the process-lifetime event log. Recording always succeeds;
// forwarding happens on a background goroutine and failures are only logged.
type Sink struct {
	mu      sync.RWMutex
	events  []Event
	dropped int

	deliverers []Deliverer
	queue      chan Event
	done       chan struct{}
	closed     bool
	logger     *slog.Logger

	now func() time.Time
}

// NewSink creates a sink forwarding to deliverers. With none, nothing runs in the background.
func NewSink(logger *slog.Logger, deliverers ...Deliverer) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		deliverers: deliverers,
		logger:     logger,
		done:       make(chan struct{}),
		now:        time.Now,
	}
	if len(deliverers) > 0 {
		s.queue = make(chan Event, constants.DeliveryQueueSize)
		go s.run()
	} else {
		close(s.done)
	}
	return s
}

func (s *Sink) run() {
	defer close(s.done)
	for ev := range s.queue {
		for _, d := range s.deliverers {
			if err := d.Deliver(context.Background(), ev); err != nil {
				s.logger.Warn("event delivery failed", "target", d.Name(), "type", ev.Type, "error", err)
			}
		}
	}
}

// Record appends an event and queues it for delivery.
func (s *Sink) Record(typ Type, source string, data any) Event {
	ev := Event{Timestamp: s.now().UTC(), Type: typ, Source: source, Data: data}

	dropped := false
	s.mu.Lock()
	s.events = append(s.events, ev)
	if s.queue != nil && !s.closed {
		select {
		case s.queue <- ev:
		default:
			s.dropped++
			dropped = true
		}
	}
	s.mu.Unlock()

	if dropped {
		s.logger.Warn("event delivery queue full, dropping", "type", ev.Type)
	}
	return ev
}

// Alert records that a watchlist person was recognised.
func (s *Sink) Alert(personID, personName string, similarity float64, source string, metadata map[string]any) Event {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return s.Record(TypeAlert, source, AlertData{
		PersonID:   personID,
		PersonName: personName,
		Similarity: similarity,
		ImagePath:  source,
		Metadata:   metadata,
	})
}

// Track records a sighting of a person at location. frameNumber is nil when
// the sighting did not come from a video frame. A zero timestamp means now.
func (s *Sink) Track(personID, personName, location string, frameNumber *int, timestamp float64) Event {
	if timestamp == 0 {
		timestamp = float64(s.now().UnixNano()) / float64(time.Second)
	}
	return s.Record(TypeTrack, location, TrackData{
		PersonID:    personID,
		PersonName:  personName,
		Location:    location,
		FrameNumber: frameNumber,
		Timestamp:   timestamp,
	})
}

// Detection records the faces found in one frame or image.
func (s *Sink) Detection(numFaces int, bboxes [][4]int, source string) Event {
	if bboxes == nil {
		bboxes = [][4]int{}
	}
	return s.Record(TypeDetection, source, DetectionData{NumFaces: numFaces, BBoxes: bboxes, Source: source})
}

// GetEvents returns the last limit events, optionally of one type, oldest first.
// A limit below 1 selects the default.
func (s *Sink) GetEvents(typ Type, limit int) []Event {
	if limit < 1 {
		limit = constants.DefaultEventLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if typ == "" || s.events[i].Type == typ {
			out = append(out, s.events[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []Event{}
	}
	return out
}

// Clear empties the log.
func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// Stats counts the logged events per type.
func (s *Sink) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.events), Dropped: s.dropped}
	for _, ev := range s.events {
		switch ev.Type {
		case TypeDetection:
			st.Detections++
		case TypeAlert:
			st.Alerts++
		case TypeTrack:
			st.Tracks++
		}
	}
	return st
}

// HasDeliverers reports whether any external target is configured.
func (s *Sink) HasDeliverers() bool { return len(s.deliverers) > 0 }

// Close stops accepting deliveries and waits for queued ones until ctx is done.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if s.queue != nil {
			close(s.queue)
		}
	}
	s.mu.Unlock()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
