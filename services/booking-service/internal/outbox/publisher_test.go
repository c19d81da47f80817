package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/salonbook/salonbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type fakeSource struct {
	mu        sync.Mutex
	pending   []Record
	published []int64
}

func (f *fakeSource) Relay(ctx context.Context, limit int, fn func(context.Context, []Record) error) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := f.pending
	if len(batch) > limit {
		batch = batch[:limit]
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}
	for _, r := range batch {
		f.published = append(f.published, r.ID)
	}
	f.pending = f.pending[len(batch):]
	return len(batch), nil
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func records(n int) []Record {
	out := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Record{
			ID:      int64(i),
			EventID: "evt-" + string(rune('a'+i)),
			Event: Event{
				AggregateType: "appointment",
				AggregateID:   "appt-1",
				EventType:     "booking.appointment.created.v1",
				Payload:       []byte(`{"appointment_id":"appt-1"}`),
			},
			Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		})
	}
	return out
}

func TestPublishOnceWritesAndMarks(t *testing.T) {
	src := &fakeSource{pending: records(3)}
	w := &fakeWriter{}
	p := NewPublisher(src, w, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{BatchSize: 2})

	n, err := p.PublishOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("first batch: n=%d err=%v", n, err)
	}
	n, err = p.PublishOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("second batch: n=%d err=%v", n, err)
	}
	if len(w.msgs) != 3 || len(src.published) != 3 {
		t.Fatalf("expected 3 messages and 3 marks, got %d/%d", len(w.msgs), len(src.published))
	}

	msg := w.msgs[0]
	if msg.Topic != "booking.appointment.created.v1" || string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected message routing %q %q", msg.Topic, msg.Key)
	}
	if kafkax.HeaderValue(msg.Headers, "event_id") == "" || kafkax.HeaderValue(msg.Headers, "event_type") == "" {
		t.Fatalf("missing metadata headers: %v", msg.Headers)
	}
}

func TestPublishOnceKeepsRecordsOnWriteFailure(t *testing.T) {
	src := &fakeSource{pending: records(2)}
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(src, w, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})

	if _, err := p.PublishOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(src.pending) != 2 || len(src.published) != 0 {
		t.Fatalf("records must stay pending after a failed write")
	}
}
