package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"

	"github.com/mahaj/taskchat/pkg/metrics"
	"github.com/mahaj/taskchat/pkg/model"
	"github.com/mahaj/taskchat/pkg/realtime"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func TestForwardsInOrder(t *testing.T) {
	w := &fakeWriter{}
	f := New(w, 16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	f.Enqueue(model.Message{ID: "1", Content: "a", SenderID: "u-1", Route: model.Direct("u-2")})
	f.Enqueue(model.Message{ID: "2", Content: "b", SenderID: "u-1", Route: model.Project("p-1")})

	deadline := time.Now().Add(2 * time.Second)
	for len(w.written()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	got := w.written()
	if len(got) != 2 {
		t.Fatalf("wrote %d messages", len(got))
	}
	if string(got[0].Key) != "1" || string(got[1].Key) != "2" {
		t.Errorf("keys = %s, %s", got[0].Key, got[1].Key)
	}
	var body map[string]any
	if err := json.Unmarshal(got[1].Value, &body); err != nil {
		t.Fatal(err)
	}
	if body["type"] != "project" || body["projectId"] != "p-1" || body["content"] != "b" {
		t.Errorf("value = %s", got[1].Value)
	}
	if h := got[1].Headers; len(h) != 1 || string(h[0].Value) != "project:p-1" {
		t.Errorf("headers = %v", h)
	}
}

func TestFlushOnShutdown(t *testing.T) {
	w := &fakeWriter{}
	f := New(w, 16, nil)
	f.Enqueue(model.Message{ID: "9", Route: model.Direct("u-2")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.Run(ctx)

	if len(w.written()) != 1 {
		t.Fatalf("queued message was not flushed")
	}
	f.Close()
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestBackpressureDrops(t *testing.T) {
	w := &fakeWriter{}
	f := New(w, 1, nil)
	before := testutil.ToFloat64(metrics.RelayBackpressure)

	f.Enqueue(model.Message{ID: "1"})
	f.Enqueue(model.Message{ID: "2"})

	if got := testutil.ToFloat64(metrics.RelayBackpressure) - before; got != 1 {
		t.Fatalf("backpressure delta = %v", got)
	}
	if len(f.queue) != 1 {
		t.Fatalf("queue len = %d", len(f.queue))
	}
}

func TestWriteErrorsCounted(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	f := New(w, 4, nil)
	before := testutil.ToFloat64(metrics.RelayWriteErrors)

	f.Enqueue(model.Message{ID: "1"})
	f.Enqueue(model.Message{ID: "2"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.Run(ctx)

	if got := testutil.ToFloat64(metrics.RelayWriteErrors) - before; got != 2 {
		t.Fatalf("write errors delta = %v", got)
	}
}

type fakeSource struct {
	fns []func(model.Message)
}

func (s *fakeSource) OnMessage(fn func(model.Message)) func() {
	s.fns = append(s.fns, fn)
	return func() { s.fns = nil }
}

func TestAttach(t *testing.T) {
	f := New(&fakeWriter{}, 4, nil)
	src := &fakeSource{}
	unsubscribe := f.Attach(src)

	for _, fn := range src.fns {
		fn(model.Message{ID: "7"})
	}
	if len(f.queue) != 1 {
		t.Fatalf("queue len = %d", len(f.queue))
	}
	unsubscribe()
	if len(src.fns) != 0 {
		t.Fatal("still subscribed")
	}
}

var _ Source = (*realtime.Conn)(nil)

// slowWriter holds a write open until released, then reports whether the
// write context had been cancelled meanwhile.
type slowWriter struct {
	fakeWriter
	started chan struct{}
	release chan struct{}
}

func (w *slowWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	close(w.started)
	select {
	case <-w.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return w.fakeWriter.WriteMessages(ctx, msgs...)
}

func TestShutdownDoesNotAbortInFlightWrite(t *testing.T) {
	w := &slowWriter{started: make(chan struct{}), release: make(chan struct{})}
	f := New(w, 4, nil)
	before := testutil.ToFloat64(metrics.RelayWriteErrors)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	f.Enqueue(model.Message{ID: "1", Route: model.Direct("u-2")})

	select {
	case <-w.started:
	case <-time.After(2 * time.Second):
		t.Fatal("write never started")
	}
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(w.release)

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := len(w.written()); n != 1 {
		t.Fatalf("wrote %d messages", n)
	}
	if got := testutil.ToFloat64(metrics.RelayWriteErrors) - before; got != 0 {
		t.Fatalf("write errors delta = %v", got)
	}
}
