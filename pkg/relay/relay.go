// Package relay copies live chat messages into a Kafka topic so other
// services can consume them without holding a websocket.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mahaj/taskchat/pkg/metrics"
	"github.com/mahaj/taskchat/pkg/model"
)

const (
	maxBatch     = 100
	flushTimeout = 5 * time.Second
)

// Writer is the part of *kafka.Writer the forwarder uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Source is anything that publishes live messages, typically a
// *realtime.Conn.
type Source interface {
	OnMessage(fn func(model.Message)) func()
}

func NewKafkaWriter(brokers []string, topic string, batchTimeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireOne,
	}
}

type Forwarder struct {
	w     Writer
	queue chan model.Message
	log   *zap.Logger
}

func New(w Writer, queueSize int, log *zap.Logger) *Forwarder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Forwarder{
		w:     w,
		queue: make(chan model.Message, queueSize),
		log:   log.With(zap.String("component", "relay")),
	}
}

// Attach subscribes the forwarder to src and returns the unsubscribe func.
func (f *Forwarder) Attach(src Source) func() {
	return src.OnMessage(f.Enqueue)
}

// Enqueue never blocks the caller: when the queue is full the message is
// dropped and counted.
func (f *Forwarder) Enqueue(m model.Message) {
	select {
	case f.queue <- m:
	default:
		metrics.RelayBackpressure.Inc()
		f.log.Warn("queue full, dropping message", zap.Stringer("id", m.ID), zap.Stringer("route", m.Route))
	}
}

// Run writes queued messages until ctx is done, then flushes what is left.
func (f *Forwarder) Run(ctx context.Context) error {
	batch := make([]kafka.Message, 0, maxBatch)
	for {
		select {
		case <-ctx.Done():
			f.flush()
			return nil
		case m := <-f.queue:
			batch = append(batch[:0], f.record(m))
			batch = f.drain(batch)
			f.write(ctx, batch)
		}
	}
}

func (f *Forwarder) drain(batch []kafka.Message) []kafka.Message {
	for len(batch) < maxBatch {
		select {
		case m := <-f.queue:
			batch = append(batch, f.record(m))
		default:
			return batch
		}
	}
	return batch
}

func (f *Forwarder) flush() {
	batch := f.drain(nil)
	if len(batch) == 0 {
		return
	}
	f.write(context.Background(), batch)
}

// write is detached from ctx cancellation: a batch already taken off the
// queue is written even when shutdown starts mid-write, bounded by
// flushTimeout.
func (f *Forwarder) write(ctx context.Context, batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := f.w.WriteMessages(ctx, batch...); err != nil {
		metrics.RelayWriteErrors.Add(float64(len(batch)))
		f.log.Error("kafka write failed", zap.Int("messages", len(batch)), zap.Error(err))
		return
	}
	metrics.RelayForwarded.Add(float64(len(batch)))
	f.log.Debug("forwarded", zap.Int("messages", len(batch)))
}

func (f *Forwarder) record(m model.Message) kafka.Message {
	value, _ := json.Marshal(m)
	return kafka.Message{
		Key:   []byte(m.ID),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "route", Value: []byte(m.Route.String())},
		},
	}
}

// Close closes the underlying writer.
func (f *Forwarder) Close() error {
	return f.w.Close()
}
