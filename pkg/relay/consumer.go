package relay

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mahaj/taskchat/pkg/model"
)

const retryDelay = time.Second

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
}

// Consume reads relayed messages and hands each to fn until ctx is done.
// Records that do not decode are logged and skipped; read errors are
// retried after a short pause.
func Consume(ctx context.Context, r Reader, log *zap.Logger, fn func(model.Message)) error {
	if log == nil {
		log = zap.NewNop()
	}
	for {
		rec, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			log.Warn("kafka read failed, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}

		msg, err := model.DecodeMessage(rec.Value)
		if err != nil {
			log.Warn("skipping undecodable record", zap.ByteString("key", rec.Key), zap.Int64("offset", rec.Offset), zap.Error(err))
			continue
		}
		fn(msg)
	}
}
