// Package relay forwards every applied Frame to a Kafka topic.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"floodwatch/internal/config"
	"floodwatch/internal/render"
)

var ErrQueueFull = errors.New("relay queue full, dropping frame")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka is a render.Target. Publish only enqueues; Run does the writes so a
// slow broker never holds up rendering.
type Kafka struct {
	writer  messageWriter
	queue   chan kafka.Message
	logger  *slog.Logger
	backoff time.Duration
	dedupe  *dedupeCache
	now     func() time.Time
}

func NewKafka(cfg config.RelayConfig, logger *slog.Logger) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	if logger != nil {
		logger.Info("frame relay enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "dedupe_window", cfg.DedupeWindow)
	}
	return newKafka(w, cfg.DedupeWindow, logger)
}

func newKafka(w messageWriter, dedupeWindow time.Duration, logger *slog.Logger) *Kafka {
	return &Kafka{
		writer:  w,
		queue:   make(chan kafka.Message, 64),
		logger:  logger,
		backoff: 200 * time.Millisecond,
		dedupe:  newDedupeCache(dedupeWindow),
		now:     time.Now,
	}
}

func (k *Kafka) Publish(ctx context.Context, frame *render.Frame) error {
	value, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	key := ""
	if frame.Snapshot != nil {
		key = frame.Snapshot.LocationID
		hash, err := hashSnapshot(frame.Snapshot)
		if err != nil {
			return err
		}
		if k.dedupe.Seen(key+"|"+hash, k.now()) {
			if k.logger != nil {
				k.logger.Debug("skipping unchanged frame", "seq", frame.Seq)
			}
			return nil
		}
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  frame.AppliedAt,
		Headers: []kafka.Header{
			{Key: "seq", Value: []byte(strconv.FormatUint(frame.Seq, 10))},
		},
	}
	select {
	case k.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Run writes queued frames until ctx ends, then closes the writer.
func (k *Kafka) Run(ctx context.Context) {
	defer k.writer.Close()
	for {
		select {
		case msg := <-k.queue:
			for {
				err := k.writer.WriteMessages(ctx, msg)
				if err == nil {
					break
				}
				if ctx.Err() != nil {
					return
				}
				if k.logger != nil {
					k.logger.Warn("kafka write error", "err", err)
				}
				if !backoffSleep(ctx, k.backoff) {
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func backoffSleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
