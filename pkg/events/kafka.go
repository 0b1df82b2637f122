package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/rindah89/barter/pkg/model"
)

// KafkaPublisher writes message events to one topic keyed by room id, so the
// events of a room stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *KafkaPublisher) PublishMessageEvent(ctx context.Context, ev model.MessageEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.RoomID),
		Value: value,
		Time:  time.Now(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	// GroupID should be unique per gateway instance so every instance sees
	// every event.
	GroupID string
}

// KafkaConsumer reads message events and hands them to a handler.
type KafkaConsumer struct {
	reader *kafka.Reader
	log    zerolog.Logger
}

func NewKafkaConsumer(cfg ConsumerConfig, logger zerolog.Logger) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     250 * time.Millisecond,
	})
	return &KafkaConsumer{reader: r, log: logger.With().Str("component", "kafka-consumer").Logger()}
}

// Consume blocks until ctx is cancelled. Undecodable records are skipped.
func (c *KafkaConsumer) Consume(ctx context.Context, handle func(model.MessageEvent)) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			c.log.Error().Err(err).Msg("read message failed, retrying in 1s")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		ev, err := Decode(m.Value)
		if err != nil {
			c.log.Warn().Err(err).Int64("offset", m.Offset).Msg("skipping undecodable event")
			continue
		}
		handle(ev)
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

var ErrMissingRoom = errors.New("event without room_id")

// Decode parses one encoded MessageEvent.
func Decode(b []byte) (model.MessageEvent, error) {
	var ev model.MessageEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, err
	}
	if ev.RoomID == "" {
		return ev, ErrMissingRoom
	}
	return ev, nil
}
