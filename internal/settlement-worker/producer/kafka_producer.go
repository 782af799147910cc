package producer

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/jbest-gaming/numbers-bet-platform/pkg/contracts/events"
)

// KafkaPublisher emite os eventos de resultado da liquidação.
type KafkaPublisher struct {
	BetSettledWriter  *kafka.Writer
	DrawSettledWriter *kafka.Writer
}

func NewKafkaPublisher(betSettled, drawSettled *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{BetSettledWriter: betSettled, DrawSettledWriter: drawSettled}
}

func (p *KafkaPublisher) PublishBetSettled(ctx context.Context, e events.BetSettled) error {
	b, _ := json.Marshal(e)
	return p.BetSettledWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.BetID), Value: b})
}

func (p *KafkaPublisher) PublishDrawSettled(ctx context.Context, e events.DrawSettled) error {
	b, _ := json.Marshal(e)
	return p.DrawSettledWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.DrawID), Value: b})
}
