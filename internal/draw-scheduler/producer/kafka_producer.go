package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jbest-gaming/numbers-bet-platform/pkg/contracts/events"
)

// KafkaPublisher publica os eventos de ciclo de vida de sorteio consumidos
// pelo settlement-worker.
type KafkaPublisher struct {
	DrawnWriter     *kafka.Writer
	CancelledWriter *kafka.Writer
}

func NewKafkaPublisher(drawn, cancelled *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{DrawnWriter: drawn, CancelledWriter: cancelled}
}

func (p *KafkaPublisher) PublishDrawDrawn(ctx context.Context, e events.DrawDrawn) error {
	e.Ts = time.Now()
	b, _ := json.Marshal(e)
	return p.DrawnWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.DrawID), Value: b})
}

func (p *KafkaPublisher) PublishDrawCancelled(ctx context.Context, e events.DrawCancelled) error {
	e.Ts = time.Now()
	b, _ := json.Marshal(e)
	return p.CancelledWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.DrawID), Value: b})
}
