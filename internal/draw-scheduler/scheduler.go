package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jbest-gaming/numbers-bet-platform/internal/draw"
)

type Draws interface {
	ListDueOpen(ctx context.Context, now time.Time) ([]draw.Draw, error)
	ListDueClose(ctx context.Context, now time.Time) ([]draw.Draw, error)
	Open(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
}

// Ticker avança o ciclo de vida dos sorteios no relógio de parede:
// abre os agendados vencidos e fecha os abertos vencidos. Rodar o tick
// duas vezes é inofensivo — as transições são status-gated no banco.
type Ticker struct {
	log   *zap.Logger
	draws Draws
}

func NewTicker(log *zap.Logger, d Draws) *Ticker {
	return &Ticker{log: log, draws: d}
}

func (t *Ticker) Tick(ctx context.Context) {
	now := time.Now()

	due, err := t.draws.ListDueOpen(ctx, now)
	if err != nil {
		t.log.Warn("list due open", zap.Error(err))
	}
	for _, d := range due {
		if err := t.draws.Open(ctx, d.ID); err != nil {
			t.log.Warn("open draw", zap.String("drawId", d.ID), zap.Error(err))
			continue
		}
		t.log.Info("draw opened", zap.String("drawId", d.ID), zap.String("modality", d.ModalityID))
	}

	due, err = t.draws.ListDueClose(ctx, now)
	if err != nil {
		t.log.Warn("list due close", zap.Error(err))
	}
	for _, d := range due {
		if err := t.draws.Close(ctx, d.ID); err != nil {
			t.log.Warn("close draw", zap.String("drawId", d.ID), zap.Error(err))
			continue
		}
		t.log.Info("draw closed", zap.String("drawId", d.ID), zap.String("modality", d.ModalityID))
	}
}
