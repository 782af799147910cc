package settlement

import (
	"context"

	"github.com/jbest-gaming/numbers-bet-platform/internal/bet"
	"github.com/jbest-gaming/numbers-bet-platform/internal/draw"
	"github.com/jbest-gaming/numbers-bet-platform/internal/modality"
	"github.com/jbest-gaming/numbers-bet-platform/internal/wallet"
	"github.com/jbest-gaming/numbers-bet-platform/pkg/contracts/events"
)

// O engine orquestra mas não é dono de nada: lê apostas e sorteios e escreve
// só através destas interfaces.

type Wallets interface {
	ConsumeReservation(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
	Credit(ctx context.Context, userID string, amountCents int64, relatedBetID string) (wallet.LedgerEntry, error)
}

type Bets interface {
	ListPendingByDraw(ctx context.Context, drawID string) ([]bet.Bet, error)
	Transition(ctx context.Context, betID string, newStatus bet.Status, prizeCents int64) error
	Report(ctx context.Context, drawID string) (bet.DrawReport, error)
}

type Draws interface {
	Get(ctx context.Context, id string) (draw.Draw, error)
	MarkSettled(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

type Registry interface {
	Get(id string) (modality.Modality, error)
}

// Locker serializa a liquidação de um mesmo sorteio entre workers.
type Locker interface {
	Acquire(ctx context.Context, drawID string) (bool, error)
	Unlock(ctx context.Context, drawID string) error
}

type Publisher interface {
	PublishBetSettled(ctx context.Context, e events.BetSettled) error
	PublishDrawSettled(ctx context.Context, e events.DrawSettled) error
}
