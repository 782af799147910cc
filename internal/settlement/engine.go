package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jbest-gaming/numbers-bet-platform/internal/bet"
	"github.com/jbest-gaming/numbers-bet-platform/internal/draw"
	"github.com/jbest-gaming/numbers-bet-platform/internal/modality"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/metrics"
	"github.com/jbest-gaming/numbers-bet-platform/internal/wallet"
	"github.com/jbest-gaming/numbers-bet-platform/pkg/contracts/events"
)

var (
	ErrSettlementInProgress = errors.New("settlement already in progress for draw")
	ErrDrawNotDrawn         = errors.New("draw has no recorded result")
)

// Engine liquida sorteios: avalia cada aposta pendente contra os números
// sorteados, credita prêmios e fecha o sorteio. Todo o fluxo é seguro para
// reexecução — crédito idempotente por aposta, transições só pra frente —
// então retomar depois de um crash apenas rederiva o que já foi aplicado.
type Engine struct {
	log     *zap.Logger
	wallets Wallets
	bets    Bets
	draws   Draws
	reg     Registry
	lock    Locker
	publ    Publisher
}

func NewEngine(log *zap.Logger, w Wallets, b Bets, d Draws, r Registry, l Locker, p Publisher) *Engine {
	return &Engine{log: log, wallets: w, bets: b, draws: d, reg: r, lock: l, publ: p}
}

// SettleDraw resolve todas as apostas pendentes de um sorteio apurado.
// Serializado por sorteio via lock; sorteios distintos liquidam em paralelo.
func (e *Engine) SettleDraw(ctx context.Context, drawID string) error {
	ok, err := e.lock.Acquire(ctx, drawID)
	if err != nil {
		return fmt.Errorf("acquire settle lock: %w", err)
	}
	if !ok {
		return ErrSettlementInProgress
	}
	defer func() {
		if err := e.lock.Unlock(context.WithoutCancel(ctx), drawID); err != nil {
			e.log.Warn("release settle lock", zap.String("drawId", drawID), zap.Error(err))
		}
	}()

	d, err := e.draws.Get(ctx, drawID)
	if err != nil {
		return err
	}
	if d.Status == draw.StatusSettled {
		return nil // gatilho repetido, nada a fazer
	}
	if d.Status != draw.StatusDrawn {
		return fmt.Errorf("%w: draw %s is %s", ErrDrawNotDrawn, drawID, d.Status)
	}

	m, err := e.reg.Get(d.ModalityID)
	if err != nil {
		return err
	}

	start := time.Now()
	pending, err := e.bets.ListPendingByDraw(ctx, drawID)
	if err != nil {
		return err
	}

	var won int
	var totalPrize int64
	for i := range pending {
		outcome, prize, err := e.settleOne(ctx, m, d, &pending[i])
		if err != nil {
			return fmt.Errorf("settle bet %s: %w", pending[i].ID, err)
		}
		if outcome == bet.StatusWon {
			won++
			totalPrize += prize
		}
	}

	// releitura: a liquidação só conta como completa quando nada restou pendente
	remaining, err := e.bets.ListPendingByDraw(ctx, drawID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return fmt.Errorf("draw %s still has %d pending bets after settlement pass", drawID, len(remaining))
	}

	if err := e.draws.MarkSettled(ctx, drawID); err != nil {
		return err
	}
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())

	// Totais do evento vêm do banco, não do passe atual: uma retomada
	// pós-crash liquida só o resto, mas o evento reporta o sorteio inteiro.
	rep, err := e.bets.Report(ctx, drawID)
	if err != nil {
		e.log.Warn("draw report", zap.String("drawId", drawID), zap.Error(err))
		rep.Total, rep.Won, rep.TotalPrizeCents = len(pending), won, totalPrize
	}

	if err := e.publ.PublishDrawSettled(ctx, events.DrawSettled{
		DrawID:          drawID,
		TotalBets:       rep.Total,
		TotalWon:        rep.Won,
		TotalPrizeCents: rep.TotalPrizeCents,
		Ts:              time.Now(),
	}); err != nil {
		e.log.Warn("publish draw_settled", zap.String("drawId", drawID), zap.Error(err))
	}

	e.log.Info("draw settled",
		zap.String("drawId", drawID),
		zap.Int("bets", rep.Total),
		zap.Int("won", rep.Won),
		zap.Int64("totalPrizeCents", rep.TotalPrizeCents),
	)
	return nil
}

// settleOne resolve uma aposta. Ordem das escritas importa: a reserva vira
// débito, o prêmio é creditado e só então o status muda — assim uma aposta
// won sempre tem o CREDIT correspondente no ledger.
func (e *Engine) settleOne(ctx context.Context, m modality.Modality, d draw.Draw, b *bet.Bet) (bet.Status, int64, error) {
	if err := e.wallets.ConsumeReservation(ctx, b.ReservationID); err != nil {
		return "", 0, fmt.Errorf("consume reservation %s: %w", b.ReservationID, err)
	}

	outcome := bet.StatusLost
	var prize int64
	if modality.Matches(m, b.Numbers, d.WinningNumbers) {
		outcome = bet.StatusWon
		prize = b.StakeCents * m.PayoutMultiplier
		if _, err := e.wallets.Credit(ctx, b.UserID, prize, b.ID); err != nil {
			return "", 0, fmt.Errorf("credit prize: %w", err)
		}
		metrics.PrizeCentsCredited.Add(float64(prize))
	}

	if err := e.bets.Transition(ctx, b.ID, outcome, prize); err != nil {
		return "", 0, err
	}
	metrics.BetsSettled.WithLabelValues(string(outcome)).Inc()

	if err := e.publ.PublishBetSettled(ctx, events.BetSettled{
		BetID:      b.ID,
		UserID:     b.UserID,
		DrawID:     d.ID,
		Status:     string(outcome),
		PrizeCents: prize,
		Ts:         time.Now(),
	}); err != nil {
		e.log.Warn("publish bet_settled", zap.String("betId", b.ID), zap.Error(err))
	}
	return outcome, prize, nil
}

// CancelDraw cancela um sorteio antes da apuração: cada aposta pendente volta
// para o jogador — reserva liberada na íntegra, nunca consumida, sem prêmio.
func (e *Engine) CancelDraw(ctx context.Context, drawID string) error {
	if err := e.draws.Cancel(ctx, drawID); err != nil {
		return err
	}

	pending, err := e.bets.ListPendingByDraw(ctx, drawID)
	if err != nil {
		return err
	}
	for i := range pending {
		b := &pending[i]
		if err := e.wallets.Release(ctx, b.ReservationID); err != nil {
			// replay de cancelamento: reserva já devolvida em rodada anterior
			if !errors.Is(err, wallet.ErrAlreadyReleased) {
				return fmt.Errorf("release reservation %s: %w", b.ReservationID, err)
			}
		}
		if err := e.bets.Transition(ctx, b.ID, bet.StatusCancelled, 0); err != nil {
			return err
		}
		metrics.BetsSettled.WithLabelValues(string(bet.StatusCancelled)).Inc()

		if err := e.publ.PublishBetSettled(ctx, events.BetSettled{
			BetID:  b.ID,
			UserID: b.UserID,
			DrawID: drawID,
			Status: string(bet.StatusCancelled),
			Ts:     time.Now(),
		}); err != nil {
			e.log.Warn("publish bet_settled", zap.String("betId", b.ID), zap.Error(err))
		}
	}

	e.log.Info("draw cancelled", zap.String("drawId", drawID), zap.Int("refundedBets", len(pending)))
	return nil
}
