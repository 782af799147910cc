package draw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jbest-gaming/numbers-bet-platform/internal/modality"
)

// Postgres implementa a máquina de estados de sorteios. Cada transição é um
// UPDATE condicionado ao status de origem, então gatilhos duplicados do
// scheduler são absorvidos sem efeito.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Schedule cria um sorteio em "scheduled" para a modalidade.
func (p *Postgres) Schedule(ctx context.Context, modalityID string, openAt, closeAt time.Time) (Draw, error) {
	if !closeAt.After(openAt) {
		return Draw{}, fmt.Errorf("scheduled_close_at must be after scheduled_open_at")
	}
	d := Draw{
		ID:               uuid.NewString(),
		ModalityID:       modalityID,
		ScheduledOpenAt:  openAt,
		ScheduledCloseAt: closeAt,
		Status:           StatusScheduled,
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO draws (id, modality_id, scheduled_open_at, scheduled_close_at, status)
		VALUES ($1,$2,$3,$4,'scheduled')`,
		d.ID, d.ModalityID, d.ScheduledOpenAt, d.ScheduledCloseAt)
	if err != nil {
		return Draw{}, err
	}
	return d, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (Draw, error) {
	return scanOne(p.db.QueryRowContext(ctx, selectDraw+` WHERE id=$1`, id))
}

// Current retorna o sorteio aberto mais próximo do fechamento para a modalidade.
func (p *Postgres) Current(ctx context.Context, modalityID string) (Draw, error) {
	return scanOne(p.db.QueryRowContext(ctx,
		selectDraw+` WHERE modality_id=$1 AND status='open' ORDER BY scheduled_close_at LIMIT 1`,
		modalityID))
}

// Open abre o sorteio para apostas. Só sai de "scheduled".
func (p *Postgres) Open(ctx context.Context, id string) error {
	return p.transition(ctx, id, StatusScheduled, StatusOpen,
		`UPDATE draws SET status='open', updated_at=NOW() WHERE id=$1 AND status='scheduled'`)
}

// Close encerra a janela de apostas. Só sai de "open".
func (p *Postgres) Close(ctx context.Context, id string) error {
	return p.transition(ctx, id, StatusOpen, StatusClosed,
		`UPDATE draws SET status='closed', updated_at=NOW() WHERE id=$1 AND status='open'`)
}

// RecordResult registra os números sorteados (fornecidos de fora, nunca
// gerados aqui) e move o sorteio para "drawn". Só sai de "closed".
// Os números são validados contra a modalidade do sorteio antes de qualquer
// escrita: nenhum chamador consegue persistir um resultado fora da regra.
func (p *Postgres) RecordResult(ctx context.Context, id string, winning []int) error {
	var m modality.Modality
	err := p.db.QueryRowContext(ctx, `
		SELECT m.number_count, m.range_min, m.range_max
		FROM draws d JOIN modalities m ON m.id = d.modality_id
		WHERE d.id=$1`, id).Scan(&m.NumberCount, &m.RangeMin, &m.RangeMax)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDrawNotFound
	}
	if err != nil {
		return err
	}
	if err := modality.ValidateResult(m, winning); err != nil {
		return err
	}

	res, err := p.db.ExecContext(ctx, `
		UPDATE draws SET status='drawn', winning_numbers=$2, drawn_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND status='closed'`,
		id, pq.Array(winning))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	return p.explain(ctx, id, StatusDrawn)
}

// MarkSettled é a transição terminal, só alcançável de "drawn" e somente
// quando nenhuma aposta do sorteio continua em pending.
func (p *Postgres) MarkSettled(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE draws SET status='settled', updated_at=NOW()
		WHERE id=$1 AND status='drawn'
		  AND NOT EXISTS (SELECT 1 FROM bets WHERE draw_id=$1 AND status='pending')`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	cur, err := p.status(ctx, id)
	if err != nil {
		return err
	}
	if cur == StatusSettled {
		return nil
	}
	if cur == StatusDrawn {
		return ErrBetsStillPending
	}
	return fmt.Errorf("%w: %s -> settled", ErrInvalidTransition, cur)
}

// Cancel só é permitido antes da apuração: scheduled, open ou closed.
func (p *Postgres) Cancel(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE draws SET status='cancelled', updated_at=NOW()
		WHERE id=$1 AND status IN ('scheduled','open','closed')`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	return p.explain(ctx, id, StatusCancelled)
}

// ListDueOpen lista sorteios agendados cuja abertura já venceu.
func (p *Postgres) ListDueOpen(ctx context.Context, now time.Time) ([]Draw, error) {
	return p.list(ctx, selectDraw+` WHERE status='scheduled' AND scheduled_open_at <= $1 ORDER BY scheduled_open_at`, now)
}

// ListDueClose lista sorteios abertos cuja janela de apostas já venceu.
func (p *Postgres) ListDueClose(ctx context.Context, now time.Time) ([]Draw, error) {
	return p.list(ctx, selectDraw+` WHERE status='open' AND scheduled_close_at <= $1 ORDER BY scheduled_close_at`, now)
}

// ListStuckDrawn lista sorteios apurados e ainda não liquidados — alvo da
// varredura de recuperação do settlement-worker.
func (p *Postgres) ListStuckDrawn(ctx context.Context) ([]Draw, error) {
	return p.list(ctx, selectDraw+` WHERE status='drawn' ORDER BY drawn_at`)
}

func (p *Postgres) transition(ctx context.Context, id string, from, to Status, stmt string) error {
	res, err := p.db.ExecContext(ctx, stmt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	return p.explain(ctx, id, to)
}

// explain decide entre replay idempotente e transição inválida.
func (p *Postgres) explain(ctx context.Context, id string, target Status) error {
	cur, err := p.status(ctx, id)
	if err != nil {
		return err
	}
	if cur == target {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, target)
}

func (p *Postgres) status(ctx context.Context, id string) (Status, error) {
	var s string
	err := p.db.QueryRowContext(ctx, `SELECT status FROM draws WHERE id=$1`, id).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrDrawNotFound
	}
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

func (p *Postgres) list(ctx context.Context, query string, args ...any) ([]Draw, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Draw
	for rows.Next() {
		d, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const selectDraw = `
	SELECT id, modality_id, scheduled_open_at, scheduled_close_at, status, winning_numbers, drawn_at, created_at
	FROM draws`

type rowScanner interface{ Scan(dest ...any) error }

func scanOne(row *sql.Row) (Draw, error) {
	d, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Draw{}, ErrDrawNotFound
	}
	return d, err
}

func scanRow(r rowScanner) (Draw, error) {
	var d Draw
	var status string
	var winning pq.Int64Array
	if err := r.Scan(&d.ID, &d.ModalityID, &d.ScheduledOpenAt, &d.ScheduledCloseAt,
		&status, &winning, &d.DrawnAt, &d.CreatedAt); err != nil {
		return Draw{}, err
	}
	d.Status = Status(status)
	if winning != nil {
		d.WinningNumbers = make([]int, len(winning))
		for i, v := range winning {
			d.WinningNumbers[i] = int(v)
		}
	}
	return d, nil
}
