package bet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// Postgres implementa a persistência de apostas. Única escritora de status de aposta.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Create insere a aposta em pending, condicionada ao sorteio ainda estar aberto.
// A cláusula WHERE EXISTS fecha a janela entre o check de status e o insert:
// nenhuma aposta entra depois que o sorteio sai de "open".
func (p *Postgres) Create(ctx context.Context, b *Bet) (Bet, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO bets (id, user_id, draw_id, modality_id, numbers, stake_cents, status, reservation_id, idempotency_key)
		SELECT $1, $2, $3, $4, $5, $6, 'pending', $7, $8
		WHERE EXISTS (SELECT 1 FROM draws WHERE id = $3 AND status = 'open')`,
		b.ID, b.UserID, b.DrawID, b.ModalityID, pq.Array(b.Numbers), b.StakeCents, b.ReservationID, b.IdempotencyKey)
	if err != nil {
		if isUniqueViolation(err) {
			return Bet{}, ErrDuplicateBet
		}
		return Bet{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Bet{}, ErrDrawNotOpen
	}
	return p.Get(ctx, b.ID)
}

// Get retorna a aposta pelo id.
func (p *Postgres) Get(ctx context.Context, betID string) (Bet, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, selectBet+` WHERE id=$1`, betID))
}

// GetByIdempotencyKey localiza a aposta original de um retry de cliente.
func (p *Postgres) GetByIdempotencyKey(ctx context.Context, key string) (Bet, error) {
	return p.scanOne(p.db.QueryRowContext(ctx, selectBet+` WHERE idempotency_key=$1`, key))
}

// ListPendingByDraw retorna todas as apostas aguardando liquidação do sorteio,
// em ordem estável (created_at, id) para trilha de auditoria determinística.
func (p *Postgres) ListPendingByDraw(ctx context.Context, drawID string) ([]Bet, error) {
	rows, err := p.db.QueryContext(ctx,
		selectBet+` WHERE draw_id=$1 AND status='pending' ORDER BY created_at, id`, drawID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.scanAll(rows)
}

// ListByUser retorna o histórico de apostas do jogador, mais recentes primeiro.
func (p *Postgres) ListByUser(ctx context.Context, userID string, limit int) ([]Bet, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		selectBet+` WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.scanAll(rows)
}

// Transition move a aposta de pending para o status final, gravando prêmio e
// settled_at. Repetir a mesma transição é no-op; qualquer outro salto falha
// com ErrInvalidTransition.
func (p *Postgres) Transition(ctx context.Context, betID string, newStatus Status, prizeCents int64) error {
	if newStatus != StatusWon && newStatus != StatusLost && newStatus != StatusCancelled {
		return ErrInvalidTransition
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE bets SET status=$2, prize_cents=$3, settled_at=NOW()
		WHERE id=$1 AND status='pending'`,
		betID, string(newStatus), prizeCents)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current string
	err = p.db.QueryRowContext(ctx, `SELECT status FROM bets WHERE id=$1`, betID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBetNotFound
	}
	if err != nil {
		return err
	}
	if current == string(newStatus) {
		return nil // replay de liquidação, resultado já aplicado
	}
	return ErrInvalidTransition
}

// CountPendingByDraw diz quantas apostas do sorteio ainda estão em pending.
func (p *Postgres) CountPendingByDraw(ctx context.Context, drawID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bets WHERE draw_id=$1 AND status='pending'`, drawID).Scan(&n)
	return n, err
}

// Report agrega os totais de um sorteio para o relatório administrativo.
func (p *Postgres) Report(ctx context.Context, drawID string) (DrawReport, error) {
	var r DrawReport
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status='pending'),
		       COUNT(*) FILTER (WHERE status='won'),
		       COUNT(*) FILTER (WHERE status='lost'),
		       COUNT(*) FILTER (WHERE status='cancelled'),
		       COALESCE(SUM(stake_cents), 0),
		       COALESCE(SUM(prize_cents) FILTER (WHERE status='won'), 0)
		FROM bets WHERE draw_id=$1`, drawID).
		Scan(&r.Total, &r.Pending, &r.Won, &r.Lost, &r.Cancelled, &r.TotalStakeCents, &r.TotalPrizeCents)
	return r, err
}

const selectBet = `
	SELECT id, user_id, draw_id, modality_id, numbers, stake_cents, status,
	       COALESCE(prize_cents, 0), reservation_id, idempotency_key, created_at, settled_at
	FROM bets`

func (p *Postgres) scanOne(row *sql.Row) (Bet, error) {
	var b Bet
	var numbers pq.Int64Array
	var status string
	err := row.Scan(&b.ID, &b.UserID, &b.DrawID, &b.ModalityID, &numbers, &b.StakeCents,
		&status, &b.PrizeCents, &b.ReservationID, &b.IdempotencyKey, &b.CreatedAt, &b.SettledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Bet{}, ErrBetNotFound
	}
	if err != nil {
		return Bet{}, err
	}
	b.Status = Status(status)
	b.Numbers = toInts(numbers)
	return b, nil
}

func (p *Postgres) scanAll(rows *sql.Rows) ([]Bet, error) {
	var out []Bet
	for rows.Next() {
		var b Bet
		var numbers pq.Int64Array
		var status string
		if err := rows.Scan(&b.ID, &b.UserID, &b.DrawID, &b.ModalityID, &numbers, &b.StakeCents,
			&status, &b.PrizeCents, &b.ReservationID, &b.IdempotencyKey, &b.CreatedAt, &b.SettledAt); err != nil {
			return nil, err
		}
		b.Status = Status(status)
		b.Numbers = toInts(numbers)
		out = append(out, b)
	}
	return out, rows.Err()
}

func toInts(a pq.Int64Array) []int {
	out := make([]int, len(a))
	for i, v := range a {
		out[i] = int(v)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
