package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/metrics"
)

// Tentativas contra conflito de versão antes de desistir com ErrConcurrentModification.
const maxRetries = 3

// Postgres implementa o ledger de carteiras. Única escritora de saldo no sistema;
// toda mutação roda em uma transação com compare-and-swap na coluna version.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// GetOrCreate retorna a carteira do usuário, criando-a zerada se não existir.
func (p *Postgres) GetOrCreate(ctx context.Context, userID string) (Wallet, error) {
	var w Wallet
	err := p.db.QueryRowContext(ctx,
		`SELECT id, user_id, available_cents, reserved_cents, version FROM wallets WHERE user_id=$1`,
		userID).Scan(&w.ID, &w.UserID, &w.AvailableCents, &w.ReservedCents, &w.Version)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Wallet{}, err
	}

	w = Wallet{ID: uuid.NewString(), UserID: userID, Version: 1}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO wallets (id, user_id, available_cents, reserved_cents, version)
		 VALUES ($1,$2,0,0,1)
		 ON CONFLICT (user_id) DO NOTHING`, w.ID, userID)
	if err != nil {
		return Wallet{}, err
	}
	// corrida com outra criação: relê a linha vencedora
	err = p.db.QueryRowContext(ctx,
		`SELECT id, user_id, available_cents, reserved_cents, version FROM wallets WHERE user_id=$1`,
		userID).Scan(&w.ID, &w.UserID, &w.AvailableCents, &w.ReservedCents, &w.Version)
	if err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Reserve move amount de available para reserved e grava entrada RESERVE.
// Idempotente por (wallet, ref): repetir com o mesmo ref devolve a mesma reserva.
func (p *Postgres) Reserve(ctx context.Context, userID string, amountCents int64, ref string) (string, error) {
	if amountCents <= 0 {
		return "", fmt.Errorf("reserve amount must be positive")
	}
	for attempt := 0; attempt < maxRetries; attempt++ {
		resID, retry, err := p.tryReserve(ctx, userID, amountCents, ref)
		if err != nil {
			return "", err
		}
		if !retry {
			return resID, nil
		}
		metrics.WalletConflicts.Inc()
	}
	return "", ErrConcurrentModification
}

func (p *Postgres) tryReserve(ctx context.Context, userID string, amountCents int64, ref string) (resID string, retry bool, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	var w Wallet
	err = tx.QueryRowContext(ctx,
		`SELECT id, available_cents, reserved_cents, version FROM wallets WHERE user_id=$1`,
		userID).Scan(&w.ID, &w.AvailableCents, &w.ReservedCents, &w.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, ErrWalletNotFound
	}
	if err != nil {
		return "", false, err
	}

	// Idempotência: mesma ref, mesma reserva
	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM wallet_reservations WHERE wallet_id=$1 AND external_ref=$2`,
		w.ID, ref).Scan(&existing)
	if err == nil {
		return existing, false, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, err
	}

	if w.AvailableCents < amountCents {
		return "", false, ErrInsufficientFunds
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE wallets
		 SET available_cents = available_cents - $1,
		     reserved_cents  = reserved_cents + $1,
		     version = version + 1, updated_at = NOW()
		 WHERE id=$2 AND version=$3`,
		amountCents, w.ID, w.Version)
	if err != nil {
		return "", false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", true, nil // versão mudou por baixo, tenta de novo
	}

	resID = uuid.NewString()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_reservations (id, wallet_id, external_ref, amount_cents, status)
		 VALUES ($1,$2,$3,$4,'PENDING')`,
		resID, w.ID, ref, amountCents); err != nil {
		return "", false, err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger (wallet_id, kind, amount_cents, related_bet_id, description)
		 VALUES ($1,'RESERVE',$2,NULL,$3)`,
		w.ID, amountCents, "reserve:"+ref); err != nil {
		return "", false, err
	}

	return resID, false, tx.Commit()
}

// Release devolve uma reserva PENDING para o saldo disponível.
// Segunda chamada falha com ErrAlreadyReleased; reserva consumida, ErrAlreadyConsumed.
func (p *Postgres) Release(ctx context.Context, reservationID string) error {
	return p.closeReservation(ctx, reservationID, ReservationReleased)
}

// ConsumeReservation converte a reserva em débito definitivo (a aposta foi
// resolvida). Idempotente quando já consumida; falha se a reserva foi liberada.
func (p *Postgres) ConsumeReservation(ctx context.Context, reservationID string) error {
	return p.closeReservation(ctx, reservationID, ReservationConsumed)
}

func (p *Postgres) closeReservation(ctx context.Context, reservationID, target string) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		retry, err := p.tryCloseReservation(ctx, reservationID, target)
		if err != nil {
			return err
		}
		if !retry {
			return nil
		}
		metrics.WalletConflicts.Inc()
	}
	return ErrConcurrentModification
}

func (p *Postgres) tryCloseReservation(ctx context.Context, reservationID, target string) (retry bool, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var (
		walletID, ref, status string
		amount, version       int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT r.wallet_id, r.external_ref, r.amount_cents, r.status, w.version
		FROM wallet_reservations r
		JOIN wallets w ON w.id = r.wallet_id
		WHERE r.id=$1`, reservationID).Scan(&walletID, &ref, &amount, &status, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrReservationNotFound
	}
	if err != nil {
		return false, err
	}

	switch status {
	case ReservationReleased:
		return false, ErrAlreadyReleased
	case ReservationConsumed:
		if target == ReservationConsumed {
			return false, tx.Commit() // consumo repetido é no-op
		}
		return false, ErrAlreadyConsumed
	}

	var stmt, kind, descr string
	if target == ReservationReleased {
		// devolve para available
		stmt = `UPDATE wallets
		        SET available_cents = available_cents + $1,
		            reserved_cents  = reserved_cents - $1,
		            version = version + 1, updated_at = NOW()
		        WHERE id=$2 AND version=$3`
		kind, descr = KindRelease, "release:"+ref
	} else {
		// o valor já saiu de available na reserva; só sai de reserved
		stmt = `UPDATE wallets
		        SET reserved_cents = reserved_cents - $1,
		            version = version + 1, updated_at = NOW()
		        WHERE id=$2 AND version=$3`
		kind, descr = KindDebit, "consume:"+ref
	}

	res, err := tx.ExecContext(ctx, stmt, amount, walletID, version)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return true, nil
	}

	// guarda contra fechamento concorrente da mesma reserva:
	// zero linhas = alguém fechou no meio; relê o status e decide de novo
	res, err = tx.ExecContext(ctx,
		`UPDATE wallet_reservations SET status=$1, updated_at=NOW() WHERE id=$2 AND status='PENDING'`,
		target, reservationID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return true, nil
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger (wallet_id, kind, amount_cents, related_bet_id, description)
		 VALUES ($1,$2,$3,NULL,$4)`,
		walletID, kind, amount, descr); err != nil {
		return false, err
	}

	return false, tx.Commit()
}

// Credit adiciona amount ao saldo disponível e grava entrada CREDIT amarrada
// à aposta. Idempotente por relatedBetID: a segunda chamada devolve a entrada
// original sem tocar no saldo (índice único parcial no ledger).
func (p *Postgres) Credit(ctx context.Context, userID string, amountCents int64, relatedBetID string) (LedgerEntry, error) {
	if amountCents <= 0 {
		return LedgerEntry{}, fmt.Errorf("credit amount must be positive")
	}
	for attempt := 0; attempt < maxRetries; attempt++ {
		entry, retry, err := p.tryCredit(ctx, userID, amountCents, relatedBetID)
		if err != nil {
			return LedgerEntry{}, err
		}
		if !retry {
			return entry, nil
		}
		metrics.WalletConflicts.Inc()
	}
	return LedgerEntry{}, ErrConcurrentModification
}

func (p *Postgres) tryCredit(ctx context.Context, userID string, amountCents int64, relatedBetID string) (entry LedgerEntry, retry bool, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return LedgerEntry{}, false, err
	}
	defer tx.Rollback()

	if relatedBetID != "" {
		existing, found, err := findCredit(ctx, tx, relatedBetID)
		if err != nil {
			return LedgerEntry{}, false, err
		}
		if found {
			return existing, false, tx.Commit()
		}
	}

	var w Wallet
	err = tx.QueryRowContext(ctx,
		`SELECT id, available_cents, version FROM wallets WHERE user_id=$1`,
		userID).Scan(&w.ID, &w.AvailableCents, &w.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return LedgerEntry{}, false, ErrWalletNotFound
	}
	if err != nil {
		return LedgerEntry{}, false, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE wallets
		 SET available_cents = available_cents + $1,
		     version = version + 1, updated_at = NOW()
		 WHERE id=$2 AND version=$3`,
		amountCents, w.ID, w.Version)
	if err != nil {
		return LedgerEntry{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return LedgerEntry{}, true, nil
	}

	entry = LedgerEntry{WalletID: w.ID, Kind: KindCredit, AmountCents: amountCents, RelatedBetID: relatedBetID}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO wallet_ledger (wallet_id, kind, amount_cents, related_bet_id, description)
		 VALUES ($1,'CREDIT',$2,NULLIF($3,''),$4)
		 RETURNING id, created_at`,
		w.ID, amountCents, relatedBetID, "prize:"+relatedBetID).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// outra liquidação chegou primeiro; vale a entrada dela
			_ = tx.Rollback()
			existing, found, ferr := findCreditDB(ctx, p.db, relatedBetID)
			if ferr != nil {
				return LedgerEntry{}, false, ferr
			}
			if found {
				return existing, false, nil
			}
			return LedgerEntry{}, false, err
		}
		return LedgerEntry{}, false, err
	}

	return entry, false, tx.Commit()
}

// Deposit credita saldo vindo do provedor de pagamento (fora do fluxo de apostas).
func (p *Postgres) Deposit(ctx context.Context, userID string, amountCents int64, externalRef string) (Wallet, error) {
	if amountCents <= 0 {
		return Wallet{}, fmt.Errorf("deposit amount must be positive")
	}
	if _, err := p.GetOrCreate(ctx, userID); err != nil {
		return Wallet{}, err
	}
	for attempt := 0; attempt < maxRetries; attempt++ {
		w, retry, err := p.tryAdjustAvailable(ctx, userID, amountCents, "deposit:"+externalRef, KindCredit)
		if err != nil {
			return Wallet{}, err
		}
		if !retry {
			return w, nil
		}
		metrics.WalletConflicts.Inc()
	}
	return Wallet{}, ErrConcurrentModification
}

// Withdraw debita saldo disponível para saque via provedor de pagamento.
func (p *Postgres) Withdraw(ctx context.Context, userID string, amountCents int64, externalRef string) (Wallet, error) {
	if amountCents <= 0 {
		return Wallet{}, fmt.Errorf("withdraw amount must be positive")
	}
	for attempt := 0; attempt < maxRetries; attempt++ {
		w, retry, err := p.tryAdjustAvailable(ctx, userID, -amountCents, "withdraw:"+externalRef, KindDebit)
		if err != nil {
			return Wallet{}, err
		}
		if !retry {
			return w, nil
		}
		metrics.WalletConflicts.Inc()
	}
	return Wallet{}, ErrConcurrentModification
}

func (p *Postgres) tryAdjustAvailable(ctx context.Context, userID string, deltaCents int64, descr, kind string) (out Wallet, retry bool, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Wallet{}, false, err
	}
	defer tx.Rollback()

	var w Wallet
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id, available_cents, reserved_cents, version FROM wallets WHERE user_id=$1`,
		userID).Scan(&w.ID, &w.UserID, &w.AvailableCents, &w.ReservedCents, &w.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Wallet{}, false, ErrWalletNotFound
	}
	if err != nil {
		return Wallet{}, false, err
	}

	if w.AvailableCents+deltaCents < 0 {
		return Wallet{}, false, ErrInsufficientFunds
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE wallets
		 SET available_cents = available_cents + $1,
		     version = version + 1, updated_at = NOW()
		 WHERE id=$2 AND version=$3`,
		deltaCents, w.ID, w.Version)
	if err != nil {
		return Wallet{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Wallet{}, true, nil
	}

	amount := deltaCents
	if amount < 0 {
		amount = -amount
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger (wallet_id, kind, amount_cents, related_bet_id, description)
		 VALUES ($1,$2,$3,NULL,$4)`,
		w.ID, kind, amount, descr); err != nil {
		return Wallet{}, false, err
	}

	if err = tx.Commit(); err != nil {
		return Wallet{}, false, err
	}

	w.AvailableCents += deltaCents
	w.Version++
	return w, false, nil
}

// ReleaseOrphans devolve reservas PENDING que nenhuma aposta referencia —
// resquício de um crash entre a reserva e o insert da aposta. O corte por
// idade evita colidir com uma requisição ainda em voo.
func (p *Postgres) ReleaseOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT r.id FROM wallet_reservations r
		WHERE r.status='PENDING'
		  AND r.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM bets b WHERE b.reservation_id = r.id)`,
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	released := 0
	for _, id := range ids {
		if err := p.Release(ctx, id); err != nil {
			// outra rodada da varredura fechou a reserva no meio
			if errors.Is(err, ErrAlreadyReleased) || errors.Is(err, ErrAlreadyConsumed) {
				continue
			}
			return released, err
		}
		released++
	}
	return released, nil
}

// Reconcile reexecuta o ledger e compara com os saldos cacheados.
// Divergência indica corrupção e volta como ErrLedgerMismatch.
func (p *Postgres) Reconcile(ctx context.Context, userID string) error {
	var w Wallet
	err := p.db.QueryRowContext(ctx,
		`SELECT id, available_cents, reserved_cents FROM wallets WHERE user_id=$1`,
		userID).Scan(&w.ID, &w.AvailableCents, &w.ReservedCents)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrWalletNotFound
	}
	if err != nil {
		return err
	}

	var totalFromLedger, reserveFlow int64
	err = p.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE kind WHEN 'CREDIT' THEN amount_cents WHEN 'DEBIT' THEN -amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE kind WHEN 'RESERVE' THEN amount_cents WHEN 'RELEASE' THEN -amount_cents ELSE 0 END), 0)
		FROM wallet_ledger WHERE wallet_id=$1`, w.ID).Scan(&totalFromLedger, &reserveFlow)
	if err != nil {
		return err
	}

	var consumed int64
	err = p.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM wallet_reservations WHERE wallet_id=$1 AND status='CONSUMED'`,
		w.ID).Scan(&consumed)
	if err != nil {
		return err
	}

	if w.AvailableCents+w.ReservedCents != totalFromLedger {
		return fmt.Errorf("%w: cached total %d, ledger total %d",
			ErrLedgerMismatch, w.AvailableCents+w.ReservedCents, totalFromLedger)
	}
	if w.ReservedCents != reserveFlow-consumed {
		return fmt.Errorf("%w: cached reserved %d, ledger reserved %d",
			ErrLedgerMismatch, w.ReservedCents, reserveFlow-consumed)
	}
	return nil
}

// ListEntries retorna o extrato mais recente do usuário.
func (p *Postgres) ListEntries(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT l.id, l.wallet_id, l.kind, l.amount_cents, COALESCE(l.related_bet_id::text, ''), COALESCE(l.description, ''), l.created_at
		FROM wallet_ledger l
		JOIN wallets w ON w.id = l.wallet_id
		WHERE w.user_id=$1
		ORDER BY l.id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.Kind, &e.AmountCents, &e.RelatedBetID, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findCredit(ctx context.Context, q querier, relatedBetID string) (LedgerEntry, bool, error) {
	var e LedgerEntry
	err := q.QueryRowContext(ctx, `
		SELECT id, wallet_id, kind, amount_cents, COALESCE(related_bet_id::text, ''), COALESCE(description, ''), created_at
		FROM wallet_ledger
		WHERE kind='CREDIT' AND related_bet_id=$1`, relatedBetID).
		Scan(&e.ID, &e.WalletID, &e.Kind, &e.AmountCents, &e.RelatedBetID, &e.Description, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return LedgerEntry{}, false, nil
	}
	if err != nil {
		return LedgerEntry{}, false, err
	}
	return e, true, nil
}

func findCreditDB(ctx context.Context, db *sql.DB, relatedBetID string) (LedgerEntry, bool, error) {
	return findCredit(ctx, db, relatedBetID)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
