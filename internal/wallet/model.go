package wallet

import (
	"errors"
	"time"
)

// Tipos de lançamento no ledger. O ledger é append-only: saldo atual é
// uma projeção dessas entradas, mantida na mesma transação que as grava.
const (
	KindReserve = "RESERVE"
	KindRelease = "RELEASE"
	KindDebit   = "DEBIT"
	KindCredit  = "CREDIT"
)

// Estados de uma reserva de saldo.
const (
	ReservationPending  = "PENDING"
	ReservationReleased = "RELEASED"
	ReservationConsumed = "CONSUMED"
)

var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrAlreadyReleased        = errors.New("reservation already released")
	ErrAlreadyConsumed        = errors.New("reservation already consumed")
	ErrConcurrentModification = errors.New("concurrent wallet modification")
	ErrLedgerMismatch         = errors.New("ledger does not reconcile with cached balances")
)

// Wallet é a projeção cacheada dos saldos de um usuário.
// version cresce a cada mutação e sustenta a concorrência otimista.
type Wallet struct {
	ID             string
	UserID         string
	AvailableCents int64
	ReservedCents  int64
	Version        int64
}

// LedgerEntry é imutável depois de gravada.
type LedgerEntry struct {
	ID           int64
	WalletID     string
	Kind         string
	AmountCents  int64
	RelatedBetID string // vazio quando não ligada a aposta (depósito, saque)
	Description  string
	CreatedAt    time.Time
}
