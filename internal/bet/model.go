package bet

import (
	"errors"
	"time"
)

type Status string

// Uma aposta só anda pra frente: pending -> won | lost | cancelled.
const (
	StatusPending   Status = "pending"
	StatusWon       Status = "won"
	StatusLost      Status = "lost"
	StatusCancelled Status = "cancelled"
)

var (
	ErrDuplicateBet      = errors.New("duplicate bet for idempotency key")
	ErrInvalidTransition = errors.New("invalid bet status transition")
	ErrBetNotFound       = errors.New("bet not found")
	ErrDrawNotOpen       = errors.New("draw is not accepting bets")
)

// Bet é imutável após a criação, exceto pela transição única de
// status/prize/settled_at feita na liquidação.
type Bet struct {
	ID             string
	UserID         string
	DrawID         string
	ModalityID     string
	Numbers        []int
	StakeCents     int64
	Status         Status
	PrizeCents     int64
	ReservationID  string
	IdempotencyKey string
	CreatedAt      time.Time
	SettledAt      *time.Time
}

// DrawReport agrega os números de um sorteio para o painel administrativo.
type DrawReport struct {
	Total           int
	Pending         int
	Won             int
	Lost            int
	Cancelled       int
	TotalStakeCents int64
	TotalPrizeCents int64
}
