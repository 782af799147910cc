package draw

import (
	"errors"
	"time"
)

type Status string

// Ciclo de vida: scheduled -> open -> closed -> drawn -> settled.
// Cancelamento só antes de drawn.
const (
	StatusScheduled Status = "scheduled"
	StatusOpen      Status = "open"
	StatusClosed    Status = "closed"
	StatusDrawn     Status = "drawn"
	StatusSettled   Status = "settled"
	StatusCancelled Status = "cancelled"
)

var (
	ErrDrawNotFound      = errors.New("draw not found")
	ErrInvalidTransition = errors.New("invalid draw status transition")
	ErrBetsStillPending  = errors.New("draw still has pending bets")
)

type Draw struct {
	ID               string
	ModalityID       string
	ScheduledOpenAt  time.Time
	ScheduledCloseAt time.Time
	Status           Status
	WinningNumbers   []int
	DrawnAt          *time.Time
	CreatedAt        time.Time
}
