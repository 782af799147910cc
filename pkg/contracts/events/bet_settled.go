package events

import "time"

// Evento emitido pelo settlement-worker após resolver uma aposta.
type BetSettled struct {
	BetID      string    `json:"betId"`
	UserID     string    `json:"userId"`
	DrawID     string    `json:"drawId"`
	Status     string    `json:"status"` // "won" | "lost" | "cancelled"
	PrizeCents int64     `json:"prize_cents"`
	Ts         time.Time `json:"ts"`
}
