package events

import "time"

// Evento publicado pelo draw-scheduler quando o resultado de um sorteio é registrado.
type DrawDrawn struct {
	DrawID         string    `json:"draw_id"`
	ModalityID     string    `json:"modality_id"`
	WinningNumbers []int     `json:"winning_numbers"`
	Ts             time.Time `json:"ts"`
}

// Evento publicado quando um sorteio é cancelado antes da apuração.
type DrawCancelled struct {
	DrawID string    `json:"draw_id"`
	Reason string    `json:"reason,omitempty"`
	Ts     time.Time `json:"ts"`
}

// Evento publicado quando todas as apostas de um sorteio foram resolvidas.
type DrawSettled struct {
	DrawID          string    `json:"draw_id"`
	TotalBets       int       `json:"total_bets"`
	TotalWon        int       `json:"total_won"`
	TotalPrizeCents int64     `json:"total_prize_cents"`
	Ts              time.Time `json:"ts"`
}
