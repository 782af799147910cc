package dto

import "time"

// Receipt é o comprovante devolvido ao jogador na aceitação da aposta.
type Receipt struct {
	ID         string    `json:"id"`
	ModalityID string    `json:"modalidade"`
	Numbers    []int     `json:"numeros"`
	StakeCents int64     `json:"valor_cents"`
	CreatedAt  time.Time `json:"dataAposta"`
}

type PlaceBetResponse struct {
	BetID   string  `json:"betId"`
	Status  string  `json:"status"`
	Receipt Receipt `json:"comprovante"`
}

type BetResponse struct {
	BetID      string     `json:"betId"`
	DrawID     string     `json:"drawId"`
	ModalityID string     `json:"modalityId"`
	Numbers    []int      `json:"numbers"`
	StakeCents int64      `json:"stake_cents"`
	Status     string     `json:"status"`
	PrizeCents int64      `json:"prize_cents"`
	CreatedAt  time.Time  `json:"created_at"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
}

type BetHistoryResponse struct {
	Bets  []BetResponse `json:"bets"`
	Total int           `json:"total"`
}

type WalletResponse struct {
	UserID         string `json:"userId"`
	WalletID       string `json:"walletId"`
	AvailableCents int64  `json:"available_cents"`
	ReservedCents  int64  `json:"reserved_cents"`
}

type LedgerEntryResponse struct {
	ID           int64     `json:"id"`
	Kind         string    `json:"kind"`
	AmountCents  int64     `json:"amount_cents"`
	RelatedBetID string    `json:"related_bet_id,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type TransactionsResponse struct {
	Entries []LedgerEntryResponse `json:"entries"`
}

type ModalityResponse struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	NumberCount      int    `json:"numberCount"`
	RangeMin         int    `json:"rangeMin"`
	RangeMax         int    `json:"rangeMax"`
	MinStakeCents    int64  `json:"min_stake_cents"`
	MaxStakeCents    int64  `json:"max_stake_cents"`
	PayoutMultiplier int64  `json:"payoutMultiplier"`
	MatchRule        string `json:"matchRule"`
}

type DrawResponse struct {
	DrawID           string    `json:"drawId"`
	ModalityID       string    `json:"modalityId"`
	Status           string    `json:"status"`
	ScheduledOpenAt  time.Time `json:"scheduled_open_at"`
	ScheduledCloseAt time.Time `json:"scheduled_close_at"`
	WinningNumbers   []int     `json:"winning_numbers,omitempty"`
}
