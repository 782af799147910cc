package dto

type PlaceBetRequest struct {
	UserID         string `json:"userId"`
	DrawID         string `json:"drawId"`
	ModalityID     string `json:"modalityId"` // ex: "milhar", "dezena"
	Numbers        []int  `json:"numbers"`
	StakeCents     int64  `json:"stake_cents"`
	IdempotencyKey string `json:"idempotency_key"` // protege contra retry duplo do cliente
}

type DepositRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref"` // referência do provedor de pagamento
}

type WithdrawRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref"`
}
