package events

type BetPlaced struct {
	BetID       string `json:"bet_id"`
	UserID      string `json:"user_id"`
	DrawID      string `json:"draw_id"`
	ModalityID  string `json:"modality_id"` // ex: "milhar", "dezena"
	Numbers     []int  `json:"numbers"`
	StakeCents  int64  `json:"stake_cents"`
	ReservedRef string `json:"reserved_ref"` // id da reserva na carteira
	TsUnixMs    int64  `json:"ts_unix_ms"`
}
