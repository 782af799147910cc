package topics

const (
	// Apostas
	BetPlaced  = "bet_placed"
	BetSettled = "bet_settled"

	// Sorteios
	DrawDrawn     = "draw_drawn"
	DrawCancelled = "draw_cancelled"
	DrawSettled   = "draw_settled"

	// DLQs
	DrawDrawnDLQ     = "draw_drawn_dlq"
	DrawCancelledDLQ = "draw_cancelled_dlq"
)
