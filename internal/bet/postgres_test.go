package bet

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func betColumns() []string {
	return []string{"id", "user_id", "draw_id", "modality_id", "numbers", "stake_cents",
		"status", "prize_cents", "reservation_id", "idempotency_key", "created_at", "settled_at"}
}

func sampleBetRow(id, status string) []driver.Value {
	return []driver.Value{id, "u1", "d1", "dezena", []byte("{42}"), int64(1000),
		status, int64(0), "res-1", "key-1", time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC), nil}
}

func TestCreate_Success(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO bets`)).
		WithArgs("b1", "u1", "d1", "dezena", sqlmock.AnyArg(), int64(1000), "res-1", "key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM bets WHERE id=$1`)).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows(betColumns()).AddRow(sampleBetRow("b1", "pending")...))

	b, err := p.Create(context.Background(), &Bet{
		ID: "b1", UserID: "u1", DrawID: "d1", ModalityID: "dezena",
		Numbers: []int{42}, StakeCents: 1000, ReservationID: "res-1", IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, b.Status)
	require.Equal(t, []int{42}, b.Numbers)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Sorteio fora de "open": o INSERT...WHERE EXISTS afeta zero linhas.
func TestCreate_DrawNotOpen(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO bets`)).
		WithArgs("b1", "u1", "d1", "dezena", sqlmock.AnyArg(), int64(1000), "res-1", "key-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := p.Create(context.Background(), &Bet{
		ID: "b1", UserID: "u1", DrawID: "d1", ModalityID: "dezena",
		Numbers: []int{42}, StakeCents: 1000, ReservationID: "res-1", IdempotencyKey: "key-1",
	})
	require.ErrorIs(t, err, ErrDrawNotOpen)
}

func TestCreate_DuplicateIdempotencyKey(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO bets`)).
		WithArgs("b1", "u1", "d1", "dezena", sqlmock.AnyArg(), int64(1000), "res-1", "key-1").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "bets_idempotency_key_key"})

	_, err := p.Create(context.Background(), &Bet{
		ID: "b1", UserID: "u1", DrawID: "d1", ModalityID: "dezena",
		Numbers: []int{42}, StakeCents: 1000, ReservationID: "res-1", IdempotencyKey: "key-1",
	})
	require.ErrorIs(t, err, ErrDuplicateBet)
}

func TestGet_NotFound(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM bets WHERE id=$1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := p.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrBetNotFound)
}

func TestGetByIdempotencyKey(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE idempotency_key=$1`)).
		WithArgs("key-1").
		WillReturnRows(sqlmock.NewRows(betColumns()).AddRow(sampleBetRow("b1", "pending")...))

	b, err := p.GetByIdempotencyKey(context.Background(), "key-1")
	require.NoError(t, err)
	require.Equal(t, "b1", b.ID)
}

func TestListPendingByDraw(t *testing.T) {
	p, mock := newMock(t)

	rows := sqlmock.NewRows(betColumns()).
		AddRow(sampleBetRow("b1", "pending")...).
		AddRow(sampleBetRow("b2", "pending")...)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE draw_id=$1 AND status='pending' ORDER BY created_at, id`)).
		WithArgs("d1").
		WillReturnRows(rows)

	bets, err := p.ListPendingByDraw(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, bets, 2)
	require.Equal(t, "b1", bets[0].ID)
	require.Equal(t, "b2", bets[1].ID)
	require.Equal(t, []int{42}, bets[0].Numbers)
}

func TestTransition_Success(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE bets SET status=$2`)).
		WithArgs("b1", "won", int64(100000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.Transition(context.Background(), "b1", StatusWon, 100000))
	require.NoError(t, mock.ExpectationsWereMet())
}

// Replay: UPDATE não pega nada porque a aposta já está no status alvo.
func TestTransition_Replay(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE bets SET status=$2`)).
		WithArgs("b1", "won", int64(100000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM bets WHERE id=$1`)).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("won"))

	require.NoError(t, p.Transition(context.Background(), "b1", StatusWon, 100000))
}

// Aposta já liquidada com outro resultado: transição rejeitada.
func TestTransition_Invalid(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE bets SET status=$2`)).
		WithArgs("b1", "cancelled", int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM bets WHERE id=$1`)).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("won"))

	err := p.Transition(context.Background(), "b1", StatusCancelled, 0)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_BetNotFound(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE bets SET status=$2`)).
		WithArgs("missing", "won", int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM bets WHERE id=$1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := p.Transition(context.Background(), "missing", StatusWon, 0)
	require.ErrorIs(t, err, ErrBetNotFound)
}

func TestTransition_RejectsPendingTarget(t *testing.T) {
	p, _ := newMock(t)
	err := p.Transition(context.Background(), "b1", StatusPending, 0)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReport(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM bets WHERE draw_id=$1`)).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "pending", "won", "lost", "cancelled", "stake", "prize"}).
			AddRow(10, 0, 2, 8, 0, int64(10000), int64(200000)))

	r, err := p.Report(context.Background(), "d1")
	require.NoError(t, err)
	require.Equal(t, 10, r.Total)
	require.Equal(t, 2, r.Won)
	require.Equal(t, int64(200000), r.TotalPrizeCents)
}
