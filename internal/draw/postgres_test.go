package draw

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/jbest-gaming/numbers-bet-platform/internal/modality"
)

func newMock(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

func drawColumns() []string {
	return []string{"id", "modality_id", "scheduled_open_at", "scheduled_close_at",
		"status", "winning_numbers", "drawn_at", "created_at"}
}

func sampleDrawRow(id, status string, winning any) []driver.Value {
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	return []driver.Value{id, "dezena", base, base.Add(time.Hour), status, winning, nil, base}
}

func TestSchedule(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO draws`)).
		WithArgs(sqlmock.AnyArg(), "dezena", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	open := time.Now().Add(time.Hour)
	d, err := p.Schedule(context.Background(), "dezena", open, open.Add(time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	require.Equal(t, StatusScheduled, d.Status)
}

func TestSchedule_CloseBeforeOpen(t *testing.T) {
	p, _ := newMock(t)

	open := time.Now().Add(time.Hour)
	_, err := p.Schedule(context.Background(), "dezena", open, open.Add(-time.Minute))
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be after")
}

func TestGet_ParsesWinningNumbers(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM draws WHERE id=$1`)).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows(drawColumns()).
			AddRow(sampleDrawRow("d1", "drawn", []byte("{42}"))...))

	d, err := p.Get(context.Background(), "d1")
	require.NoError(t, err)
	require.Equal(t, StatusDrawn, d.Status)
	require.Equal(t, []int{42}, d.WinningNumbers)
}

func TestGet_NotFound(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM draws WHERE id=$1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := p.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrDrawNotFound)
}

func TestOpen_Success(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET status='open'`)).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.Open(context.Background(), "d1"))
}

// Gatilho duplicado do scheduler: já está open, replay é no-op.
func TestOpen_Replay(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET status='open'`)).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM draws WHERE id=$1`)).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("open"))

	require.NoError(t, p.Open(context.Background(), "d1"))
}

func TestOpen_FromWrongStatus(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET status='open'`)).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM draws WHERE id=$1`)).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("cancelled"))

	err := p.Open(context.Background(), "d1")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func expectModalityBounds(mock sqlmock.Sqlmock, drawID string, count, min, max int) {
	mock.ExpectQuery(regexp.QuoteMeta(`FROM draws d JOIN modalities m ON m.id = d.modality_id`)).
		WithArgs(drawID).
		WillReturnRows(sqlmock.NewRows([]string{"number_count", "range_min", "range_max"}).
			AddRow(count, min, max))
}

func TestRecordResult_Success(t *testing.T) {
	p, mock := newMock(t)

	expectModalityBounds(mock, "d1", 1, 0, 99)
	mock.ExpectExec(regexp.QuoteMeta(`SET status='drawn'`)).
		WithArgs("d1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.RecordResult(context.Background(), "d1", []int{42}))
}

// Resultado fora da regra da modalidade é barrado antes de qualquer escrita.
func TestRecordResult_InvalidForModality(t *testing.T) {
	p, mock := newMock(t)

	expectModalityBounds(mock, "d1", 1, 0, 99)

	err := p.RecordResult(context.Background(), "d1", []int{100})
	require.Error(t, err)
	var verr *modality.ValidationError
	require.ErrorAs(t, err, &verr)
	require.NoError(t, mock.ExpectationsWereMet()) // nenhum UPDATE chegou a rodar

	expectModalityBounds(mock, "d1", 1, 0, 99)
	err = p.RecordResult(context.Background(), "d1", []int{42, 17})
	require.ErrorAs(t, err, &verr)
}

// Resultado repetido: sorteio já em drawn, segunda gravação é absorvida.
func TestRecordResult_Replay(t *testing.T) {
	p, mock := newMock(t)

	expectModalityBounds(mock, "d1", 1, 0, 99)
	mock.ExpectExec(regexp.QuoteMeta(`SET status='drawn'`)).
		WithArgs("d1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM draws WHERE id=$1`)).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("drawn"))

	require.NoError(t, p.RecordResult(context.Background(), "d1", []int{42}))
}

func TestRecordResult_BeforeClose(t *testing.T) {
	p, mock := newMock(t)

	expectModalityBounds(mock, "d1", 1, 0, 99)
	mock.ExpectExec(regexp.QuoteMeta(`SET status='drawn'`)).
		WithArgs("d1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM draws WHERE id=$1`)).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("open"))

	err := p.RecordResult(context.Background(), "d1", []int{42})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordResult_UnknownDraw(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM draws d JOIN modalities m ON m.id = d.modality_id`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := p.RecordResult(context.Background(), "missing", []int{42})
	require.ErrorIs(t, err, ErrDrawNotFound)
}

func TestMarkSettled_Success(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET status='settled'`)).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.MarkSettled(context.Background(), "d1"))
}

// Ainda há apostas pendentes: a guarda NOT EXISTS segura a transição.
func TestMarkSettled_BetsStillPending(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET status='settled'`)).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM draws WHERE id=$1`)).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("drawn"))

	err := p.MarkSettled(context.Background(), "d1")
	require.ErrorIs(t, err, ErrBetsStillPending)
}

func TestMarkSettled_Replay(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET status='settled'`)).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM draws WHERE id=$1`)).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("settled"))

	require.NoError(t, p.MarkSettled(context.Background(), "d1"))
}

func TestCancel_Success(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET status='cancelled'`)).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.Cancel(context.Background(), "d1"))
}

// Depois da apuração não cancela mais: o caminho é liquidar.
func TestCancel_AfterDrawn(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`SET status='cancelled'`)).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM draws WHERE id=$1`)).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("drawn"))

	err := p.Cancel(context.Background(), "d1")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListDueOpen(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE status='scheduled' AND scheduled_open_at <= $1`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(drawColumns()).
			AddRow(sampleDrawRow("d1", "scheduled", nil)...).
			AddRow(sampleDrawRow("d2", "scheduled", nil)...))

	due, err := p.ListDueOpen(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, due, 2)
	require.Nil(t, due[0].WinningNumbers)
}

func TestListStuckDrawn(t *testing.T) {
	p, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE status='drawn' ORDER BY drawn_at`)).
		WillReturnRows(sqlmock.NewRows(drawColumns()).
			AddRow(sampleDrawRow("d1", "drawn", []byte("{42}"))...))

	stuck, err := p.ListStuckDrawn(context.Background())
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	require.Equal(t, []int{42}, stuck[0].WinningNumbers)
}
