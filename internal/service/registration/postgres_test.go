package registration

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/campusgo/internal/domain"
	postgresrepo "github.com/kirinyoku/campusgo/internal/repository/postgres"
	"github.com/kirinyoku/campusgo/internal/uow"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_PostgresStatements(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	ev := domain.Event{
		ID:        uuid.New(),
		Title:     "Compiler Night",
		Capacity:  40,
		StartDate: fixedNow.Add(24 * time.Hour),
		EndDate:   fixedNow.Add(26 * time.Hour),
		Status:    domain.EventPublished,
	}
	user := uuid.New()
	clock := fixedNow.Add(987654321 * time.Nanosecond)
	stored := fixedNow.Add(987654 * time.Microsecond)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(ev.ID).
		WillReturnRows(mock.NewRows([]string{"id", "title", "capacity", "start_date", "end_date", "status"}).
			AddRow(ev.ID, ev.Title, ev.Capacity, ev.StartDate, ev.EndDate, "PUBLISHED"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*)`)).
		WithArgs(ev.ID).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(int64(39)))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = $1 AND event_id = $2`)).
		WithArgs(user, ev.ID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO registrations`)).
		WithArgs(pgxmock.AnyArg(), user, ev.ID, pgxmock.AnyArg(), "CONFIRMED", stored).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectCommit()

	svc := New(uow.NewUoW(postgresrepo.NewStore(mock)), Config{Now: func() time.Time { return clock }})

	reg, _, err := svc.Register(context.Background(), user, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, reg.RegisteredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
