package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/obligation-engine/obligation"
	"github.com/warp/obligation-engine/store/sqlite"
)

func newMockStore(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.NewWithDB(db), mock
}

func TestInsertEntries_CountsAffectedRows(t *testing.T) {
	// GIVEN: A batch of two entries, the first period already exists
	// WHEN: Inserting
	// THEN: Only the affected row is counted and the batch commits

	store, mock := newMockStore(t)
	def := salaryDefinition("ana")
	clock := obligation.FixedClock(june15)
	entries := []obligation.Entry{
		obligation.NewEntry(def, obligation.MustParsePeriod("2025-01"), clock),
		obligation.NewEntry(def, obligation.MustParsePeriod("2025-02"), clock),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entries .* ON CONFLICT\\(definition_id, period_key\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := store.InsertEntries(context.Background(), entries)

	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEntries_ErrorRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	e := obligation.NewEntry(salaryDefinition("ben"), obligation.MustParsePeriod("2025-01"), nil)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entries").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := store.InsertEntries(context.Background(), []obligation.Entry{e})

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkChannelPaid_GuardsOnPendingStatusAndAmount(t *testing.T) {
	store, mock := newMockStore(t)
	paidAt := time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE entries\\s+SET incentive_status = 'paid'.*WHERE id = \\? AND incentive_status = 'pending' AND incentive_amount = \\?").
		WithArgs("2025-06-15T10:00:00Z", "bank_transfer", "TXN123", "", "2025-06-15T10:00:00Z", "entry-1", "2500.75").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.MarkChannelPaid(context.Background(), "entry-1", obligation.ChannelIncentive,
		decimal.RequireFromString("2500.75"),
		obligation.Payment{PaidAt: paidAt, Method: "bank_transfer", Reference: "TXN123"})

	require.NoError(t, err)
	assert.False(t, ok, "zero affected rows means the race was lost")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePendingAmount_RequireAllPending(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE entries SET reward_amount = \\?.*reward_status = 'pending' AND base_status = 'pending' AND incentive_status = 'pending' AND reward_status = 'pending'").
		WithArgs("750", sqlmock.AnyArg(), "entry-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.UpdatePendingAmount(context.Background(), "entry-2", obligation.ChannelReward,
		decimal.NewFromInt(750), true, time.Now())

	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConditionalWrites_UnknownChannelNeverReachesSQL(t *testing.T) {
	store, mock := newMockStore(t)

	_, err := store.MarkChannelPaid(context.Background(), "entry-3", obligation.Channel("base; DROP TABLE entries"),
		decimal.NewFromInt(1), obligation.Payment{Method: "cash"})

	assert.ErrorIs(t, err, obligation.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}
