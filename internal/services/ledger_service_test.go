package services

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedgerWithMock(t *testing.T) (*LoanLedgerService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLoanLedgerService(db), mock
}

func expectLockAccount(mock sqlmock.Sqlmock, accountID, balance string, version int) {
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, balance, version, updated_at")).
		WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "version", "updated_at"}).
			AddRow(accountID, balance, version, time.Now()))
}

func TestLoanLedgerService_Transfer(t *testing.T) {
	amount := decimal.RequireFromString("500.00")

	t.Run("successful transfer posts balanced entries", func(t *testing.T) {
		svc, mock := newLedgerWithMock(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_states")).
			WithArgs("tx-1", "PENDING", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		// "LOAN-COLLECTIONS" sorts before "LOAN-FUNDING", so the receiving
		// account locks first.
		expectLockAccount(mock, "LOAN-COLLECTIONS", "100.00", 3)
		expectLockAccount(mock, "LOAN-FUNDING", "10000.00", 7)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
			WithArgs("tx-1", "LOAN-FUNDING", sqlmock.AnyArg(), "DEBIT", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
			WithArgs("tx-1", "LOAN-COLLECTIONS", sqlmock.AnyArg(), "CREDIT", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))

		mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "LOAN-FUNDING", 7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "LOAN-COLLECTIONS", 3).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_states")).
			WithArgs("tx-1", "SUCCESS", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		err := svc.Transfer("LOAN-FUNDING", "LOAN-COLLECTIONS", "tx-1", amount)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance fails and records state", func(t *testing.T) {
		svc, mock := newLedgerWithMock(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_states")).
			WithArgs("tx-2", "PENDING", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		expectLockAccount(mock, "LOAN-COLLECTIONS", "100.00", 1)
		expectLockAccount(mock, "LOAN-FUNDING", "10.00", 1) // cannot cover 500

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_states")).
			WithArgs("tx-2", "FAILED", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectRollback()

		err := svc.Transfer("LOAN-FUNDING", "LOAN-COLLECTIONS", "tx-2", amount)
		assert.ErrorContains(t, err, "insufficient balance")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("optimistic lock conflict aborts", func(t *testing.T) {
		svc, mock := newLedgerWithMock(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_states")).
			WithArgs("tx-3", "PENDING", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		expectLockAccount(mock, "LOAN-COLLECTIONS", "100.00", 1)
		expectLockAccount(mock, "LOAN-FUNDING", "10000.00", 1)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
			WillReturnResult(sqlmock.NewResult(2, 1))

		// Concurrent writer bumped the version between lock and update.
		mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_states")).
			WithArgs("tx-3", "FAILED", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(3, 1))
		mock.ExpectRollback()

		err := svc.Transfer("LOAN-FUNDING", "LOAN-COLLECTIONS", "tx-3", amount)
		assert.ErrorContains(t, err, "optimistic lock failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoanLedgerService_AccountNames(t *testing.T) {
	svc, _ := newLedgerWithMock(t)
	assert.Equal(t, "LOAN-FUNDING", svc.FundingAccount())
	assert.Equal(t, "LOAN-COLLECTIONS", svc.DisbursementAccount())
}
