package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatriickRM/loan-banking-system/internal/models"
)

func newLoanServiceWithMock(t *testing.T) (*LoanService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLoanService(db, NewLoanLedgerService(db), NewISO20022Service()), mock
}

var loanColumns = []string{
	"id", "customer_id", "loan_type", "amount", "interest_rate", "term_months",
	"monthly_payment", "total_amount", "purpose", "status", "rejection_reason",
	"approved_by", "application_date", "approval_date", "disbursement_date",
	"created_at", "updated_at",
}

func loanRow(id int64, status models.LoanStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(loanColumns).
		AddRow(id, 42, "PERSONAL", "15000.00", "18.5", 24, "752.49", "18059.76",
			"home improvement", status, nil, nil, now, nil, nil, now, now)
}

func TestCreateLoan(t *testing.T) {
	t.Run("computes payment and stores application", func(t *testing.T) {
		svc, mock := newLoanServiceWithMock(t)
		now := time.Now()

		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO loans")).
			WithArgs(int64(42), "PERSONAL", sqlmock.AnyArg(), sqlmock.AnyArg(), 24,
				sqlmock.AnyArg(), sqlmock.AnyArg(), "home improvement", models.LoanStatusPending, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))

		body := `{"customerId":42,"loanType":"PERSONAL","amount":15000,"interestRate":18.5,"termMonths":24,"purpose":"home improvement"}`
		req := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(body))
		w := httptest.NewRecorder()
		svc.CreateLoan(w, req)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var loan models.Loan
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loan))
		assert.Equal(t, int64(1), loan.ID)
		assert.Equal(t, "752.49", loan.MonthlyPayment.StringFixed(2))
		assert.Equal(t, models.LoanStatusPending, loan.Status)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid terms rejected before storage", func(t *testing.T) {
		svc, _ := newLoanServiceWithMock(t)

		body := `{"customerId":42,"loanType":"PERSONAL","amount":-5,"interestRate":18.5,"termMonths":24}`
		req := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(body))
		w := httptest.NewRecorder()
		svc.CreateLoan(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown loan type rejected", func(t *testing.T) {
		svc, _ := newLoanServiceWithMock(t)

		body := `{"customerId":42,"loanType":"CRYPTO","amount":15000,"interestRate":18.5,"termMonths":24}`
		req := httptest.NewRequest(http.MethodPost, "/loans", strings.NewReader(body))
		w := httptest.NewRecorder()
		svc.CreateLoan(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestApproveLoan(t *testing.T) {
	t.Run("only pending loans approve", func(t *testing.T) {
		svc, mock := newLoanServiceWithMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM loans WHERE id = $1")).
			WithArgs(int64(5)).
			WillReturnRows(loanRow(5, models.LoanStatusActive))

		req := withLoanParam(httptest.NewRequest(http.MethodPut, "/loans/5/approve", strings.NewReader(`{}`)), "5")
		w := httptest.NewRecorder()
		svc.ApproveLoan(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("adjusted terms recompute the installment", func(t *testing.T) {
		svc, mock := newLoanServiceWithMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM loans WHERE id = $1")).
			WithArgs(int64(5)).
			WillReturnRows(loanRow(5, models.LoanStatusPending))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET status")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		body := `{"approvedAmount":"12000","approvedRate":"15.0"}`
		req := withLoanParam(httptest.NewRequest(http.MethodPut, "/loans/5/approve", strings.NewReader(body)), "5")
		w := httptest.NewRecorder()
		svc.ApproveLoan(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var loan models.Loan
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loan))
		assert.Equal(t, models.LoanStatusApproved, loan.Status)
		assert.Equal(t, "12000", loan.Amount.String())
		// 12000 at 15% over 24 months.
		assert.Equal(t, "581.84", loan.MonthlyPayment.StringFixed(2))
	})
}

func TestRejectLoan(t *testing.T) {
	t.Run("requires a reason", func(t *testing.T) {
		svc, _ := newLoanServiceWithMock(t)

		req := withLoanParam(httptest.NewRequest(http.MethodPut, "/loans/5/reject", strings.NewReader(`{}`)), "5")
		w := httptest.NewRecorder()
		svc.RejectLoan(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("conflict when loan is not pending", func(t *testing.T) {
		svc, mock := newLoanServiceWithMock(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET status")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		body := `{"reason":"insufficient income"}`
		req := withLoanParam(httptest.NewRequest(http.MethodPut, "/loans/5/reject", strings.NewReader(body)), "5")
		w := httptest.NewRecorder()
		svc.RejectLoan(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestCancelLoan(t *testing.T) {
	t.Run("voids open schedule rows", func(t *testing.T) {
		svc, mock := newLoanServiceWithMock(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET status")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE payment_schedules SET status")).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		req := withLoanParam(httptest.NewRequest(http.MethodPut, "/loans/5/cancel", nil), "5")
		w := httptest.NewRecorder()
		svc.CancelLoan(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("terminal loans cannot cancel", func(t *testing.T) {
		svc, mock := newLoanServiceWithMock(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET status")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		req := withLoanParam(httptest.NewRequest(http.MethodPut, "/loans/5/cancel", nil), "5")
		w := httptest.NewRecorder()
		svc.CancelLoan(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestDisburseLoan(t *testing.T) {
	t.Run("only approved loans disburse", func(t *testing.T) {
		svc, mock := newLoanServiceWithMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM loans WHERE id = $1")).
			WithArgs(int64(5)).
			WillReturnRows(loanRow(5, models.LoanStatusPending))

		req := withLoanParam(httptest.NewRequest(http.MethodPut, "/loans/5/disburse", nil), "5")
		w := httptest.NewRecorder()
		svc.DisburseLoan(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("persists the full schedule and posts the principal", func(t *testing.T) {
		svc, mock := newLoanServiceWithMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM loans WHERE id = $1")).
			WithArgs(int64(5)).
			WillReturnRows(loanRow(5, models.LoanStatusApproved))

		mock.ExpectBegin()
		for i := 0; i < 24; i++ {
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_schedules")).
				WillReturnResult(sqlmock.NewResult(int64(i+1), 1))
		}
		mock.ExpectExec(regexp.QuoteMeta("UPDATE loans SET status")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		expectLockAccount(mock, "LOAN-COLLECTIONS", "0.00", 1)
		expectLockAccount(mock, "LOAN-FUNDING", "100000.00", 1)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT first_name, last_name, bank_code, account_number FROM customers WHERE id = $1")).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"first_name", "last_name", "bank_code", "account_number"}).
				AddRow("Juan", "Perez", "BCP", "0011223344556677"))

		req := withLoanParam(httptest.NewRequest(http.MethodPut, "/loans/5/disburse", nil), "5")
		w := httptest.NewRecorder()
		svc.DisburseLoan(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var loan models.Loan
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loan))
		assert.Equal(t, models.LoanStatusActive, loan.Status)
		require.NotNil(t, loan.DisbursementDate)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFetchPayoutDetails(t *testing.T) {
	t.Run("maps the customer profile onto the creditor side", func(t *testing.T) {
		svc, mock := newLoanServiceWithMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT first_name, last_name, bank_code, account_number FROM customers WHERE id = $1")).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"first_name", "last_name", "bank_code", "account_number"}).
				AddRow("Juan", "Perez", "BCP", "0011223344556677"))

		payout, err := svc.fetchPayoutDetails(42)
		require.NoError(t, err)
		assert.Equal(t, "Juan Perez", payout.customerName)
		assert.Equal(t, "BCP", payout.bankCode)
		assert.Equal(t, "0011223344556677", payout.accountNumber)
	})

	t.Run("profile without a payout account", func(t *testing.T) {
		svc, mock := newLoanServiceWithMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT first_name, last_name, bank_code, account_number FROM customers WHERE id = $1")).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"first_name", "last_name", "bank_code", "account_number"}).
				AddRow("Juan", "Perez", nil, nil))

		payout, err := svc.fetchPayoutDetails(42)
		require.NoError(t, err)
		assert.Equal(t, "Juan Perez", payout.customerName)
		assert.Empty(t, payout.bankCode)
		assert.Empty(t, payout.accountNumber)
	})
}
