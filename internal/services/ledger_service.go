package services

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PatriickRM/loan-banking-system/internal/models"
)

// LoanLedgerService posts balanced double-entry rows for every money
// movement: disbursements out of the funding account, repayments back in.
type LoanLedgerService struct {
	db                  *sql.DB
	fundingAccount      string
	disbursementAccount string
}

func NewLoanLedgerService(db *sql.DB) *LoanLedgerService {
	fundingAccount := "LOAN-FUNDING"
	disbursementAccount := "LOAN-COLLECTIONS"
	if envAccount := os.Getenv("LOAN_FUNDING_ACCOUNT"); envAccount != "" {
		fundingAccount = envAccount
	}
	if envAccount := os.Getenv("LOAN_COLLECTIONS_ACCOUNT"); envAccount != "" {
		disbursementAccount = envAccount
	}
	return &LoanLedgerService{
		db:                  db,
		fundingAccount:      fundingAccount,
		disbursementAccount: disbursementAccount,
	}
}

func (s *LoanLedgerService) FundingAccount() string      { return s.fundingAccount }
func (s *LoanLedgerService) DisbursementAccount() string { return s.disbursementAccount }

// Transfer posts a transaction in its own database transaction, recording
// the payment state transitions around it.
func (s *LoanLedgerService) Transfer(fromAccountID, toAccountID, transactionID string, amount decimal.Decimal) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.appendPaymentState(tx, transactionID, "PENDING"); err != nil {
		return err
	}

	if err := s.TransferTx(tx, fromAccountID, toAccountID, transactionID, amount); err != nil {
		s.appendPaymentState(tx, transactionID, "FAILED")
		return err
	}

	if err := s.appendPaymentState(tx, transactionID, "SUCCESS"); err != nil {
		return err
	}

	return tx.Commit()
}

// TransferTx posts a transaction inside the caller's database transaction.
func (s *LoanLedgerService) TransferTx(tx *sql.Tx, fromAccountID, toAccountID, transactionID string, amount decimal.Decimal) error {
	// Lock accounts in consistent order to prevent deadlocks
	firstLock, secondLock := fromAccountID, toAccountID
	if fromAccountID > toAccountID {
		firstLock, secondLock = toAccountID, fromAccountID
	}

	fromAccount, err := s.lockAccount(tx, firstLock)
	if err != nil {
		return err
	}

	toAccount, err := s.lockAccount(tx, secondLock)
	if err != nil {
		return err
	}

	// Determine which locked account is sender/receiver
	if firstLock != fromAccountID {
		fromAccount, toAccount = toAccount, fromAccount
	}

	if fromAccount.Balance.LessThan(amount) {
		return fmt.Errorf("insufficient balance in account %s", fromAccount.ID)
	}

	if err := s.createLedgerEntry(tx, transactionID, fromAccount.ID, amount.Neg(), "DEBIT", fromAccount.Balance.Sub(amount)); err != nil {
		return err
	}

	if err := s.createLedgerEntry(tx, transactionID, toAccount.ID, amount, "CREDIT", toAccount.Balance.Add(amount)); err != nil {
		return err
	}

	if err := s.updateAccountBalance(tx, fromAccount.ID, fromAccount.Balance.Sub(amount), fromAccount.Version); err != nil {
		return err
	}

	if err := s.updateAccountBalance(tx, toAccount.ID, toAccount.Balance.Add(amount), toAccount.Version); err != nil {
		return err
	}

	return nil
}

func (s *LoanLedgerService) appendPaymentState(tx *sql.Tx, transactionID, state string) error {
	_, err := tx.Exec(`
		INSERT INTO payment_states (transaction_id, state, created_at)
		VALUES ($1, $2, $3)`,
		transactionID, state, time.Now())
	return err
}

func (s *LoanLedgerService) lockAccount(tx *sql.Tx, accountID string) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRow(`
		SELECT id, balance, version, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE`, accountID).Scan(&account.ID, &account.Balance, &account.Version, &account.UpdatedAt)

	return &account, err
}

func (s *LoanLedgerService) createLedgerEntry(tx *sql.Tx, transactionID, accountID string, amount decimal.Decimal, entryType string, balance decimal.Decimal) error {
	_, err := tx.Exec(`
		INSERT INTO ledger_entries (transaction_id, account_id, amount, entry_type, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		transactionID, accountID, amount, entryType, balance, time.Now())
	return err
}

func (s *LoanLedgerService) updateAccountBalance(tx *sql.Tx, accountID string, newBalance decimal.Decimal, version int) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), accountID, version)

	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %s", accountID)
	}

	return nil
}
