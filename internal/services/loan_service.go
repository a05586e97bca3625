package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PatriickRM/loan-banking-system/internal/amortization"
	"github.com/PatriickRM/loan-banking-system/internal/middleware"
	"github.com/PatriickRM/loan-banking-system/internal/models"
	"github.com/PatriickRM/loan-banking-system/internal/session"
)

type LoanService struct {
	db        *sql.DB
	ledger    *LoanLedgerService
	iso       *ISO20022Service
	validator *ValidationHelper
}

// LoanRequest represents a loan application payload
// @Description Loan application structure
type LoanRequest struct {
	CustomerID   int64           `json:"customerId" validate:"required,gt=0"`
	LoanType     string          `json:"loanType" validate:"required,oneof=PERSONAL HIPOTECARIO VEHICULAR NEGOCIO"`
	Amount       decimal.Decimal `json:"amount" validate:"required,gt=0"`
	InterestRate decimal.Decimal `json:"interestRate" validate:"gte=0"`
	TermMonths   int             `json:"termMonths" validate:"required,gte=1,lte=360"`
	Purpose      string          `json:"purpose" validate:"max=500"`
}

// LoanApprovalRequest carries optional adjusted terms set by the analyst.
type LoanApprovalRequest struct {
	ApprovedAmount *decimal.Decimal `json:"approvedAmount,omitempty"`
	ApprovedRate   *decimal.Decimal `json:"approvedRate,omitempty"`
	Comments       string           `json:"comments" validate:"max=500"`
}

// LoanRejectionRequest carries the mandatory rejection reason.
type LoanRejectionRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func NewLoanService(db *sql.DB, ledger *LoanLedgerService, iso *ISO20022Service) *LoanService {
	return &LoanService{
		db:        db,
		ledger:    ledger,
		iso:       iso,
		validator: NewValidationHelper(),
	}
}

// CreateLoan handles a new loan application
// @Summary Create loan application
// @Description Register a loan application and compute its monthly payment
// @Tags loans
// @Accept json
// @Produce json
// @Param request body LoanRequest true "Loan application"
// @Success 201 {object} models.Loan
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /loans [post]
func (s *LoanService) CreateLoan(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoanRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Customers may only apply for themselves; back-office roles may apply
	// on behalf of any customer.
	if identity, ok := middleware.IdentityFrom(r.Context()); ok {
		if !identity.HasAnyRole(session.RoleAdmin, session.RoleAnalista) {
			if identity.CustomerID == nil || *identity.CustomerID != req.CustomerID {
				SendErrorResponse(w, "Cannot apply for another customer", http.StatusForbidden, nil)
				return
			}
		}
	}

	terms := amortization.LoanTerms{
		Principal:         req.Amount,
		AnnualRatePercent: req.InterestRate,
		TermMonths:        req.TermMonths,
	}
	monthlyPayment, err := amortization.MonthlyPayment(terms)
	if err != nil {
		log.Printf("[LOAN] Invalid terms for customer %d: %v", req.CustomerID, err)
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	totalAmount := monthlyPayment.Mul(decimal.NewFromInt(int64(req.TermMonths)))

	loan := models.Loan{
		CustomerID:      req.CustomerID,
		LoanType:        req.LoanType,
		Amount:          req.Amount,
		InterestRate:    req.InterestRate,
		TermMonths:      req.TermMonths,
		MonthlyPayment:  monthlyPayment,
		TotalAmount:     totalAmount,
		Purpose:         req.Purpose,
		Status:          models.LoanStatusPending,
		ApplicationDate: time.Now(),
	}

	err = s.db.QueryRow(
		`INSERT INTO loans (customer_id, loan_type, amount, interest_rate, term_months, monthly_payment, total_amount, purpose, status, application_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at, updated_at`,
		loan.CustomerID, loan.LoanType, loan.Amount, loan.InterestRate, loan.TermMonths,
		loan.MonthlyPayment, loan.TotalAmount, loan.Purpose, loan.Status, loan.ApplicationDate,
	).Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		log.Printf("[LOAN] Failed to store loan for customer %d: %v", req.CustomerID, err)
		SendErrorResponse(w, "Failed to create loan", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[LOAN] Created loan %d for customer %d (%s, %d months)", loan.ID, loan.CustomerID, loan.Amount, loan.TermMonths)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

// GetLoan returns one loan by id
// @Summary Get loan
// @Tags loans
// @Produce json
// @Param loanId path int true "Loan ID"
// @Success 200 {object} models.Loan
// @Failure 404 {object} ErrorResponse
// @Router /loans/{loanId} [get]
func (s *LoanService) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "loanId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid loan id", http.StatusBadRequest, nil)
		return
	}

	loan, err := s.fetchLoan(loanID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Loan not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[LOAN] Failed to fetch loan %d: %v", loanID, err)
		SendErrorResponse(w, "Failed to fetch loan", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loan)
}

// ListLoans returns loans, optionally filtered by status or customer
// @Summary List loans
// @Tags loans
// @Produce json
// @Param status query string false "Filter by status"
// @Param customerId query int false "Filter by customer"
// @Success 200 {array} models.Loan
// @Router /loans [get]
func (s *LoanService) ListLoans(w http.ResponseWriter, r *http.Request) {
	query := `SELECT id, customer_id, loan_type, amount, interest_rate, term_months, monthly_payment, total_amount,
	          purpose, status, rejection_reason, approved_by, application_date, approval_date, disbursement_date, created_at, updated_at
	          FROM loans`
	var args []any

	status := r.URL.Query().Get("status")
	customerID := r.URL.Query().Get("customerId")
	switch {
	case status != "":
		query += " WHERE status = $1"
		args = append(args, status)
	case customerID != "":
		query += " WHERE customer_id = $1"
		args = append(args, customerID)
	}
	query += " ORDER BY application_date DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("[LOAN] Failed to list loans: %v", err)
		SendErrorResponse(w, "Failed to list loans", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	loans := []models.Loan{}
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			log.Printf("[LOAN] Failed to scan loan row: %v", err)
			continue
		}
		loans = append(loans, loan)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loans)
}

// MyLoans returns the loans of the authenticated customer
// @Summary List own loans
// @Tags loans
// @Produce json
// @Success 200 {array} models.Loan
// @Failure 403 {object} ErrorResponse
// @Router /loans/mine [get]
func (s *LoanService) MyLoans(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok || identity.CustomerID == nil {
		SendErrorResponse(w, "No customer profile linked", http.StatusForbidden, nil)
		return
	}

	rows, err := s.db.Query(
		`SELECT id, customer_id, loan_type, amount, interest_rate, term_months, monthly_payment, total_amount,
		 purpose, status, rejection_reason, approved_by, application_date, approval_date, disbursement_date, created_at, updated_at
		 FROM loans WHERE customer_id = $1 ORDER BY application_date DESC`,
		*identity.CustomerID,
	)
	if err != nil {
		log.Printf("[LOAN] Failed to list loans for customer %d: %v", *identity.CustomerID, err)
		SendErrorResponse(w, "Failed to list loans", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	loans := []models.Loan{}
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			continue
		}
		loans = append(loans, loan)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loans)
}

// ApproveLoan moves a PENDING loan to APPROVED
// @Summary Approve loan
// @Description Approve a pending loan, optionally with adjusted terms
// @Tags loans
// @Accept json
// @Produce json
// @Param loanId path int true "Loan ID"
// @Param request body LoanApprovalRequest true "Approval"
// @Success 200 {object} models.Loan
// @Failure 409 {object} ErrorResponse
// @Router /loans/{loanId}/approve [put]
func (s *LoanService) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "loanId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid loan id", http.StatusBadRequest, nil)
		return
	}

	var req LoanApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	loan, err := s.fetchLoan(loanID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Loan not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch loan", http.StatusInternalServerError, nil)
		return
	}
	if loan.Status != models.LoanStatusPending {
		SendErrorResponse(w, "Only pending loans can be approved", http.StatusConflict, nil)
		return
	}

	if req.ApprovedAmount != nil {
		loan.Amount = *req.ApprovedAmount
	}
	if req.ApprovedRate != nil {
		loan.InterestRate = *req.ApprovedRate
	}

	// Adjusted terms change the installment.
	monthlyPayment, err := amortization.MonthlyPayment(amortization.LoanTerms{
		Principal:         loan.Amount,
		AnnualRatePercent: loan.InterestRate,
		TermMonths:        loan.TermMonths,
	})
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	loan.MonthlyPayment = monthlyPayment
	loan.TotalAmount = monthlyPayment.Mul(decimal.NewFromInt(int64(loan.TermMonths)))

	var approverID *int64
	if identity, ok := middleware.IdentityFrom(r.Context()); ok {
		approverID = identity.UserID
	}

	now := time.Now()
	_, err = s.db.Exec(
		`UPDATE loans SET status = $1, amount = $2, interest_rate = $3, monthly_payment = $4, total_amount = $5,
		 approved_by = $6, approval_date = $7, updated_at = NOW() WHERE id = $8`,
		models.LoanStatusApproved, loan.Amount, loan.InterestRate, loan.MonthlyPayment, loan.TotalAmount,
		approverID, now, loanID,
	)
	if err != nil {
		log.Printf("[LOAN] Failed to approve loan %d: %v", loanID, err)
		SendErrorResponse(w, "Failed to approve loan", http.StatusInternalServerError, nil)
		return
	}

	loan.Status = models.LoanStatusApproved
	loan.ApprovedBy = approverID
	loan.ApprovalDate = &now

	log.Printf("[LOAN] Approved loan %d", loanID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loan)
}

// RejectLoan moves a PENDING loan to REJECTED
// @Summary Reject loan
// @Tags loans
// @Accept json
// @Produce json
// @Param loanId path int true "Loan ID"
// @Param request body LoanRejectionRequest true "Rejection"
// @Success 200 {object} models.Loan
// @Failure 409 {object} ErrorResponse
// @Router /loans/{loanId}/reject [put]
func (s *LoanService) RejectLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "loanId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid loan id", http.StatusBadRequest, nil)
		return
	}

	var req LoanRejectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	res, err := s.db.Exec(
		"UPDATE loans SET status = $1, rejection_reason = $2, updated_at = NOW() WHERE id = $3 AND status = $4",
		models.LoanStatusRejected, req.Reason, loanID, models.LoanStatusPending,
	)
	if err != nil {
		log.Printf("[LOAN] Failed to reject loan %d: %v", loanID, err)
		SendErrorResponse(w, "Failed to reject loan", http.StatusInternalServerError, nil)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		SendErrorResponse(w, "Only pending loans can be rejected", http.StatusConflict, nil)
		return
	}

	log.Printf("[LOAN] Rejected loan %d: %s", loanID, req.Reason)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"id": loanID, "status": models.LoanStatusRejected, "reason": req.Reason})
}

// DisburseLoan activates an APPROVED loan: persists its repayment schedule,
// posts the principal to the ledger and emits the settlement instruction.
// @Summary Disburse loan
// @Tags loans
// @Produce json
// @Param loanId path int true "Loan ID"
// @Success 200 {object} models.Loan
// @Failure 409 {object} ErrorResponse
// @Router /loans/{loanId}/disburse [put]
func (s *LoanService) DisburseLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "loanId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid loan id", http.StatusBadRequest, nil)
		return
	}

	loan, err := s.fetchLoan(loanID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Loan not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch loan", http.StatusInternalServerError, nil)
		return
	}
	if loan.Status != models.LoanStatusApproved {
		SendErrorResponse(w, "Only approved loans can be disbursed", http.StatusConflict, nil)
		return
	}

	startDate := time.Now()
	schedule, err := amortization.ComputeSchedule(amortization.LoanTerms{
		Principal:         loan.Amount,
		AnnualRatePercent: loan.InterestRate,
		TermMonths:        loan.TermMonths,
	}, startDate)
	if err != nil {
		// Terms were validated at creation; reaching this means stored data
		// is corrupt, which must not produce a partial schedule.
		log.Printf("[LOAN] Schedule computation failed for loan %d: %v", loanID, err)
		SendErrorResponse(w, "Unable to compute schedule", http.StatusInternalServerError, nil)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to disburse loan", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	for _, inst := range schedule {
		row := models.NewScheduleRow(loanID, inst)
		_, err = tx.Exec(
			`INSERT INTO payment_schedules (loan_id, installment_number, amount, principal, interest, remaining_balance, due_date, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			row.LoanID, row.InstallmentNumber, row.Amount, row.Principal, row.Interest, row.RemainingBalance, row.DueDate, row.Status,
		)
		if err != nil {
			log.Printf("[LOAN] Failed to store schedule for loan %d: %v", loanID, err)
			SendErrorResponse(w, "Failed to store schedule", http.StatusInternalServerError, nil)
			return
		}
	}

	transactionID := uuid.New().String()
	_, err = tx.Exec(
		"UPDATE loans SET status = $1, disbursement_date = $2, updated_at = NOW() WHERE id = $3",
		models.LoanStatusActive, startDate, loanID,
	)
	if err != nil {
		SendErrorResponse(w, "Failed to disburse loan", http.StatusInternalServerError, nil)
		return
	}

	// Move principal from the funding account to collections.
	if err := s.ledger.TransferTx(tx, s.ledger.FundingAccount(), s.ledger.DisbursementAccount(), transactionID, loan.Amount); err != nil {
		log.Printf("[LOAN] Ledger posting failed for loan %d: %v", loanID, err)
		SendErrorResponse(w, "Failed to post disbursement", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to disburse loan", http.StatusInternalServerError, nil)
		return
	}

	// Settlement instruction for the banking rails; failure here does not
	// undo the disbursement, it is retried by back office.
	payout, err := s.fetchPayoutDetails(loan.CustomerID)
	if err != nil {
		log.Printf("[LOAN] Payout lookup failed for customer %d: %v", loan.CustomerID, err)
	}
	disbursement := models.Disbursement{
		LoanID:        loanID,
		TransactionID: transactionID,
		ReferenceID:   uuid.New().String(),
		CustomerName:  payout.customerName,
		BankCode:      payout.bankCode,
		AccountNumber: payout.accountNumber,
		Amount:        loan.Amount,
		Currency:      models.DefaultCurrency,
		Status:        "PENDING",
		CreatedAt:     startDate,
	}
	if _, err := s.iso.BuildPacs008(&disbursement); err != nil {
		log.Printf("[LOAN] ISO 20022 export failed for loan %d: %v", loanID, err)
	}

	loan.Status = models.LoanStatusActive
	loan.DisbursementDate = &startDate

	log.Printf("[LOAN] Disbursed loan %d (%d installments)", loanID, len(schedule))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loan)
}

// CancelLoan cancels a loan that has not been disbursed, voiding any
// remaining schedule rows.
// @Summary Cancel loan
// @Tags loans
// @Produce json
// @Param loanId path int true "Loan ID"
// @Success 200 {object} map[string]any
// @Failure 409 {object} ErrorResponse
// @Router /loans/{loanId}/cancel [put]
func (s *LoanService) CancelLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "loanId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid loan id", http.StatusBadRequest, nil)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to cancel loan", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"UPDATE loans SET status = $1, updated_at = NOW() WHERE id = $2 AND status IN ($3, $4, $5)",
		models.LoanStatusCancelled, loanID,
		models.LoanStatusPending, models.LoanStatusApproved, models.LoanStatusActive,
	)
	if err != nil {
		SendErrorResponse(w, "Failed to cancel loan", http.StatusInternalServerError, nil)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		SendErrorResponse(w, "Loan cannot be cancelled", http.StatusConflict, nil)
		return
	}

	// Unpaid installments become CANCELLED, a terminal status.
	_, err = tx.Exec(
		"UPDATE payment_schedules SET status = $1 WHERE loan_id = $2 AND status IN ($3, $4, $5)",
		amortization.StatusCancelled, loanID,
		amortization.StatusPending, amortization.StatusOverdue, amortization.StatusPartial,
	)
	if err != nil {
		SendErrorResponse(w, "Failed to void schedule", http.StatusInternalServerError, nil)
		return
	}

	if err = tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to cancel loan", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[LOAN] Cancelled loan %d", loanID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"id": loanID, "status": models.LoanStatusCancelled})
}

type payoutDetails struct {
	customerName  string
	bankCode      string
	accountNumber string
}

// fetchPayoutDetails loads the creditor side of a disbursement instruction
// from the customer profile.
func (s *LoanService) fetchPayoutDetails(customerID int64) (payoutDetails, error) {
	var p payoutDetails
	var firstName, lastName string
	var bankCode, accountNumber sql.NullString
	err := s.db.QueryRow(
		`SELECT first_name, last_name, bank_code, account_number FROM customers WHERE id = $1`, customerID,
	).Scan(&firstName, &lastName, &bankCode, &accountNumber)
	if err != nil {
		return payoutDetails{}, err
	}
	p.customerName = firstName + " " + lastName
	p.bankCode = bankCode.String
	p.accountNumber = accountNumber.String
	return p, nil
}

func (s *LoanService) fetchLoan(loanID int64) (models.Loan, error) {
	row := s.db.QueryRow(
		`SELECT id, customer_id, loan_type, amount, interest_rate, term_months, monthly_payment, total_amount,
		 purpose, status, rejection_reason, approved_by, application_date, approval_date, disbursement_date, created_at, updated_at
		 FROM loans WHERE id = $1`, loanID)
	return scanLoan(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (models.Loan, error) {
	var loan models.Loan
	var rejection sql.NullString
	var approvedBy sql.NullInt64
	var approvalDate, disbursementDate sql.NullTime
	err := row.Scan(
		&loan.ID, &loan.CustomerID, &loan.LoanType, &loan.Amount, &loan.InterestRate, &loan.TermMonths,
		&loan.MonthlyPayment, &loan.TotalAmount, &loan.Purpose, &loan.Status, &rejection, &approvedBy,
		&loan.ApplicationDate, &approvalDate, &disbursementDate, &loan.CreatedAt, &loan.UpdatedAt,
	)
	if err != nil {
		return models.Loan{}, err
	}
	loan.RejectionReason = rejection.String
	if approvedBy.Valid {
		loan.ApprovedBy = &approvedBy.Int64
	}
	if approvalDate.Valid {
		loan.ApprovalDate = &approvalDate.Time
	}
	if disbursementDate.Valid {
		loan.DisbursementDate = &disbursementDate.Time
	}
	return loan, nil
}
