package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PatriickRM/loan-banking-system/internal/amortization"
	"github.com/PatriickRM/loan-banking-system/internal/middleware"
	"github.com/PatriickRM/loan-banking-system/internal/models"
)

type PaymentService struct {
	db        *sql.DB
	redis     *redis.Client
	ledger    *LoanLedgerService
	validator *ValidationHelper
}

// PaymentRequest represents an installment payment
// @Description Payment request structure
type PaymentRequest struct {
	LoanID          int64                `json:"loanId" validate:"required,gt=0"`
	Amount          decimal.Decimal      `json:"amount" validate:"required"`
	PaymentMethod   models.PaymentMethod `json:"paymentMethod" validate:"required,oneof=CASH CARD BANK_TRANSFER QR"`
	Card            *models.CardDetails  `json:"card,omitempty"`
	ReferenceNumber string               `json:"referenceNumber,omitempty" validate:"max=50"`
	Notes           string               `json:"notes,omitempty" validate:"max=500"`

	// Partial, when set, records an under-amount payment instead of
	// rejecting it. The installment stays open as PARTIAL.
	Partial bool `json:"partial,omitempty"`
}

// ScheduleResponse is the reconciled schedule view for one loan
// @Description Reconciled schedule with aggregates
type ScheduleResponse struct {
	LoanID          int64                          `json:"loanId"`
	Entries         []models.ScheduleEntryResponse `json:"entries"`
	CompletedCount  int                            `json:"completedCount"`
	ProgressPercent int                            `json:"progressPercent"`
	NextInstallment *models.ScheduleEntryResponse  `json:"nextInstallment,omitempty"`
	UnmatchedCount  int                            `json:"unmatchedCount"`
}

func NewPaymentService(db *sql.DB, redisClient *redis.Client, ledger *LoanLedgerService) *PaymentService {
	return &PaymentService{
		db:        db,
		redis:     redisClient,
		ledger:    ledger,
		validator: NewValidationHelper(),
	}
}

// ProcessPayment records a payment against the next payable installment
// @Summary Process payment
// @Description Pay the next open installment of a loan, late fee included when overdue
// @Tags payments
// @Accept json
// @Produce json
// @Param request body PaymentRequest true "Payment"
// @Success 200 {object} models.Payment
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /payments [post]
func (s *PaymentService) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req PaymentRequest
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
	if !req.Amount.IsPositive() {
		SendErrorResponse(w, "Amount must be positive", http.StatusBadRequest, nil)
		return
	}

	if req.PaymentMethod == models.PaymentMethodCard {
		if req.Card == nil {
			SendErrorResponse(w, "Card details required for card payments", http.StatusBadRequest, nil)
			return
		}
		if err := s.validator.ValidateStruct(req.Card); err != nil {
			SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
			return
		}
		if !LuhnValid(req.Card.CardNumber) {
			SendErrorResponse(w, "Invalid card number", http.StatusBadRequest, nil)
			return
		}
		if !CardExpiryValid(req.Card.Expiry, time.Now()) {
			SendErrorResponse(w, "Card expired", http.StatusBadRequest, nil)
			return
		}
	}

	rows, payments, err := s.loadLoanState(req.LoanID)
	if err != nil {
		log.Printf("[PAYMENT] Failed to load schedule for loan %d: %v", req.LoanID, err)
		SendErrorResponse(w, "Failed to load schedule", http.StatusInternalServerError, nil)
		return
	}
	if len(rows) == 0 {
		SendErrorResponse(w, "No schedule for this loan", http.StatusNotFound, nil)
		return
	}

	installments := make([]amortization.Installment, len(rows))
	for i, row := range rows {
		installments[i] = row.Installment()
	}
	result := amortization.Reconcile(installments, payments, time.Now())
	for _, stray := range result.Unmatched {
		log.Printf("[PAYMENT] Unreconcilable payment for loan %d: installment %d not in schedule", req.LoanID, stray.InstallmentNumber)
	}

	next, ok := result.NextPayable()
	if !ok {
		SendErrorResponse(w, "No open installments for this loan", http.StatusConflict, nil)
		return
	}

	charge := amortization.ComputeCharge(next)
	if req.Amount.LessThan(charge.TotalDue) && !req.Partial {
		SendErrorResponse(w, fmt.Sprintf("Insufficient amount. Full installment due: %s", charge.TotalDue.StringFixed(2)), http.StatusBadRequest, nil)
		return
	}

	scheduleRow := rows[0]
	for _, row := range rows {
		if row.InstallmentNumber == next.InstallmentNumber {
			scheduleRow = row
			break
		}
	}

	// Row status follows the reconciliation rule: cumulative payments at or
	// above the installment amount close it. The late fee never changes the
	// paid threshold.
	newStatus := amortization.StatusPaid
	if req.Amount.Add(next.AmountPaid).LessThan(next.TotalAmount) {
		newStatus = amortization.StatusPartial
	}

	payment := models.Payment{
		LoanID:            req.LoanID,
		ScheduleID:        scheduleRow.ID,
		InstallmentNumber: next.InstallmentNumber,
		Amount:            req.Amount,
		PrincipalPaid:     next.PrincipalComponent,
		InterestPaid:      next.InterestComponent,
		LateFee:           charge.LateFee,
		PaymentMethod:     req.PaymentMethod,
		TransactionID:     uuid.New().String(),
		ReferenceNumber:   req.ReferenceNumber,
		Notes:             req.Notes,
		PaymentDate:       time.Now(),
		DueDate:           next.DueDate,
		Status:            models.PaymentStatusCompleted,
	}
	if identity, ok := middleware.IdentityFrom(r.Context()); ok {
		payment.ProcessedBy = identity.Username
	}
	if req.Card != nil {
		payment.Notes = fmt.Sprintf("%s [card %s]", payment.Notes, req.Card.MaskedNumber())
	}

	tx, err := s.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	err = tx.QueryRow(
		`INSERT INTO payments (loan_id, schedule_id, installment_number, amount, principal_paid, interest_paid, late_fee,
		 payment_method, transaction_id, reference_number, notes, processed_by, payment_date, due_date, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
		payment.LoanID, payment.ScheduleID, payment.InstallmentNumber, payment.Amount, payment.PrincipalPaid,
		payment.InterestPaid, payment.LateFee, payment.PaymentMethod, payment.TransactionID,
		payment.ReferenceNumber, payment.Notes, payment.ProcessedBy, payment.PaymentDate, payment.DueDate, payment.Status,
	).Scan(&payment.ID)
	if err != nil {
		log.Printf("[PAYMENT] Failed to store payment for loan %d: %v", req.LoanID, err)
		SendErrorResponse(w, "Failed to store payment", http.StatusInternalServerError, nil)
		return
	}

	_, err = tx.Exec(
		"UPDATE payment_schedules SET status = $1 WHERE id = $2",
		newStatus, scheduleRow.ID,
	)
	if err != nil {
		SendErrorResponse(w, "Failed to update schedule", http.StatusInternalServerError, nil)
		return
	}

	// Repayments flow from collections into the funding account.
	if err := s.ledger.TransferTx(tx, s.ledger.DisbursementAccount(), s.ledger.FundingAccount(), payment.TransactionID, req.Amount); err != nil {
		log.Printf("[PAYMENT] Ledger posting failed for loan %d: %v", req.LoanID, err)
		SendErrorResponse(w, "Failed to post payment", http.StatusInternalServerError, nil)
		return
	}

	// A fully paid final installment completes the loan.
	if newStatus == amortization.StatusPaid && result.CompletedCount+1 == len(rows) {
		if _, err := tx.Exec(
			"UPDATE loans SET status = $1, updated_at = NOW() WHERE id = $2",
			models.LoanStatusCompleted, req.LoanID,
		); err != nil {
			SendErrorResponse(w, "Failed to complete loan", http.StatusInternalServerError, nil)
			return
		}
		log.Printf("[PAYMENT] Loan %d fully repaid", req.LoanID)
	}

	if err = tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to process payment", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[PAYMENT] Recorded payment %s for loan %d installment %d (%s, late fee %s)",
		payment.TransactionID, req.LoanID, payment.InstallmentNumber, payment.Amount.StringFixed(2), payment.LateFee.StringFixed(2))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payment)
}

// GetSchedule returns the reconciled schedule of a loan
// @Summary Get reconciled schedule
// @Description Installments with status, days-until-due and progress aggregates
// @Tags payments
// @Produce json
// @Param loanId path int true "Loan ID"
// @Success 200 {object} ScheduleResponse
// @Failure 404 {object} ErrorResponse
// @Router /loans/{loanId}/schedule [get]
func (s *PaymentService) GetSchedule(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "loanId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid loan id", http.StatusBadRequest, nil)
		return
	}

	rows, payments, err := s.loadLoanState(loanID)
	if err != nil {
		log.Printf("[PAYMENT] Failed to load schedule for loan %d: %v", loanID, err)
		SendErrorResponse(w, "Unable to compute schedule", http.StatusInternalServerError, nil)
		return
	}
	if len(rows) == 0 {
		SendErrorResponse(w, "No schedule for this loan", http.StatusNotFound, nil)
		return
	}

	installments := make([]amortization.Installment, len(rows))
	for i, row := range rows {
		installments[i] = row.Installment()
	}
	result := amortization.Reconcile(installments, payments, time.Now())
	for _, stray := range result.Unmatched {
		log.Printf("[PAYMENT] Unreconcilable payment for loan %d: installment %d not in schedule", loanID, stray.InstallmentNumber)
	}

	resp := ScheduleResponse{
		LoanID:          loanID,
		Entries:         make([]models.ScheduleEntryResponse, 0, len(result.Entries)),
		CompletedCount:  result.CompletedCount,
		ProgressPercent: result.ProgressPercent,
		UnmatchedCount:  len(result.Unmatched),
	}
	for _, e := range result.Entries {
		resp.Entries = append(resp.Entries, models.NewScheduleEntryResponse(e))
	}
	if next, ok := result.NextPayable(); ok {
		nr := models.NewScheduleEntryResponse(next)
		resp.NextInstallment = &nr
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetCharge returns the exact amount due for the next payable installment
// @Summary Get payment charge
// @Description Base amount, late fee and total due for the next open installment
// @Tags payments
// @Produce json
// @Param loanId path int true "Loan ID"
// @Success 200 {object} map[string]any
// @Failure 409 {object} ErrorResponse
// @Router /loans/{loanId}/charge [get]
func (s *PaymentService) GetCharge(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "loanId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid loan id", http.StatusBadRequest, nil)
		return
	}

	rows, payments, err := s.loadLoanState(loanID)
	if err != nil || len(rows) == 0 {
		SendErrorResponse(w, "No schedule for this loan", http.StatusNotFound, nil)
		return
	}

	installments := make([]amortization.Installment, len(rows))
	for i, row := range rows {
		installments[i] = row.Installment()
	}
	next, ok := amortization.Reconcile(installments, payments, time.Now()).NextPayable()
	if !ok {
		SendErrorResponse(w, "No open installments for this loan", http.StatusConflict, nil)
		return
	}

	charge := amortization.ComputeCharge(next)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"installmentNumber": next.InstallmentNumber,
		"baseAmount":        charge.BaseAmount,
		"lateFee":           charge.LateFee,
		"totalDue":          charge.TotalDue,
		"isOverdue":         next.IsOverdue,
		"daysUntilDue":      next.DaysUntilDue,
	})
}

// ListPayments returns recorded payments for a loan
// @Summary List payments
// @Tags payments
// @Produce json
// @Param loanId path int true "Loan ID"
// @Success 200 {array} models.Payment
// @Router /loans/{loanId}/payments [get]
func (s *PaymentService) ListPayments(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "loanId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid loan id", http.StatusBadRequest, nil)
		return
	}

	rows, err := s.db.Query(
		`SELECT id, loan_id, schedule_id, installment_number, amount, principal_paid, interest_paid, late_fee,
		 payment_method, transaction_id, reference_number, notes, processed_by, payment_date, due_date, status
		 FROM payments WHERE loan_id = $1 ORDER BY payment_date DESC`, loanID)
	if err != nil {
		log.Printf("[PAYMENT] Failed to list payments for loan %d: %v", loanID, err)
		SendErrorResponse(w, "Failed to list payments", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		var p models.Payment
		var ref, notes, processedBy sql.NullString
		err := rows.Scan(&p.ID, &p.LoanID, &p.ScheduleID, &p.InstallmentNumber, &p.Amount, &p.PrincipalPaid,
			&p.InterestPaid, &p.LateFee, &p.PaymentMethod, &p.TransactionID, &ref, &notes, &processedBy,
			&p.PaymentDate, &p.DueDate, &p.Status)
		if err != nil {
			log.Printf("[PAYMENT] Failed to scan payment row: %v", err)
			continue
		}
		p.ReferenceNumber = ref.String
		p.Notes = notes.String
		p.ProcessedBy = processedBy.String
		payments = append(payments, p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payments)
}

// UpcomingPayments returns installments due within the given horizon
// @Summary Upcoming payments
// @Tags payments
// @Produce json
// @Param days query int false "Days ahead (default 7)"
// @Success 200 {array} models.ScheduleRow
// @Router /payments/upcoming [get]
func (s *PaymentService) UpcomingPayments(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			days = v
		}
	}

	rows, err := s.db.Query(
		`SELECT id, loan_id, installment_number, amount, principal, interest, remaining_balance, due_date, status, created_at
		 FROM payment_schedules
		 WHERE status = $1 AND due_date BETWEEN CURRENT_DATE AND CURRENT_DATE + $2 * INTERVAL '1 day'
		 ORDER BY due_date`,
		amortization.StatusPending, days)
	if err != nil {
		log.Printf("[PAYMENT] Failed to list upcoming payments: %v", err)
		SendErrorResponse(w, "Failed to list upcoming payments", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	schedules := scanScheduleRows(rows)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedules)
}

// OverduePayments returns schedule rows already past due
// @Summary Overdue payments
// @Tags payments
// @Produce json
// @Success 200 {array} models.ScheduleRow
// @Router /payments/overdue [get]
func (s *PaymentService) OverduePayments(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, installment_number, amount, principal, interest, remaining_balance, due_date, status, created_at
		 FROM payment_schedules
		 WHERE status IN ($1, $2) AND due_date < CURRENT_DATE
		 ORDER BY due_date`,
		amortization.StatusPending, amortization.StatusOverdue)
	if err != nil {
		log.Printf("[PAYMENT] Failed to list overdue payments: %v", err)
		SendErrorResponse(w, "Failed to list overdue payments", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	schedules := scanScheduleRows(rows)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedules)
}

// loadLoanState fetches the persisted schedule rows and the recorded
// payments that reconciliation classifies them against.
func (s *PaymentService) loadLoanState(loanID int64) ([]models.ScheduleRow, []amortization.PaymentRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, installment_number, amount, principal, interest, remaining_balance, due_date, status, created_at
		 FROM payment_schedules WHERE loan_id = $1 ORDER BY installment_number`, loanID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	schedules := scanScheduleRows(rows)

	payRows, err := s.db.Query(
		"SELECT installment_number, amount FROM payments WHERE loan_id = $1 AND status = $2",
		loanID, models.PaymentStatusCompleted)
	if err != nil {
		return nil, nil, err
	}
	defer payRows.Close()

	var payments []amortization.PaymentRecord
	for payRows.Next() {
		var rec amortization.PaymentRecord
		if err := payRows.Scan(&rec.InstallmentNumber, &rec.AmountPaid); err != nil {
			log.Printf("[PAYMENT] Skipping unreadable payment row for loan %d: %v", loanID, err)
			continue
		}
		payments = append(payments, rec)
	}

	return schedules, payments, nil
}

func scanScheduleRows(rows *sql.Rows) []models.ScheduleRow {
	schedules := []models.ScheduleRow{}
	for rows.Next() {
		var row models.ScheduleRow
		err := rows.Scan(&row.ID, &row.LoanID, &row.InstallmentNumber, &row.Amount, &row.Principal,
			&row.Interest, &row.RemainingBalance, &row.DueDate, &row.Status, &row.CreatedAt)
		if err != nil {
			log.Printf("[PAYMENT] Failed to scan schedule row: %v", err)
			continue
		}
		schedules = append(schedules, row)
	}
	return schedules
}
