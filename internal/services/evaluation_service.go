package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/PatriickRM/loan-banking-system/internal/middleware"
	"github.com/PatriickRM/loan-banking-system/internal/models"
)

// RiskLevel buckets an evaluation score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Recommendation is the evaluation outcome handed to the analyst.
type Recommendation string

const (
	RecommendApprove      Recommendation = "APPROVE"
	RecommendManualReview Recommendation = "MANUAL_REVIEW"
	RecommendReject       Recommendation = "REJECT"
)

// criterion is one weighted scoring rule. Weights sum to 100.
type criterion struct {
	Name   string
	Weight int
	Score  func(models.Customer, models.CreditHistory) int
}

type EvaluationService struct {
	db        *sql.DB
	validator *ValidationHelper
	criteria  []criterion
}

// EvaluationResponse is the result of one scoring pass
// @Description Credit evaluation result
type EvaluationResponse struct {
	LoanID         int64          `json:"loanId"`
	CustomerID     int64          `json:"customerId"`
	Score          int            `json:"score"`
	RiskLevel      RiskLevel      `json:"riskLevel"`
	Recommendation Recommendation `json:"recommendation"`
	Details        []ScoreDetail  `json:"details"`
	EvaluatedBy    string         `json:"evaluatedBy,omitempty"`
	EvaluatedAt    time.Time      `json:"evaluatedAt"`
}

// ScoreDetail is one criterion's contribution.
type ScoreDetail struct {
	Criteria string `json:"criteria"`
	Weight   int    `json:"weight"`
	Score    int    `json:"score"`
}

func NewEvaluationService(db *sql.DB) *EvaluationService {
	return &EvaluationService{
		db:        db,
		validator: NewValidationHelper(),
		criteria: []criterion{
			{Name: "Monthly Income", Weight: 30, Score: scoreIncome},
			{Name: "Credit History", Weight: 30, Score: scoreCreditHistory},
			{Name: "Payment Capacity", Weight: 25, Score: scorePaymentCapacity},
			{Name: "Work Experience", Weight: 15, Score: scoreWorkExperience},
		},
	}
}

// EvaluateLoan scores the customer behind a pending loan
// @Summary Evaluate loan
// @Description Run the weighted automatic scoring for a loan's customer
// @Tags evaluations
// @Produce json
// @Param loanId path int true "Loan ID"
// @Success 200 {object} EvaluationResponse
// @Failure 404 {object} ErrorResponse
// @Router /evaluations/loans/{loanId} [post]
func (s *EvaluationService) EvaluateLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(chi.URLParam(r, "loanId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid loan id", http.StatusBadRequest, nil)
		return
	}

	var customerID int64
	if err := s.db.QueryRow("SELECT customer_id FROM loans WHERE id = $1", loanID).Scan(&customerID); err != nil {
		SendErrorResponse(w, "Loan not found", http.StatusNotFound, nil)
		return
	}

	customer, err := s.fetchCustomer(customerID)
	if err != nil {
		log.Printf("[EVALUATION] Customer %d not found for loan %d: %v", customerID, loanID, err)
		SendErrorResponse(w, "Customer not found", http.StatusNotFound, nil)
		return
	}

	history, err := s.fetchCreditHistory(customerID)
	if err != nil {
		log.Printf("[EVALUATION] Failed to build credit history for customer %d: %v", customerID, err)
		SendErrorResponse(w, "Failed to evaluate", http.StatusInternalServerError, nil)
		return
	}

	response := s.score(loanID, customer, history)
	if identity, ok := middleware.IdentityFrom(r.Context()); ok {
		response.EvaluatedBy = identity.Username
	}

	_, err = s.db.Exec(
		`INSERT INTO credit_evaluations (loan_id, customer_id, score, risk_level, recommendation, evaluated_by, evaluated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		response.LoanID, response.CustomerID, response.Score, response.RiskLevel,
		response.Recommendation, response.EvaluatedBy, response.EvaluatedAt,
	)
	if err != nil {
		log.Printf("[EVALUATION] Failed to store evaluation for loan %d: %v", loanID, err)
		SendErrorResponse(w, "Failed to store evaluation", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[EVALUATION] Loan %d scored %d (%s, %s)", loanID, response.Score, response.RiskLevel, response.Recommendation)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ListCriteria exposes the active scoring criteria
// @Summary List evaluation criteria
// @Tags evaluations
// @Produce json
// @Success 200 {array} map[string]any
// @Router /evaluations/criteria [get]
func (s *EvaluationService) ListCriteria(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]any, 0, len(s.criteria))
	for _, c := range s.criteria {
		out = append(out, map[string]any{"name": c.Name, "weight": c.Weight})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *EvaluationService) score(loanID int64, customer models.Customer, history models.CreditHistory) EvaluationResponse {
	total := decimal.Zero
	details := make([]ScoreDetail, 0, len(s.criteria))

	for _, c := range s.criteria {
		score := c.Score(customer, history)
		weighted := decimal.NewFromInt(int64(score)).
			Mul(decimal.NewFromInt(int64(c.Weight))).
			DivRound(decimal.NewFromInt(100), 2)
		total = total.Add(weighted)
		details = append(details, ScoreDetail{Criteria: c.Name, Weight: c.Weight, Score: score})
	}

	finalScore := int(total.IntPart())
	return EvaluationResponse{
		LoanID:         loanID,
		CustomerID:     customer.ID,
		Score:          finalScore,
		RiskLevel:      riskLevelFor(finalScore),
		Recommendation: recommendationFor(finalScore),
		Details:        details,
		EvaluatedAt:    time.Now(),
	}
}

func riskLevelFor(score int) RiskLevel {
	switch {
	case score >= 75:
		return RiskLow
	case score >= 50:
		return RiskMedium
	default:
		return RiskHigh
	}
}

func recommendationFor(score int) Recommendation {
	switch {
	case score >= 75:
		return RecommendApprove
	case score >= 50:
		return RecommendManualReview
	default:
		return RecommendReject
	}
}

func scoreIncome(customer models.Customer, _ models.CreditHistory) int {
	income := customer.MonthlyIncome
	switch {
	case income.GreaterThanOrEqual(decimal.NewFromInt(10000)):
		return 100
	case income.GreaterThanOrEqual(decimal.NewFromInt(5000)):
		return 70
	case income.GreaterThanOrEqual(decimal.NewFromInt(3000)):
		return 50
	case income.GreaterThanOrEqual(decimal.NewFromInt(1500)):
		return 30
	default:
		return 10
	}
}

func scoreCreditHistory(_ models.Customer, history models.CreditHistory) int {
	score := 50

	// Completed loans add, defaults subtract.
	completed := history.CompletedLoans * 15
	if completed > 30 {
		completed = 30
	}
	score += completed
	score -= history.DefaultedLoans * 25

	if history.CreditScore != nil {
		switch {
		case *history.CreditScore >= 750:
			score += 20
		case *history.CreditScore >= 650:
			score += 10
		case *history.CreditScore < 550:
			score -= 20
		}
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func scorePaymentCapacity(customer models.Customer, history models.CreditHistory) int {
	if customer.MonthlyIncome.IsZero() {
		return 0
	}

	debtToIncome := history.TotalDebt.DivRound(customer.MonthlyIncome, 4)
	switch {
	case debtToIncome.LessThanOrEqual(decimal.NewFromFloat(0.30)):
		return 100
	case debtToIncome.LessThanOrEqual(decimal.NewFromFloat(0.40)):
		return 70
	case debtToIncome.LessThanOrEqual(decimal.NewFromFloat(0.50)):
		return 40
	case debtToIncome.LessThanOrEqual(decimal.NewFromFloat(0.60)):
		return 20
	default:
		return 0
	}
}

func scoreWorkExperience(customer models.Customer, _ models.CreditHistory) int {
	years := customer.WorkExperienceYears
	switch {
	case years >= 10:
		return 100
	case years >= 5:
		return 75
	case years >= 3:
		return 50
	case years >= 1:
		return 25
	default:
		return 10
	}
}

func (s *EvaluationService) fetchCustomer(customerID int64) (models.Customer, error) {
	var c models.Customer
	err := s.db.QueryRow(
		`SELECT id, user_id, first_name, last_name, document_number, phone_number, monthly_income, work_experience_years, created_at
		 FROM customers WHERE id = $1`, customerID,
	).Scan(&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.DocumentNumber, &c.PhoneNumber,
		&c.MonthlyIncome, &c.WorkExperienceYears, &c.CreatedAt)
	return c, err
}

// fetchCreditHistory aggregates the customer's loan record into the shape
// the scoring rules consume.
func (s *EvaluationService) fetchCreditHistory(customerID int64) (models.CreditHistory, error) {
	history := models.CreditHistory{CustomerID: customerID}

	err := s.db.QueryRow(
		`SELECT
		   COUNT(*) FILTER (WHERE status = $2),
		   COUNT(*) FILTER (WHERE status = $3),
		   COUNT(*) FILTER (WHERE status = $4),
		   COALESCE(SUM(monthly_payment) FILTER (WHERE status = $3), 0)
		 FROM loans WHERE customer_id = $1`,
		customerID, models.LoanStatusCompleted, models.LoanStatusActive, models.LoanStatusDefaulted,
	).Scan(&history.CompletedLoans, &history.ActiveLoans, &history.DefaultedLoans, &history.TotalDebt)
	if err != nil {
		return history, err
	}

	var bureauScore sql.NullInt64
	err = s.db.QueryRow("SELECT credit_score FROM customer_bureau_scores WHERE customer_id = $1", customerID).Scan(&bureauScore)
	if err != nil && err != sql.ErrNoRows {
		return history, err
	}
	if bureauScore.Valid {
		v := int(bureauScore.Int64)
		history.CreditScore = &v
	}

	return history, nil
}
