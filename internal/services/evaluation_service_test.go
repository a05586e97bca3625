package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatriickRM/loan-banking-system/internal/models"
)

func TestScoreIncome(t *testing.T) {
	cases := []struct {
		income string
		want   int
	}{
		{"12000", 100},
		{"10000", 100},
		{"7000", 70},
		{"3500", 50},
		{"2000", 30},
		{"800", 10},
	}
	for _, tc := range cases {
		customer := models.Customer{MonthlyIncome: decimal.RequireFromString(tc.income)}
		assert.Equal(t, tc.want, scoreIncome(customer, models.CreditHistory{}), "income %s", tc.income)
	}
}

func TestScoreCreditHistory(t *testing.T) {
	t.Run("blank history starts at midpoint", func(t *testing.T) {
		assert.Equal(t, 50, scoreCreditHistory(models.Customer{}, models.CreditHistory{}))
	})

	t.Run("completed loans add up to a cap", func(t *testing.T) {
		assert.Equal(t, 65, scoreCreditHistory(models.Customer{}, models.CreditHistory{CompletedLoans: 1}))
		assert.Equal(t, 80, scoreCreditHistory(models.Customer{}, models.CreditHistory{CompletedLoans: 2}))
		// Cap: 5 completed loans count the same as 2.
		assert.Equal(t, 80, scoreCreditHistory(models.Customer{}, models.CreditHistory{CompletedLoans: 5}))
	})

	t.Run("defaults subtract hard", func(t *testing.T) {
		assert.Equal(t, 25, scoreCreditHistory(models.Customer{}, models.CreditHistory{DefaultedLoans: 1}))
		assert.Equal(t, 0, scoreCreditHistory(models.Customer{}, models.CreditHistory{DefaultedLoans: 3}))
	})

	t.Run("bureau score shifts the result", func(t *testing.T) {
		high := 780
		low := 500
		assert.Equal(t, 70, scoreCreditHistory(models.Customer{}, models.CreditHistory{CreditScore: &high}))
		assert.Equal(t, 30, scoreCreditHistory(models.Customer{}, models.CreditHistory{CreditScore: &low}))
	})

	t.Run("clamped to 0..100", func(t *testing.T) {
		high := 780
		history := models.CreditHistory{CompletedLoans: 5, CreditScore: &high}
		assert.Equal(t, 100, scoreCreditHistory(models.Customer{}, history))
	})
}

func TestScorePaymentCapacity(t *testing.T) {
	income := decimal.NewFromInt(5000)
	cases := []struct {
		debt string
		want int
	}{
		{"1000", 100}, // 20% DTI
		{"1500", 100},
		{"2000", 70},
		{"2500", 40},
		{"3000", 20},
		{"4000", 0},
	}
	for _, tc := range cases {
		history := models.CreditHistory{TotalDebt: decimal.RequireFromString(tc.debt)}
		got := scorePaymentCapacity(models.Customer{MonthlyIncome: income}, history)
		assert.Equal(t, tc.want, got, "debt %s", tc.debt)
	}

	t.Run("zero income scores zero", func(t *testing.T) {
		assert.Equal(t, 0, scorePaymentCapacity(models.Customer{}, models.CreditHistory{}))
	})
}

func TestScoreWorkExperience(t *testing.T) {
	cases := map[int]int{12: 100, 10: 100, 7: 75, 3: 50, 1: 25, 0: 10}
	for years, want := range cases {
		assert.Equal(t, want, scoreWorkExperience(models.Customer{WorkExperienceYears: years}, models.CreditHistory{}), "years %d", years)
	}
}

func TestEvaluationScore(t *testing.T) {
	svc := NewEvaluationService(nil)

	t.Run("strong applicant approves", func(t *testing.T) {
		customer := models.Customer{
			ID:                  1,
			MonthlyIncome:       decimal.NewFromInt(12000),
			WorkExperienceYears: 11,
		}
		history := models.CreditHistory{CompletedLoans: 3, TotalDebt: decimal.NewFromInt(1000)}

		result := svc.score(10, customer, history)

		// 100*0.30 + 80*0.30 + 100*0.25 + 100*0.15 = 94
		assert.Equal(t, 94, result.Score)
		assert.Equal(t, RiskLow, result.RiskLevel)
		assert.Equal(t, RecommendApprove, result.Recommendation)
		require.Len(t, result.Details, 4)
		assert.Equal(t, int64(10), result.LoanID)
	})

	t.Run("weak applicant rejects", func(t *testing.T) {
		customer := models.Customer{
			ID:            2,
			MonthlyIncome: decimal.NewFromInt(1000),
		}
		history := models.CreditHistory{DefaultedLoans: 2, TotalDebt: decimal.NewFromInt(900)}

		result := svc.score(11, customer, history)

		// 10*0.30 + 0*0.30 + 0*0.25 + 10*0.15 = 4.5 -> 4
		assert.Equal(t, 4, result.Score)
		assert.Equal(t, RiskHigh, result.RiskLevel)
		assert.Equal(t, RecommendReject, result.Recommendation)
	})

	t.Run("middling applicant goes to manual review", func(t *testing.T) {
		customer := models.Customer{
			ID:                  3,
			MonthlyIncome:       decimal.NewFromInt(3500),
			WorkExperienceYears: 4,
		}
		history := models.CreditHistory{CompletedLoans: 1, TotalDebt: decimal.NewFromInt(1200)}

		result := svc.score(12, customer, history)

		// 50*0.30 + 65*0.30 + 70*0.25 + 50*0.15 = 59.5 -> 59
		assert.Equal(t, 59, result.Score)
		assert.Equal(t, RiskMedium, result.RiskLevel)
		assert.Equal(t, RecommendManualReview, result.Recommendation)
	})
}

func TestRiskAndRecommendationBoundaries(t *testing.T) {
	assert.Equal(t, RiskLow, riskLevelFor(75))
	assert.Equal(t, RiskMedium, riskLevelFor(74))
	assert.Equal(t, RiskMedium, riskLevelFor(50))
	assert.Equal(t, RiskHigh, riskLevelFor(49))

	assert.Equal(t, RecommendApprove, recommendationFor(75))
	assert.Equal(t, RecommendManualReview, recommendationFor(74))
	assert.Equal(t, RecommendManualReview, recommendationFor(50))
	assert.Equal(t, RecommendReject, recommendationFor(49))
}
