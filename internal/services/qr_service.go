package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/PatriickRM/loan-banking-system/internal/amortization"
	"github.com/PatriickRM/loan-banking-system/internal/models"
)

// qrIntentTTL bounds how long a generated payment intent stays redeemable.
const qrIntentTTL = 5 * time.Minute

type QRService struct {
	db    *sql.DB
	redis *redis.Client
}

// InstallmentQRIntent is the payload encoded into an installment payment QR.
// TotalDue already includes the late fee when the installment is overdue.
type InstallmentQRIntent struct {
	LoanID            int64  `json:"loanId"`
	InstallmentNumber int    `json:"installmentNumber"`
	TotalDue          string `json:"totalDue"`
	Currency          string `json:"currency"`
	Timestamp         int64  `json:"timestamp"`
	Nonce             string `json:"nonce"`
}

func NewQRService(db *sql.DB, redis *redis.Client) *QRService {
	return &QRService{
		db:    db,
		redis: redis,
	}
}

// GenerateInstallmentQR builds a short-lived payment intent for one open
// installment and renders it as a QR image. Returns the opaque code and the
// base64 PNG.
func (s *QRService) GenerateInstallmentQR(ctx context.Context, loanID int64, installmentNumber int) (string, string, error) {
	var (
		totalAmount decimal.Decimal
		status      string
		dueDate     time.Time
	)
	err := s.db.QueryRow(
		`SELECT amount, status, due_date FROM payment_schedules
		 WHERE loan_id = $1 AND installment_number = $2`,
		loanID, installmentNumber,
	).Scan(&totalAmount, &status, &dueDate)
	if err == sql.ErrNoRows {
		return "", "", fmt.Errorf("installment %d not found for loan %d", installmentNumber, loanID)
	}
	if err != nil {
		return "", "", err
	}

	if status == string(amortization.StatusPaid) || status == string(amortization.StatusCancelled) {
		return "", "", fmt.Errorf("installment %d is not payable", installmentNumber)
	}

	entry := amortization.ScheduleEntry{
		Installment: amortization.Installment{TotalAmount: totalAmount},
		IsOverdue:   status == string(amortization.StatusOverdue),
	}
	charge := amortization.ComputeCharge(entry)

	intent := InstallmentQRIntent{
		LoanID:            loanID,
		InstallmentNumber: installmentNumber,
		TotalDue:          charge.TotalDue.StringFixed(2),
		Currency:          models.DefaultCurrency,
		Timestamp:         time.Now().Unix(),
		Nonce:             s.generateNonce(),
	}

	jsonData, err := json.Marshal(intent)
	if err != nil {
		return "", "", err
	}

	qrCode := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("qrintent:%s", qrCode)
	if err := s.redis.Set(ctx, key, jsonData, qrIntentTTL).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(qrCode, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	return qrCode, qrImage, nil
}

// RedeemInstallmentQR resolves a scanned code back to its intent. Each code
// is single-use: the backing key is deleted on first redemption.
func (s *QRService) RedeemInstallmentQR(ctx context.Context, qrCode string) (*InstallmentQRIntent, error) {
	key := fmt.Sprintf("qrintent:%s", qrCode)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired QR code")
	}
	if err != nil {
		return nil, err
	}

	var intent InstallmentQRIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return &intent, nil
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
