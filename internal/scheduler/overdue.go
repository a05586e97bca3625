package scheduler

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/PatriickRM/loan-banking-system/internal/amortization"
)

// OverdueSweeper periodically marks past-due pending installments as overdue
// so reads do not need to reclassify rows the sweep has already visited.
type OverdueSweeper struct {
	db       *sql.DB
	interval time.Duration
}

func NewOverdueSweeper(db *sql.DB, interval time.Duration) *OverdueSweeper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &OverdueSweeper{db: db, interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
// Intended to be started in its own goroutine.
func (s *OverdueSweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[SCHEDULER] Overdue sweep stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *OverdueSweeper) sweep(ctx context.Context) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_schedules
		 SET status = $1, updated_at = NOW()
		 WHERE status = $2 AND due_date < CURRENT_DATE`,
		amortization.StatusOverdue, amortization.StatusPending,
	)
	if err != nil {
		log.Printf("[SCHEDULER] Overdue sweep failed: %v", err)
		return
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("[SCHEDULER] Marked %d installments overdue", n)
	}
}
