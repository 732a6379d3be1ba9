package payout

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/safar/marketplace-settlement/internal/store"
)

// Report summarizes one reconciliation run.
type Report struct {
	Found     int      `json:"found"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Fixer re-runs payouts for delivered orders that still have sellers
// without a credit row, for example after a crash between delivery and payout.
type Fixer struct {
	db      *sql.DB
	payouts *Service
	limit   int
}

func NewFixer(db *sql.DB, payouts *Service, limit int) *Fixer {
	if limit <= 0 {
		limit = 500
	}
	return &Fixer{db: db, payouts: payouts, limit: limit}
}

// FindMissingPayouts returns the next page of orders after afterID.
func (f *Fixer) FindMissingPayouts(ctx context.Context, afterID int64) ([]int64, error) {
	return store.DeliveredOrdersMissingCredit(ctx, f.db, afterID, f.limit)
}

// ProcessMissing pays out each order in turn. Sellers whose net amount is
// zero never get a credit row, so their orders are found again on later
// runs; reprocessing them credits nothing.
func (f *Fixer) ProcessMissing(ctx context.Context, orderIDs []int64) Report {
	report := Report{Found: len(orderIDs)}

	for _, id := range orderIDs {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, err.Error())
			break
		}

		result, err := f.payouts.ProcessSellerPayout(ctx, id)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("order #%d: %v", id, err))
			continue
		}

		report.Processed += result.Processed
		for _, s := range result.Sellers {
			if s.Status == OutcomeFailed {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("order #%d seller #%d: %s", id, s.SellerID, s.Error))
			}
		}
	}

	log.Printf("payout fixer: %d orders, %d credits, %d failures", report.Found, report.Processed, report.Failed)
	return report
}

// Run pages through every order missing a payout by id, so orders that keep
// coming back with nothing to credit cannot starve the ones behind them.
func (f *Fixer) Run(ctx context.Context) (Report, error) {
	var report Report

	var after int64
	for {
		ids, err := f.FindMissingPayouts(ctx, after)
		if err != nil {
			return report, err
		}
		if len(ids) == 0 {
			return report, nil
		}

		report.add(f.ProcessMissing(ctx, ids))

		if len(ids) < f.limit || ctx.Err() != nil {
			return report, nil
		}
		after = ids[len(ids)-1]
	}
}

func (r *Report) add(page Report) {
	r.Found += page.Found
	r.Processed += page.Processed
	r.Failed += page.Failed
	r.Errors = append(r.Errors, page.Errors...)
}
