package referral

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/safar/marketplace-settlement/internal/store"
)

type Report struct {
	Found     int      `json:"found"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Fixer finds delivered referral orders whose commission was never paid and pays it.
type Fixer struct {
	db       *sql.DB
	earnings *Service
	limit    int
}

func NewFixer(db *sql.DB, earnings *Service, limit int) *Fixer {
	if limit <= 0 {
		limit = 500
	}
	return &Fixer{db: db, earnings: earnings, limit: limit}
}

func (f *Fixer) FindMissingCommissions(ctx context.Context, afterID int64) ([]int64, error) {
	return store.DeliveredOrdersMissingReferral(ctx, f.db, afterID, f.limit)
}

func (f *Fixer) ProcessMissing(ctx context.Context, orderIDs []int64) Report {
	report := Report{Found: len(orderIDs)}

	for _, id := range orderIDs {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, err.Error())
			break
		}

		paid, err := f.earnings.ProcessReferralEarning(ctx, id)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("order #%d: %v", id, err))
			continue
		}
		if paid {
			report.Processed++
		}
	}

	log.Printf("referral fixer: %d orders, %d paid, %d failures", report.Found, report.Processed, report.Failed)
	return report
}

// Run walks all candidate orders a page at a time. Orders whose commission
// comes to zero never get an earning row and stay candidates.
func (f *Fixer) Run(ctx context.Context) (Report, error) {
	var report Report

	var after int64
	for {
		ids, err := f.FindMissingCommissions(ctx, after)
		if err != nil {
			return report, err
		}
		if len(ids) == 0 {
			return report, nil
		}

		page := f.ProcessMissing(ctx, ids)
		report.Found += page.Found
		report.Processed += page.Processed
		report.Failed += page.Failed
		report.Errors = append(report.Errors, page.Errors...)

		if len(ids) < f.limit || ctx.Err() != nil {
			return report, nil
		}
		after = ids[len(ids)-1]
	}
}
