package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/safar/marketplace-settlement/internal/config"
	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/lock"
	"github.com/safar/marketplace-settlement/internal/notify"
	"github.com/safar/marketplace-settlement/internal/payout"
	"github.com/safar/marketplace-settlement/internal/referral"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: cron [reconcile-payouts|reconcile-referrals]")
	}
	job := os.Args[1]
	if job != "reconcile-payouts" && job != "reconcile-referrals" {
		log.Fatalf("Unknown job %q", job)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	failed, err := run(context.Background(), cfg, job)
	if err != nil {
		log.Fatalf("%s: %v", job, err)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// run holds the job's lock for the whole run. A run that finds the lock held
// exits cleanly.
func run(ctx context.Context, cfg *config.Config, job string) (int, error) {
	locker, err := lock.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return 0, err
	}
	defer locker.Close()

	held, err := locker.Acquire(ctx, job, cfg.Redis.LockTTL)
	if errors.Is(err, lock.ErrHeld) {
		log.Printf("%s is already running, skipping", job)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := held.Release(ctx); err != nil {
			log.Printf("Release lock: %v", err)
		}
	}()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var found, processed, failed int
	var errs []string
	switch job {
	case "reconcile-payouts":
		sms := notify.NewSMSClient(cfg.SMS)
		svc := payout.NewService(db, notify.NewNotifier(db, sms, cfg.Payout.TaxRate))
		report, err := payout.NewFixer(db, svc, 0).Run(ctx)
		if err != nil {
			return 0, err
		}
		found, processed, failed, errs = report.Found, report.Processed, report.Failed, report.Errors

	case "reconcile-referrals":
		svc := referral.NewService(db, cfg.Payout.DefaultReferralRate)
		report, err := referral.NewFixer(db, svc, 0).Run(ctx)
		if err != nil {
			return 0, err
		}
		found, processed, failed, errs = report.Found, report.Processed, report.Failed, report.Errors
	}

	for _, e := range errs {
		log.Printf("  %s", e)
	}
	log.Printf("%s: found=%d processed=%d failed=%d", job, found, processed, failed)
	return failed, nil
}
