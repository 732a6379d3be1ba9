package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/marketplace-settlement/internal/assign"
	"github.com/safar/marketplace-settlement/internal/config"
	"github.com/safar/marketplace-settlement/internal/database"
	"github.com/safar/marketplace-settlement/internal/fulfillment"
	"github.com/safar/marketplace-settlement/internal/httpapi"
	"github.com/safar/marketplace-settlement/internal/notify"
	"github.com/safar/marketplace-settlement/internal/payout"
	"github.com/safar/marketplace-settlement/internal/referral"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	sms := notify.NewSMSClient(cfg.SMS)
	if !sms.Enabled() {
		log.Printf("SMS_API_KEY not set, payout SMS disabled")
	}
	notifier := notify.NewNotifier(db, sms, cfg.Payout.TaxRate)

	payouts := payout.NewService(db, notifier)
	referrals := referral.NewService(db, cfg.Payout.DefaultReferralRate)

	handler := &httpapi.Handler{
		DB:                 db,
		Payouts:            payouts,
		Assigner:           assign.NewAssigner(db),
		Orders:             fulfillment.NewProcessor(db, payouts, referrals),
		Deliveries:         fulfillment.NewDeliveries(db, payouts, referrals),
		COD:                fulfillment.NewCOD(db),
		Wallets:            httpapi.StoreWallets{DB: db},
		PayoutReconciler:   payout.NewFixer(db, payouts, 0),
		ReferralReconciler: referral.NewFixer(db, referrals, 0),
	}

	gin.SetMode(cfg.Server.GinMode)
	router := httpapi.NewRouter(handler, []byte(cfg.Auth.JWTSecret))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
