package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/rental-settlement/internal/config"
	"github.com/iliyamo/rental-settlement/internal/coupon"
	"github.com/iliyamo/rental-settlement/internal/database"
	"github.com/iliyamo/rental-settlement/internal/handler"
	"github.com/iliyamo/rental-settlement/internal/lock"
	"github.com/iliyamo/rental-settlement/internal/middleware"
	"github.com/iliyamo/rental-settlement/internal/paystack"
	"github.com/iliyamo/rental-settlement/internal/payout"
	"github.com/iliyamo/rental-settlement/internal/queue"
	"github.com/iliyamo/rental-settlement/internal/repository"
	"github.com/iliyamo/rental-settlement/internal/router"
	"github.com/iliyamo/rental-settlement/internal/settlement"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()
	config.SetupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logrus.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logrus.WithError(err).Fatal("schema migration failed")
		}
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	pub := queue.NewPublisher(cfg.Broker.URL)
	defer pub.Close()
	if cfg.Broker.ConsumerEnabled {
		go func() {
			if err := queue.StartEventConsumer(ctx, cfg.Broker.URL, cfg.Broker.LogDir); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).Error("event consumer stopped")
			}
		}()
	}

	// Repositories
	listings := repository.NewListingRepo(db)
	users := repository.NewUserRepo(db)
	coupons := repository.NewCouponRepo(db)
	accounts := repository.NewBankAccountRepo(db)
	payouts := repository.NewPayoutRepo(db)
	store := repository.NewSettlementStore(db)

	gateway := paystack.NewClient(paystack.Config{
		BaseURL:   cfg.Paystack.BaseURL,
		SecretKey: cfg.Paystack.SecretKey,
		Timeout:   cfg.Paystack.Timeout,
	})

	ledger := coupon.NewLedger(coupons)
	couponSvc := coupon.NewService(coupons, ledger, users, listings)

	var locker settlement.Locker
	if cfg.Settlement.LockEnabled {
		locker = lock.NewRedisLocker(rdb, "lock:")
	}
	engine := settlement.NewEngine(store, ledger, gateway, locker, pub, cfg.Settlement.LockTTL)
	payoutSvc := payout.NewService(gateway, accounts, payouts, listings, users, pub, cfg.Paystack.SecretKey)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger())

	h := router.Handlers{
		Booking: handler.NewBookingHandler(engine),
		Coupon:  handler.NewCouponHandler(couponSvc),
		Payment: handler.NewPaymentHandler(payoutSvc),
		Webhook: handler.NewWebhookHandler(payoutSvc),
	}
	mw := router.Guarded{
		JWTSecret: cfg.JWTSecret,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	}
	router.RegisterRoutes(e, h)
	router.RegisterUser(e, h, mw)
	router.RegisterAdmin(e, h, mw)

	addr := ":" + cfg.Port
	go func() {
		logrus.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("graceful shutdown failed")
	}
}
