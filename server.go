package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"
	"gorm.io/gorm"

	"node-ledger/config"
	"node-ledger/database"
	"node-ledger/handlers"
	"node-ledger/services"
	"node-ledger/utils"
	"node-ledger/workers"
)

type application struct {
	cfg         *config.Config
	db          *gorm.DB
	redis       *redis.Client
	catalog     *services.Catalog
	notifier    services.Notifier
	ledger      *services.Ledger
	auth        *services.AuthService
	referrals   *services.ReferralService
	nodes       *services.NodeService
	purchases   *services.PurchaseService
	withdrawals *services.WithdrawalService
	feed        *services.FeedService
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, "postgres"); err != nil {
		return nil, err
	}
	return db, nil
}

func newApplication(cfg *config.Config) (*application, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	rdb, err := database.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	catalog, err := services.LoadCatalog(cfg.NodeCatalogFile)
	if err != nil {
		return nil, errors.Wrap(err, "load node catalog")
	}

	var notifier services.Notifier = services.NopNotifier{}
	if cfg.TelegramBotToken != "" && cfg.TelegramOperatorChat != 0 {
		tg, err := services.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramOperatorChat)
		if err != nil {
			return nil, err
		}
		notifier = tg
	}

	var oracle services.PaymentOracle = services.OptimisticOracle{}
	if cfg.PaymentOracleURL != "" {
		oracle = services.NewHTTPOracle(cfg.PaymentOracleURL, cfg.TRXAddress, cfg.PaymentOracleTimeout)
	}

	ledger := services.NewLedger(db, clockwork.NewRealClock())
	referrals := services.NewReferralService(ledger, services.DefaultReferralBonus)
	nodes := services.NewNodeService(ledger, catalog, referrals, notifier, cfg.PendingPaymentTimeout)

	return &application{
		cfg:         cfg,
		db:          db,
		redis:       rdb,
		catalog:     catalog,
		notifier:    notifier,
		ledger:      ledger,
		auth:        services.NewAuthService(ledger, referrals, cfg.JWTSecret),
		referrals:   referrals,
		nodes:       nodes,
		purchases:   services.NewPurchaseService(nodes, catalog, oracle, cfg.PaymentOracleTimeout),
		withdrawals: services.NewWithdrawalService(ledger, notifier),
		feed:        services.NewFeedService(rdb, ledger),
	}, nil
}

func serve(c *cli.Context) error {
	cfg := loadConfig(c)
	if err := cfg.ValidateAuth(); err != nil {
		return err
	}
	a, err := newApplication(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if tg, ok := a.notifier.(*services.TelegramNotifier); ok {
		go tg.Run(ctx)
	}

	var locker gocron.Locker
	if a.redis != nil {
		locker = workers.NewRedisLocker(a.redis, workers.SweepLockTTL(cfg.SweepInterval))
	}
	sched := workers.NewSweepScheduler(a.nodes, cfg.SweepInterval, clockwork.NewRealClock(), locker)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	if cfg.R2Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.CloudflareAccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2Bucket)
		if err != nil {
			return err
		}
		workers.NewAuditExporter(a.withdrawals, r2, cfg.AuditExportInterval, nil).Start(ctx)
	} else {
		log.Info("[AUDIT] R2 not configured, withdrawal audit export disabled")
	}

	app := handlers.NewApp(handlers.Deps{
		DB:             a.db,
		Catalog:        a.catalog,
		Auth:           a.auth,
		Nodes:          a.nodes,
		Purchases:      a.purchases,
		Withdrawals:    a.withdrawals,
		Referrals:      a.referrals,
		Feed:           a.feed,
		TRXAddress:     cfg.TRXAddress,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Server listening on :%s", cfg.Port)
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server")
		}
	}

	if err := sched.Stop(); err != nil {
		log.WithError(err).Warn("scheduler shutdown")
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	log.Info("Server stopped")
	return nil
}

func migrate(c *cli.Context) error {
	cfg := loadConfig(c)
	if _, err := openDB(cfg); err != nil {
		return err
	}
	log.Info("Migrations applied")
	return nil
}

func sweepOnce(c *cli.Context) error {
	cfg := loadConfig(c)
	a, err := newApplication(cfg)
	if err != nil {
		return err
	}
	res, err := a.nodes.Sweep(context.Background())
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"completed":     res.Completed,
		"failed":        res.Failed,
		"paid":          res.Paid.String(),
		"stale_pending": res.StalePending,
	}).Info("Sweep done")
	return nil
}
