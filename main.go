// File: corebill/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"corebill/config"
	"corebill/cron"
	"corebill/database"
	accountRepo "corebill/database/repository/account"
	billingRepo "corebill/database/repository/billing"
	invoiceRepoPkg "corebill/database/repository/invoice"
	outboxRepoPkg "corebill/database/repository/outbox"
	paymentRepoPkg "corebill/database/repository/payment"
	subscriptionRepo "corebill/database/repository/subscription"
	"corebill/services/invoice"
	"corebill/services/outbox"
	"corebill/services/payment"
	"corebill/utils"

	"github.com/hibiken/asynq"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()

	database.InitDB()
	utils.InitLockClient()
	utils.FirebaseInit()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})
	defer asynqClient.Close()

	// repositories.
	payRepo := paymentRepoPkg.NewMongoPaymentRepo()
	invRepo := invoiceRepoPkg.NewMongoInvoiceRepo()
	outRepo := outboxRepoPkg.NewMongoOutboxRepo()
	acctRepo := accountRepo.NewMongoAccountRepo()
	subRepo := subscriptionRepo.NewMongoSubscriptionRepo()
	billRepo := billingRepo.NewMongoBillingEventRepo()

	clock := utils.SystemClock{}
	locker := utils.NewAccountLocker(
		utils.GetLockClient(),
		time.Duration(config.AppConfig.LockTTLSeconds)*time.Second,
	)
	lockAttempts := config.AppConfig.LockRetryCount

	// payment pipeline.
	automaton, err := payment.NewAutomaton(payRepo, locker, lockAttempts, clock, logger)
	if err != nil {
		logger.Sugar().Fatalf("main: invalid payment state machine: %v", err)
	}
	registry, err := payment.NewRegistry(
		payment.NewStripeGateway(config.AppConfig.StripeKey, logger),
	)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to build gateway registry: %v", err)
	}
	processor := payment.NewProcessor(automaton, payRepo, registry, clock, logger)
	paymentAPI := payment.NewAPI(processor)

	// invoice pipeline.
	bus := outbox.NewOutboxBus(outRepo, clock)
	dispatcher := invoice.NewDispatcher(invoice.DispatcherDeps{
		Accounts:      acctRepo,
		Billing:       billRepo,
		Generator:     invoice.NewDefaultGenerator(logger),
		Repo:          invRepo,
		Subscriptions: subRepo,
		Notifier:      invoice.NewFCMNotifier(),
		Scheduler:     invoice.NewAsynqScheduler(asynqClient),
		Bus:           bus,
		Locker:        locker,
		LockAttempts:  lockAttempts,
		Log:           logger,
	})

	// background workers.
	drainCtx, cancelDrain := context.WithCancel(context.Background())
	drainer := outbox.NewDrainer(outRepo, asynqClient, 2*time.Second, 100, logger)
	go drainer.Run(drainCtx)

	cron.InitWorker(dispatcher, paymentAPI, acctRepo)

	logger.Sugar().Infof("corebill started (gateways: %v)", registry.Names())

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: shutting down...")

	cancelDrain()
	logger.Sugar().Info("main: stopped gracefully")
}
