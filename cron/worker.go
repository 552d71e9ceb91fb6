package cron

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"corebill/config"
	accountRepo "corebill/database/repository/account"
	"corebill/models"
	"corebill/services/invoice"
	"corebill/services/payment"
	"corebill/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// InitWorker runs the async worker in background. It handles the future
// invoice callbacks scheduled by the dispatcher, gateway state notifications
// and the event deliveries drained from the outbox.
func InitWorker(dispatcher *invoice.Dispatcher, paymentAPI payment.API, accounts accountRepo.AccountRepository) {
	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeInvoiceProcess, handleInvoiceProcessTask(dispatcher))
	mux.HandleFunc(tasks.TypePaymentStateNotify, handlePaymentStateNotifyTask(paymentAPI, accounts))
	mux.HandleFunc(tasks.TypeEventPublish, handleEventPublishTask)

	// Start Redis health monitor
	go monitorRedisConnection()

	// Start async worker with retry logic
	go func() {
		log.Println("[Worker] 🚀 Starting async worker...")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				log.Printf("[Worker] ❌ Attempt %d/%d failed to start worker: %v", attempts, maxAttempts, err)

				if attempts == maxAttempts {
					log.Fatal("[Worker] ❗ Max retry attempts reached. Exiting.")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second) // Exponential backoff
			} else {
				break
			}
		}
	}()
}

func handleInvoiceProcessTask(dispatcher *invoice.Dispatcher) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p tasks.InvoiceProcessPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			log.Printf("[InvoiceHandler] 🔴 Invalid payload: %v", err)
			return err
		}

		accountID, err := uuid.Parse(p.AccountID)
		if err != nil {
			log.Printf("[InvoiceHandler] 🔴 Bad account id %q: %v", p.AccountID, err)
			return nil // unparseable, retrying will not help
		}

		result, err := dispatcher.ProcessAccount(ctx, accountID, p.TargetTime, nil, systemCallContext())
		if err != nil {
			log.Printf("[InvoiceHandler] ❌ Dispatch failed for account %s: %v", accountID, err)
			return err
		}
		if result.Outcome == invoice.OutcomeLockFailed {
			log.Printf("[InvoiceHandler] ⚠️ Account %s locked, will retry", accountID)
			return asynq.SkipRetry // rescheduled by a fresh task, not asynq retry
		}

		log.Printf("[InvoiceHandler] ⏰ Account %s processed: %s", accountID, result.Outcome)
		return nil
	}
}

func handlePaymentStateNotifyTask(paymentAPI payment.API, accounts accountRepo.AccountRepository) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p tasks.PaymentStateNotifyPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			log.Printf("[PaymentHandler] \U0001F534 Invalid payload: %v", err)
			return err
		}

		accountID, err := uuid.Parse(p.AccountID)
		if err != nil {
			log.Printf("[PaymentHandler] \U0001F534 Bad account id %q: %v", p.AccountID, err)
			return nil
		}
		account, err := accounts.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		err = paymentAPI.NotifyPendingTransactionStateChanged(ctx, account, p.TransactionExternalKey, p.Success, systemCallContext())
		if payment.HasCode(err, payment.CodeNotPending) {
			log.Printf("[PaymentHandler] \u26A0\uFE0F Transaction %s already resolved", p.TransactionExternalKey)
			return nil
		}
		return err
	}
}

// handleEventPublishTask is the delivery fan-out point for drained outbox
// events. Subscribers hang off this handler.
func handleEventPublishTask(ctx context.Context, task *asynq.Task) error {
	var p tasks.EventPublishPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		log.Printf("[EventHandler] 🔴 Invalid payload: %v", err)
		return err
	}

	log.Printf("[EventHandler] 📣 Delivering %s event for account %s", p.Kind, p.AccountID)
	return nil
}

// systemCallContext is the call context for worker-initiated dispatches.
func systemCallContext() models.CallContext {
	return models.CallContext{
		UserToken: uuid.New(),
		CreatedBy: "invoice-worker",
		CreatedAt: time.Now(),
	}
}

// monitorRedisConnection pings Redis periodically to detect failures at runtime.
func monitorRedisConnection() {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	})

	ctx := context.Background()

	for {
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("[Worker] ⚠️ Redis connection lost: %v", err)
		}
		time.Sleep(10 * time.Second)
	}
}
