package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/hotel-booking-payments/internal/adapters/crdb"
	"github.com/robertarktes/hotel-booking-payments/internal/adapters/mail"
	mongoadapter "github.com/robertarktes/hotel-booking-payments/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/hotel-booking-payments/internal/adapters/redis"
	stripeadapter "github.com/robertarktes/hotel-booking-payments/internal/adapters/stripe"
	"github.com/robertarktes/hotel-booking-payments/internal/booking"
	"github.com/robertarktes/hotel-booking-payments/internal/config"
	"github.com/robertarktes/hotel-booking-payments/internal/hotels"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.RequireAPI(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), "booking-reconcile-worker", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	hotelRepo := mongoadapter.NewHotelRepository(mongoClient.Database(cfg.MongoDB), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)

	sender := mail.Sender(mail.LogSender{Logger: logger})
	if cfg.MailUser != "" {
		smtp, err := mail.NewSMTPClient(cfg.MailHost, cfg.MailPort, cfg.MailUser, cfg.MailPassword)
		if err != nil {
			log.Fatalf("failed to create smtp client: %v", err)
		}
		sender = smtp
	}

	svc := booking.NewService(repo,
		stripeadapter.NewGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.GatewayTimeout, nil),
		mail.NewNotifier(sender, cfg.MailUser, cfg.MailFromName, cfg.NotifyTimeout, logger),
		hotels.NewDirectory(hotelRepo, redisCache, cfg.HotelCacheTTL, logger),
		booking.Config{Currency: cfg.Currency, ClientURL: cfg.ClientURL, ReceiptEmail: cfg.MailUser},
		logger,
	)

	worker := NewReconcileWorker(svc, cfg.ReconcileBatch, cfg.ReconcileMax, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	worker.Run(ctx, cfg.ReconcileEvery)
	logger.Info("Shutdown reconcile worker")
}

// Replayer replays parked reconciliation records. *booking.Service
// implements it.
type Replayer interface {
	RetryPending(ctx context.Context, limit, maxAttempts int) (int, error)
}

type ReconcileWorker struct {
	svc         Replayer
	batch       int
	maxAttempts int
	maxRetries  int
	backoff     time.Duration
	logger      observability.Logger
}

func NewReconcileWorker(svc Replayer, batch, maxAttempts int, logger observability.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		svc:         svc,
		batch:       batch,
		maxAttempts: maxAttempts,
		maxRetries:  3,
		backoff:     time.Second,
		logger:      logger,
	}
}

func (w *ReconcileWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.WithField("interval", interval.String()).Info("reconcile worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolved, err := w.runWithRetry(ctx)
			if err != nil {
				w.logger.Error("reconciliation pass failed after retries: ", err)
				continue
			}
			if resolved > 0 {
				w.logger.WithField("resolved", resolved).Info("reconciliation pass finished")
			}
		}
	}
}

// runWithRetry runs one pass, retrying with exponential backoff when the
// store cannot be read.
func (w *ReconcileWorker) runWithRetry(ctx context.Context) (int, error) {
	var err error
	for i := 0; i < w.maxRetries; i++ {
		var resolved int
		resolved, err = w.svc.RetryPending(ctx, w.batch, w.maxAttempts)
		if err == nil {
			return resolved, nil
		}
		w.logger.WithField("attempt", i+1).Warn("reconciliation pass failed: ", err)

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(w.backoff << i):
		}
	}
	return 0, err
}
