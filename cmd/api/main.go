package main

import (
	"context"
	"log"
	"net/http"
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
	httphandler "github.com/robertarktes/hotel-booking-payments/internal/http"
	"github.com/robertarktes/hotel-booking-payments/internal/idempotency"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
	"github.com/robertarktes/hotel-booking-payments/internal/rateLimit"
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

	shutdown, err := observability.SetupOTel(context.Background(), "booking-api", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	if cfg.AutoMigrate {
		if err := repo.Migrate(context.Background()); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	hotelRepo := mongoadapter.NewHotelRepository(mongoClient.Database(cfg.MongoDB), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisCache)

	sender := mail.Sender(mail.LogSender{Logger: logger})
	if cfg.MailUser != "" {
		smtp, err := mail.NewSMTPClient(cfg.MailHost, cfg.MailPort, cfg.MailUser, cfg.MailPassword)
		if err != nil {
			log.Fatalf("failed to create smtp client: %v", err)
		}
		sender = smtp
	} else {
		logger.Warn("MAIL_USER not set, booking mails are logged only")
	}
	notifier := mail.NewNotifier(sender, cfg.MailUser, cfg.MailFromName, cfg.NotifyTimeout, logger)

	gateway := stripeadapter.NewGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.GatewayTimeout, nil)
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, webhook signatures are not verified")
	}

	svc := booking.NewService(repo, gateway, notifier,
		hotels.NewDirectory(hotelRepo, redisCache, cfg.HotelCacheTTL, logger),
		booking.Config{
			Currency:     cfg.Currency,
			ClientURL:    cfg.ClientURL,
			ReceiptEmail: cfg.MailUser,
		},
		logger,
		booking.WithEventGuard(idempotency.NewEventClaims(redisCache, 30*time.Second, 72*time.Hour)),
	)

	handlers := httphandler.NewHandlers(svc, map[string]httphandler.Pinger{
		"crdb":  repo,
		"redis": redisCache,
		"mongo": httphandler.PingFunc(func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }),
	}, logger)

	r := httphandler.SetupRouter(handlers, httphandler.RouterConfig{
		Logger:      logger,
		Limiter:     rl,
		RateLimit:   cfg.RateLimit,
		Idempotency: idemp,
		CORSOrigin:  cfg.CORSOrigin,
		AdminSecret: cfg.AdminJWTSecret,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("booking api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
