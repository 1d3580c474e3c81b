package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPAddr     string `envconfig:"HTTP_ADDR" default:":5000"`
	CRDBDSN      string `envconfig:"CRDB_DSN"`
	MongoURI     string `envconfig:"MONGO_URI"`
	MongoDB      string `envconfig:"MONGO_DB" default:"hotel_booking"`
	RedisAddr    string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RabbitURL    string `envconfig:"RABBIT_URL"`
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	AutoMigrate  bool   `envconfig:"AUTO_MIGRATE" default:"false"`

	StripeSecretKey     string        `envconfig:"STRIPE_TEST_KEY"`
	StripeWebhookSecret string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	Currency            string        `envconfig:"CHECKOUT_CURRENCY" default:"sgd"`
	GatewayTimeout      time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"10s"`

	ClientURL  string `envconfig:"CLIENT_URL" default:"http://localhost:3000"`
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"http://localhost:3000"`

	MailHost      string        `envconfig:"MAIL_HOST" default:"smtp.gmail.com"`
	MailPort      int           `envconfig:"MAIL_PORT" default:"587"`
	MailUser      string        `envconfig:"MAIL_USER"`
	MailPassword  string        `envconfig:"MAIL_PW"`
	MailFromName  string        `envconfig:"MAIL_FROM_NAME" default:"Ascenda Hotel Booking"`
	NotifyTimeout time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"15s"`

	AdminJWTSecret string        `envconfig:"ADMIN_JWT_SECRET"`
	HotelCacheTTL  time.Duration `envconfig:"HOTEL_CACHE_TTL" default:"1h"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	ReconcileEvery time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1m"`
	ReconcileBatch int           `envconfig:"RECONCILE_BATCH" default:"50"`
	ReconcileMax   int           `envconfig:"RECONCILE_MAX_ATTEMPTS" default:"10"`
	OutboxInterval time.Duration `envconfig:"OUTBOX_INTERVAL" default:"5s"`
	AuditQueue     string        `envconfig:"AUDIT_QUEUE" default:"booking.audit"`
	RateLimit      int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "process env")
	}
	return &cfg, nil
}

// RequireAPI checks the settings the HTTP service cannot start without.
func (c *Config) RequireAPI() error {
	if c.CRDBDSN == "" {
		return errors.New("CRDB_DSN is required")
	}
	if c.StripeSecretKey == "" {
		return errors.New("STRIPE_TEST_KEY is required")
	}
	return nil
}
