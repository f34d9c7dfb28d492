package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Stripe   StripeConfig
	Auth     AuthConfig
	Booking  BookingConfig
	Ticket   TicketConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

type DatabaseConfig struct {
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	ConnectRetry  int
	MigrationsDir string
	AutoMigrate   bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Enabled switches seat locks and hold timers from in-process to Redis.
	Enabled bool
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
	Topics  TopicConfig
	// SSEGroupPrefix is combined with the host name so every instance reads every seat event.
	SSEGroupPrefix string
}

type TopicConfig struct {
	BookingCreated   string
	BookingConfirmed string
	BookingCancelled string
	SeatStatus       string
}

// All returns every topic the service publishes to.
func (t TopicConfig) All() []string {
	return []string{t.BookingCreated, t.BookingConfirmed, t.BookingCancelled, t.SeatStatus}
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type AuthConfig struct {
	OIDCIssuer string
	JWTSecret  string
}

type BookingConfig struct {
	MaxSeatsPerBooking   int
	ReferencePrefix      string
	ReferenceLength      int
	MaxReferenceAttempts int
	MaxBookingAttempts   int
	SeatLockTTL          time.Duration
	LockWait             time.Duration
	LockRetryInterval    time.Duration
	HoldTTL              time.Duration
	// HoldSweepInterval is how often pending bookings past HoldTTL are released.
	HoldSweepInterval    time.Duration
	CancellationWindow   time.Duration
}

type TicketConfig struct {
	QRSecret string
}

type LogConfig struct {
	Level string
	Dir   string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", ":8084"),
			ReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("POSTGRES_DSN", ""),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			ConnectRetry:  getEnvInt("DB_CONNECT_RETRIES", 5),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		Kafka: KafkaConfig{
			Brokers:        getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Enabled:        getEnvBool("KAFKA_ENABLED", true),
			SSEGroupPrefix: getEnv("KAFKA_SSE_GROUP_PREFIX", "ms-booking-sse"),
			Topics: TopicConfig{
				BookingCreated:   getEnv("KAFKA_TOPIC_BOOKING_CREATED", "busbooking.booking.created"),
				BookingConfirmed: getEnv("KAFKA_TOPIC_BOOKING_CONFIRMED", "busbooking.booking.confirmed"),
				BookingCancelled: getEnv("KAFKA_TOPIC_BOOKING_CANCELLED", "busbooking.booking.cancelled"),
				SeatStatus:       getEnv("KAFKA_TOPIC_SEAT_STATUS", "busbooking.seats.status"),
			},
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			JWTSecret:  getEnv("JWT_SECRET", ""),
		},
		Booking: DefaultBookingConfig(),
		Ticket: TicketConfig{
			QRSecret: getEnv("QR_SECRET", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "INFO"),
			Dir:   getEnv("LOG_DIR", "logs"),
		},
	}
}

// DefaultBookingConfig reads the booking knobs, falling back to production defaults.
func DefaultBookingConfig() BookingConfig {
	return BookingConfig{
		MaxSeatsPerBooking:   getEnvInt("MAX_SEATS_PER_BOOKING", 10),
		ReferencePrefix:      getEnv("PNR_PREFIX", "PNR"),
		ReferenceLength:      getEnvInt("PNR_LENGTH", 7),
		MaxReferenceAttempts: getEnvInt("PNR_MAX_ATTEMPTS", 10),
		MaxBookingAttempts:   getEnvInt("BOOKING_MAX_ATTEMPTS", 3),
		SeatLockTTL:          time.Duration(getEnvInt("SEAT_LOCK_TTL_SECONDS", 30)) * time.Second,
		LockWait:             getEnvDuration("SEAT_LOCK_WAIT", 3*time.Second),
		LockRetryInterval:    getEnvDuration("SEAT_LOCK_RETRY_INTERVAL", 50*time.Millisecond),
		HoldTTL:              time.Duration(getEnvInt("BOOKING_HOLD_TTL_MINUTES", 15)) * time.Minute,
		HoldSweepInterval:    getEnvDuration("HOLD_SWEEP_INTERVAL", 5*time.Minute),
		CancellationWindow:   time.Duration(getEnvInt("CANCELLATION_WINDOW_HOURS", 24)) * time.Hour,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
