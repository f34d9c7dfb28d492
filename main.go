package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-booking/internal/analytics"
	analytics_api "ms-booking/internal/analytics/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/booking_api"
	bookingdb "ms-booking/internal/booking/db"
	bookingredis "ms-booking/internal/booking/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/payment"
	"ms-booking/internal/schedule"
	scheduledb "ms-booking/internal/schedule/db"
	"ms-booking/internal/schedule/schedule_api"
	"ms-booking/internal/sse"
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/users"
	usersdb "ms-booking/internal/users/db"
	"ms-booking/internal/users/users_api"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := max(cfg.Database.ConnectRetry, 1)

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		sqldb.Close()
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	if !cfg.Redis.Enabled {
		log.Warn("REDIS", "Redis disabled, seat locks and payment holds stay in process")
		return bunDB, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

func runMigrations(bunDB *bun.DB, cfg config.DatabaseConfig, log *logger.Logger) {
	runner := migrations.NewRunner(bunDB.DB, migrations.OptionsFromConfig(cfg), log)
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Migration failed: %v", err))
	}
	if err := runner.Close(); err != nil {
		log.Warn("MIGRATE", fmt.Sprintf("Failed to close migrator: %v", err))
	}
}

// requestLogger reports every request through the API log category.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}

func healthHandler(bunDB *bun.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"database": "ok"}
		code := http.StatusOK
		if err := bunDB.PingContext(ctx); err != nil {
			status["database"] = "unavailable"
			code = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			status["redis"] = "ok"
			if err := redisClient.Ping(ctx).Err(); err != nil {
				status["redis"] = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}
		if code != http.StatusOK {
			resp := utils.ErrorResponse("Service unhealthy", "dependency unavailable")
			resp.Details = status
			utils.WriteJSON(w, code, resp)
			return
		}
		utils.WriteJSON(w, code, utils.SuccessResponse("Booking service is running", status))
	}
}

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger(logger.Options{Dir: cfg.Log.Dir, Level: logger.ParseLevel(cfg.Log.Level)})
	defer log.Close()

	log.Info("APP", "Starting Booking Service initialization")
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	if redisClient != nil {
		defer redisClient.Close()
	}
	runMigrations(bunDB, cfg.Database, log)

	// Seat events reach SSE clients through Kafka when it is enabled so every
	// instance sees bookings made on the others.
	emitter := sse.NewSeatEventEmitter()
	publishers := booking.MultiPublisher{}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
		publishers = append(publishers, producer)

		host, _ := os.Hostname()
		consumer := kafka.NewSeatStatusConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.SeatStatus, cfg.Kafka.SSEGroupPrefix+"-"+host, log)
		defer consumer.Close()
		go consumer.Start(ctx, emitter.Emit)
		log.Info("KAFKA", "Kafka producer and seat status consumer initialized")
	} else {
		log.Warn("KAFKA", "Kafka disabled, seat events are only streamed from this instance")
		publishers = append(publishers, emitter)
	}

	deps := booking.Dependencies{
		Store:  bookingdb.New(bunDB),
		Events: publishers,
		Logger: log,
	}

	if cfg.Stripe.SecretKey != "" {
		gateway, err := payment.NewStripeGateway(cfg.Stripe.SecretKey, log)
		if err != nil {
			log.Fatal("PAYMENT", fmt.Sprintf("Failed to initialize Stripe: %v", err))
		}
		deps.Payments = gateway
	} else {
		log.Warn("PAYMENT", "STRIPE_SECRET_KEY not set, payment intents are disabled")
	}

	if encoder, err := qr.NewQRGenerator(cfg.Ticket.QRSecret); err != nil {
		log.Warn("TICKET", fmt.Sprintf("QR tickets disabled: %v", err))
	} else {
		deps.Tickets = encoder
	}

	var svc *booking.Service
	var seatLocks *bookingredis.Redis
	if redisClient != nil {
		seatLocks = bookingredis.NewRedis(redisClient, cfg.Booking.SeatLockTTL, log)
		deps.Locker = seatLocks
		deps.Holds = seatLocks
	} else {
		deps.Locker = booking.NewLocalSeatLocker()
		deps.Holds = booking.NewLocalHoldTimer(func(bookingID string) {
			if err := svc.ExpireBooking(context.Background(), bookingID); err != nil {
				log.Error("BOOKING", fmt.Sprintf("Failed to expire booking %s: %v", bookingID, err))
			}
		})
	}

	svc = booking.NewService(deps, booking.OptionsFromConfig(cfg.Booking, cfg.Stripe.Currency))
	go svc.RunHoldSweeper(ctx, cfg.Booking.HoldSweepInterval)

	if seatLocks != nil {
		err := seatLocks.WatchHoldExpiry(ctx, func(ctx context.Context, bookingID string) {
			if err := svc.ExpireBooking(ctx, bookingID); err != nil {
				log.Error("BOOKING", fmt.Sprintf("Failed to expire booking %s: %v", bookingID, err))
			}
		})
		if err != nil {
			log.Error("REDIS", fmt.Sprintf("Payment hold expiry watcher not started: %v", err))
		}
	}

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to initialize token verification: %v", err))
	}
	authenticate := auth.Middleware(verifier, log)

	bookingHandler := booking_api.NewHandler(svc, cfg.Stripe.WebhookSecret, log)
	scheduleSvc := schedule.NewService(scheduledb.New(bunDB), log)
	if inspector, ok := deps.Locker.(booking.SeatLockInspector); ok {
		scheduleSvc.Locks = inspector
	}
	scheduleHandler := schedule_api.NewHandler(scheduleSvc, log)
	scheduleHandler.SeatStream = sse.NewHandler(emitter, log).StreamSeats
	analyticsHandler := analytics_api.NewHandler(analytics.NewService(bunDB), log)
	usersHandler := users_api.NewHandler(users.NewService(usersdb.New(bunDB), log), log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler(bunDB, redisClient))
	r.Route("/api", func(r chi.Router) {
		bookingHandler.RegisterRoutes(r, authenticate)
		log.Info("ROUTER", "Booking routes registered under /api/bookings and /api/payments")
		scheduleHandler.RegisterRoutes(r, authenticate)
		log.Info("ROUTER", "Search, schedule and bus routes registered under /api")
		analyticsHandler.RegisterRoutes(r, authenticate)
		log.Info("ROUTER", "Analytics routes registered under /api/analytics")
		usersHandler.RegisterRoutes(r, authenticate)
		log.Info("ROUTER", "User administration routes registered under /api/users")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	stopBackground()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Booking Service shutdown complete")
	}
}
