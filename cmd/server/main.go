package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/student-hostel-booking/internal/config"
	"github.com/iliyamo/student-hostel-booking/internal/database"
	"github.com/iliyamo/student-hostel-booking/internal/handler"
	"github.com/iliyamo/student-hostel-booking/internal/middleware"
	"github.com/iliyamo/student-hostel-booking/internal/payment"
	"github.com/iliyamo/student-hostel-booking/internal/queue"
	"github.com/iliyamo/student-hostel-booking/internal/realtime"
	"github.com/iliyamo/student-hostel-booking/internal/repository"
	"github.com/iliyamo/student-hostel-booking/internal/router"
	"github.com/iliyamo/student-hostel-booking/internal/service"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg := config.Load()
	log := newLogger(cfg)

	bookingCfg, err := config.LoadBookingConfig()
	if err != nil {
		log.WithError(err).Fatal("booking config")
	}
	paymentCfg, err := config.LoadPaymentConfig()
	if err != nil {
		log.WithError(err).Fatal("payment config")
	}
	amqpCfg, err := config.LoadAMQPConfig()
	if err != nil {
		log.WithError(err).Fatal("amqp config")
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(context.Background(), db); err != nil {
			log.WithError(err).Fatal("migrate")
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable: rate limiting, response cache and cross-instance change events are off")
	} else {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Change events reach local subscribers through the hub.  With Redis
	// they travel through the per-hostel channel first so every instance
	// sees every write.
	hub := realtime.NewHub(64)
	var changes realtime.Publisher = hub
	if rdb != nil {
		broker := realtime.NewBroker(rdb, log.WithField("component", "broker"))
		changes = broker
		go func() {
			if err := broker.Run(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("change broker stopped")
			}
		}()
	}

	events := service.NewQueuePublisher(amqpCfg.URL, log)
	defer events.Close()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	hostels := repository.NewHostelRepo(db)
	rooms := repository.NewRoomRepo(db)
	bookings := repository.NewBookingRepo(db)
	reviews := repository.NewReviewRepo(db)
	conversations := repository.NewConversationRepo(db)
	notifications := repository.NewNotificationRepo(db)

	respCache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)

	bookingSvc := service.NewBookingService(db, bookingCfg, changes, events, log)
	listingSvc := service.NewListingService(db, changes, log)
	listingSvc.UseCache(respCache)
	provider := payment.NewStripeProvider(paymentCfg.StripeSecretKey, paymentCfg.StripeWebhookSecret)
	paymentSvc := service.NewPaymentService(bookingSvc, provider, paymentCfg, log)

	if amqpCfg.Consumer {
		consumer := queue.NewConsumer(amqpCfg.URL, notifications, log.WithField("component", "amqp-consumer"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("booking consumer stopped")
			}
		}()
	}

	if bookingCfg.SweepEnabled {
		sweeper, err := service.NewSweeper(bookingSvc, tokens, bookingCfg.SweepInterval, log)
		if err != nil {
			log.WithError(err).Fatal("sweeper")
		}
		sweeper.Start()
		defer func() { _ = sweeper.Shutdown() }()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(requestLogger(log))
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log.WithField("component", "ratelimit")))

	bookingLimit := middleware.NewTokenBucket(config.LoadBookingRateLimitConfig(), rdb, log.WithField("component", "ratelimit-booking"))

	pay := &handler.PaymentHandler{Payments: paymentSvc}
	router.RegisterRoutes(e, &handler.HealthHandler{DB: db, Redis: rdb})
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterPublic(e,
		&handler.PublicHandler{Hostels: hostels, Rooms: rooms, Reviews: reviews},
		handler.NewChangesHandler(hub, hostels, log),
		pay,
		respCache.Middleware(),
	)
	router.RegisterStudent(e,
		&handler.StudentHandler{Service: bookingSvc, Bookings: bookings, Reviews: reviews},
		pay, cfg.JWTSecret, bookingLimit)
	router.RegisterLandlord(e,
		&handler.LandlordHandler{Listings: listingSvc, Booking: bookingSvc, Hostels: hostels, Bookings: bookings},
		cfg.JWTSecret)
	router.RegisterSocial(e,
		&handler.SocialHandler{Conversations: conversations, Hostels: hostels, Notifications: notifications, Log: log.WithField("component", "social")},
		cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
}

func newLogger(cfg config.Config) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if strings.EqualFold(cfg.LogFormat, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		l.SetLevel(lvl)
	}
	return l.WithField("service", "hostel-api")
}

// requestLogger writes one line per request, including any unexpected
// error a handler swallowed into a 500.
func requestLogger(log *logrus.Entry) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"remote_ip":  v.RemoteIP,
			})
			if err, ok := c.Get(handler.CtxInternalError).(error); ok && err != nil {
				entry.WithError(err).Error("request failed")
				return nil
			}
			if v.Status >= http.StatusInternalServerError {
				entry.Warn("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}
