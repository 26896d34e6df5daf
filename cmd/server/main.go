package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/trustcart/backoffice-auth/internal/config"
	"github.com/trustcart/backoffice-auth/internal/database"
	"github.com/trustcart/backoffice-auth/internal/handler"
	"github.com/trustcart/backoffice-auth/internal/metrics"
	"github.com/trustcart/backoffice-auth/internal/middleware"
	"github.com/trustcart/backoffice-auth/internal/queue"
	"github.com/trustcart/backoffice-auth/internal/repository"
	"github.com/trustcart/backoffice-auth/internal/router"
	"github.com/trustcart/backoffice-auth/internal/service"
	"github.com/trustcart/backoffice-auth/internal/utils"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine outside development
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	log := logger.WithField("service", "backoffice-auth")

	db, err := database.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()
	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(ctx, db)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("migration failed")
		}
	}

	rdb := config.NewRedisClient(log.WithField("component", "redis"))
	if rdb != nil {
		defer rdb.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tokens, err := utils.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		log.WithError(err).Fatal("token issuer")
	}

	staff := repository.NewStaffRepo(db)
	customers := repository.NewCustomerRepo(db)
	roles := repository.NewRoleRepo(db)
	access := repository.NewRBACRepo(db)
	activity := repository.NewActivityRepo(db)

	rbac := service.NewRBACService(service.RBACDeps{
		Roles:    roles,
		Access:   access,
		Activity: activity,
		Staff:    staff,
		Metrics:  m,
		Log:      log.WithField("component", "rbac"),
		Timeout:  cfg.DBTimeout,
	})

	var events service.EventPublisher
	publisher := queue.NewPublisher(cfg.RabbitURL, log.WithField("component", "activity-publisher"))
	if publisher.Enabled() {
		events = publisher
	}
	auth := service.NewAuthService(service.AuthDeps{
		Staff:     staff,
		Customers: customers,
		Roles:     roles,
		Assigner:  access,
		Access:    rbac,
		Tokens:    tokens,
		Hasher:    utils.NewPasswordHasher(cfg.BcryptCost),
		Events:    events,
		Metrics:   m,
		Log:       log.WithField("component", "auth"),
		Bootstrap: service.BootstrapAdmin{
			Email:    cfg.BootstrapAdminEmail,
			Password: cfg.BootstrapAdminPassword,
			RoleID:   cfg.BootstrapRoleID,
		},
		Timeout: cfg.DBTimeout,
	})

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler(log.WithField("component", "http"))
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(log.WithField("component", "access")))
	e.Use(m.Middleware())

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log.WithField("component", "ratelimit"))
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log.WithField("component", "cache"))

	router.RegisterRoutes(e, &handler.HealthHandler{DB: db, Redis: rdb}, metrics.Handler(reg))
	router.RegisterAuth(e, handler.NewAuthHandler(auth), tokens, limit)
	router.RegisterRBAC(e, handler.NewRBACHandler(rbac, log.WithField("component", "rbac-http")), tokens, rbac, cache, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if publisher.Enabled() {
		consumer := &queue.Consumer{
			URL:          cfg.RabbitURL,
			Sink:         activity,
			Log:          log.WithField("component", "activity-consumer"),
			WriteTimeout: cfg.DBTimeout,
			OnResult:     func(r string) { m.ActivityEvent("consume", r) },
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("activity consumer stopped")
			}
		}()
	}

	go func() {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	log.Info("stopped")
}

// requestLogger writes one structured line per request.
func requestLogger(log *logrus.Entry) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
				"remote_ip":  v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}
