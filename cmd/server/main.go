package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"usersvc/docs"
	"usersvc/internal/auth"
	"usersvc/internal/cache"
	"usersvc/internal/config"
	"usersvc/internal/db"
	"usersvc/internal/handler"
	"usersvc/internal/logger"
	"usersvc/internal/mail"
	"usersvc/internal/queue"
	"usersvc/internal/repository"
	"usersvc/internal/router"
	"usersvc/internal/service"
	"usersvc/internal/worker"
)

// @title User Service API
// @version 1.0
// @description Account registration, email verification, login, password reset and user management.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalf("load config: %v", err)
	}
	logger.InitLogger(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Open(cfg.DBDriver, cfg.MySQLDSN, cfg.SQLitePath)
	if err != nil {
		fatalf("database init: %v", err)
	}
	if cfg.ResetDB {
		logger.Warning("RESET_DB=true detected, dropping users table")
	}
	if err := db.Migrate(gormDB, cfg.ResetDB); err != nil {
		fatalf("migrate: %v", err)
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cacheClient.Ping(ctx); err != nil {
		logger.Warningf("redis unavailable, serving without cache: %v", err)
	}
	defer cacheClient.Close()

	var sender mail.Sender = mail.LogSender{}
	if cfg.Mail.Enabled() {
		sender = mail.NewSMTPSender(context.Background(), mail.SMTPConfig{
			Host:         cfg.Mail.SMTPHost,
			Port:         cfg.Mail.SMTPPort,
			From:         cfg.Mail.SenderEmail,
			ClientID:     cfg.Mail.ClientID,
			ClientSecret: cfg.Mail.ClientSecret,
			RefreshToken: cfg.Mail.RefreshToken,
		})
	} else {
		logger.Warning("mail credentials not configured, emails will only be logged")
	}

	dispatcher, closeMail := newDispatcher(ctx, cfg, sender)
	defer closeMail()

	repo := repository.NewUserRepository(gormDB)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL())
	userService := service.NewUserService(repo, jwtService, auth.NewSecretHasher(), dispatcher, cacheClient, service.Options{
		PublicBaseURL:   cfg.PublicBaseURL,
		VerificationTTL: cfg.VerificationTokenTTL(),
		ResetTTL:        cfg.ResetTokenTTL(),
	})

	e := echo.New()
	e.HideBanner = true
	router.Register(e, jwtService, handler.NewUserHandler(userService))

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "https://"), "http://")
	}
	logger.Infof("Swagger documentation available at: http://%s/swagger/index.html", docs.SwaggerInfo.Host)

	go func() {
		addr := ":" + cfg.ServerPort
		logger.Infof("listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalf("server start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}

// newDispatcher publishes mail to RabbitMQ and consumes it with a worker when a
// broker is configured, and falls back to an in-process queue otherwise.
func newDispatcher(ctx context.Context, cfg *config.Config, sender mail.Sender) (mail.Dispatcher, func()) {
	if cfg.RabbitMQURL != "" {
		dispatcher, closeFn, err := newBrokerDispatcher(ctx, cfg, sender)
		if err == nil {
			logger.Infof("mail queued through rabbitmq queue %s", cfg.RabbitMQMailQueue)
			return dispatcher, closeFn
		}
		logger.Warningf("rabbitmq unavailable, using in-process mail queue: %v", err)
	}

	// pending mail is drained on Close, after ctx is already cancelled
	local := mail.NewLocalQueue(sender, cfg.MailQueueSize)
	local.Start(context.Background())
	return local, local.Close
}

func newBrokerDispatcher(ctx context.Context, cfg *config.Config, sender mail.Sender) (mail.Dispatcher, func(), error) {
	conn, err := queue.Dial(ctx, cfg.RabbitMQURL)
	if err != nil {
		return nil, nil, err
	}

	publisher, err := queue.NewMailPublisher(conn, cfg.RabbitMQMailQueue)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	mailWorker := worker.NewMailWorker(conn, sender, cfg.RabbitMQMailQueue)
	if err := mailWorker.Start(ctx); err != nil {
		_ = publisher.Close()
		_ = conn.Close()
		return nil, nil, err
	}

	return publisher, func() {
		mailWorker.Close()
		_ = publisher.Close()
		_ = conn.Close()
	}, nil
}

func fatalf(format string, args ...any) {
	logger.Errorf(format, args...)
	os.Exit(1)
}
