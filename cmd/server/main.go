package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/ai"
	"github.com/ignatzorin/escrow-backend/internal/app"
	"github.com/ignatzorin/escrow-backend/internal/auth"
	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/db"
	"github.com/ignatzorin/escrow-backend/internal/domain/gateway"
	aiAdapter "github.com/ignatzorin/escrow-backend/internal/infrastructure/ai"
	"github.com/ignatzorin/escrow-backend/internal/infrastructure/evidence"
	"github.com/ignatzorin/escrow-backend/internal/infrastructure/memory"
	"github.com/ignatzorin/escrow-backend/internal/infrastructure/moderation"
	"github.com/ignatzorin/escrow-backend/internal/infrastructure/payment"
	"github.com/ignatzorin/escrow-backend/internal/infrastructure/persistence"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/notify"
	"github.com/ignatzorin/escrow-backend/internal/pkg/clock"
	"github.com/ignatzorin/escrow-backend/internal/scheduler"
	"github.com/ignatzorin/escrow-backend/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.LogLevel)
	if !cfg.IsProduction() {
		logger.SetTextFormatter()
	}
	mainLog := logger.WithComponent("main")

	// Хранилище.
	var (
		st    app.Storage
		audit gateway.AuditSink
	)
	switch cfg.StorageDriver {
	case config.StorageMemory:
		st = app.Storage{
			Projects:     memory.NewProjectStore(),
			Disputes:     memory.NewDisputeStore(),
			Transactions: memory.NewTransactionStore(),
			Users:        memory.NewUserDirectory(),
		}
		audit = notify.NewLogAuditSink()
		mainLog.Warn("данные хранятся в памяти и пропадут после перезапуска")
	default:
		dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			mainLog.WithError(err).Fatal("ошибка подключения к базе")
		}
		defer safeClose(dbConn)

		if err := db.RunMigrations(ctx, dbConn); err != nil {
			mainLog.WithError(err).Fatal("ошибка миграций")
		}

		st = app.Storage{
			Projects:     persistence.NewProjectRepository(dbConn),
			Disputes:     persistence.NewDisputeRepository(dbConn),
			Transactions: persistence.NewTransactionRepository(dbConn),
			Users:        persistence.NewUserDirectory(dbConn),
			Health:       dbConn,
		}
		audit = persistence.NewAuditLog(dbConn)
	}

	// Внешние сервисы.
	var payments gateway.PaymentGateway
	if cfg.PaymentGatewayURL != "" {
		payments = payment.NewHTTPGateway(cfg.PaymentGatewayURL, cfg.PaymentGatewayKey)
	} else {
		payments = payment.NewSandboxGateway()
		mainLog.Warn("PAYMENT_GATEWAY_URL не задан, платежи идут через песочницу")
	}

	var oracle gateway.DisputeOracle
	if cfg.AIBaseURL != "" {
		oracle = aiAdapter.NewDisputeOracleAdapter(ai.NewClient(cfg.AIBaseURL, cfg.AIModel, cfg.AIAPIKey))
	} else {
		mainLog.Info("AI_BASE_URL не задан, споры без автоматического анализа уходят к медиатору")
	}

	// Вебсокеты и уведомления.
	hub := ws.NewHub()
	go hub.Run(ctx)

	dispatcher := notify.NewDispatcher(hub, audit, cfg.NotifyBuffer, notify.WithWorkers(cfg.NotifyWorkers))
	dispatcher.Start()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	application := app.New(cfg, st, app.Ports{
		Payments:  payments,
		Moderator: moderation.NewRuleModerator(cfg.BlockedTerms),
		Inspector: evidence.NewInspector(cfg.MaxEvidenceMB),
		Oracle:    oracle,
		Notify:    dispatcher,
		Audit:     dispatcher,
	}, hub, tokens, clock.Clock(nil))

	// Фоновые проходы.
	sched, err := scheduler.NewManager(time.Minute)
	if err != nil {
		mainLog.WithError(err).Fatal("ошибка создания планировщика")
	}
	err = scheduler.RegisterSweeps(sched, scheduler.Intervals{
		AutoApprove: cfg.AutoApproveSweepInterval,
		Escalation:  cfg.EscalationSweepInterval,
		Review:      cfg.ReviewSweepInterval,
	}, application.AutoApprove, application.Escalate, application.ReviewPending)
	if err != nil {
		mainLog.WithError(err).Fatal("ошибка регистрации фоновых задач")
	}
	sched.Start()

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           application.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			mainLog.WithError(err).Warn("ошибка остановки http сервера")
		}
	}()

	mainLog.WithField("port", cfg.HTTPPort).Info("HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		mainLog.WithError(err).Error("сервер завершился с ошибкой")
	}

	sched.Stop()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dispatcher.Stop(stopCtx); err != nil {
		mainLog.WithError(err).Warn("не все уведомления доставлены")
	}
}

// safeClose закрывает соединение с базой.
func safeClose(conn *sqlx.DB) {
	if err := conn.Close(); err != nil {
		logger.WithComponent("main").WithError(err).Warn("ошибка закрытия базы")
	}
}
