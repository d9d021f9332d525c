package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/gigradar-integrations/internal/config"
	"github.com/ignatzorin/gigradar-integrations/internal/db"
	httpHandlers "github.com/ignatzorin/gigradar-integrations/internal/http/handlers"
	httpRouter "github.com/ignatzorin/gigradar-integrations/internal/http/router"
	"github.com/ignatzorin/gigradar-integrations/internal/hubspot"
	"github.com/ignatzorin/gigradar-integrations/internal/logger"
	"github.com/ignatzorin/gigradar-integrations/internal/repository"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Репозитории.
	proposalRepo := repository.NewProposalRepository(dbConn)

	// HubSpot клиент опционален: без токена webhook продолжает сохранять
	// proposal события, а opportunity события отвечают ошибкой конфигурации.
	var crm httpHandlers.CRMClient
	hubspotClient, err := hubspot.New(cfg.HubSpotAccessToken, cfg.HubSpotBaseURL)
	if err != nil {
		logger.Log.WithError(err).Warn("main: HubSpot интеграция отключена")
	} else {
		crm = hubspotClient
	}

	// HTTP хэндлеры.
	webhookHandler := httpHandlers.NewWebhookHandler(cfg, proposalRepo, crm)
	proposalHandler := httpHandlers.NewProposalHandler(proposalRepo)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, webhookHandler, proposalHandler, healthHandler)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
