package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/events"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/handler"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/repository"
	"github.com/pharmaflow/pharmaflow-backend/internal/inventory/service"
	"github.com/pharmaflow/pharmaflow-backend/pkg/config"
	"github.com/pharmaflow/pharmaflow-backend/pkg/database"
	"github.com/pharmaflow/pharmaflow-backend/pkg/httputil"
	"github.com/pharmaflow/pharmaflow-backend/pkg/logger"
	"github.com/pharmaflow/pharmaflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("inventory-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("inventory-service", cfg.Server.Environment)
	log.Info().Msg("starting Inventory Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewInventoryEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	itemRepo := repository.NewItemRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	supplierRepo := repository.NewSupplierRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	// Initialize services
	ledgerService := service.NewLedgerService(db, itemRepo, batchRepo, movementRepo, publisher, log)
	inventoryService := service.NewInventoryService(itemRepo, batchRepo, log)
	reconcileService := service.NewReconcileService(itemRepo, ledgerService, publisher, log)
	orderService := service.NewOrderService(db, orderRepo, itemRepo, batchRepo, supplierRepo, ledgerService, publisher, log)
	forecastService := service.NewForecastService(itemRepo, movementRepo, supplierRepo, cfg.Forecast, log)
	alertService := service.NewAlertService(itemRepo, batchRepo, publisher, cfg.Alerts, log)

	// Initialize handlers
	inventoryHandler := handler.NewInventoryHandler(inventoryService, ledgerService, reconcileService, forecastService, log)
	orderHandler := handler.NewOrderHandler(orderService, log)
	supplierHandler := handler.NewSupplierHandler(supplierRepo, log)
	alertHandler := handler.NewAlertHandler(alertService, log)
	analyticsHandler := handler.NewAnalyticsHandler(forecastService, log)

	// Start periodic alert scan
	var scheduler *service.AlertScheduler
	if cfg.Alerts.ScanEnabled {
		scheduler = service.NewAlertScheduler(alertService, cfg.Alerts.ScanInterval, log)
		scheduler.Start()
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.Actor)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Actor"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "inventory-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/inventory", func(r chi.Router) {
		inventoryHandler.RegisterRoutes(r)
		orderHandler.RegisterRoutes(r)
		supplierHandler.RegisterRoutes(r)
		alertHandler.RegisterRoutes(r)
		analyticsHandler.RegisterRoutes(r)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	if scheduler != nil {
		scheduler.Stop()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
