package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/pesio-ai/be-p2p-core/internal/client"
	"github.com/pesio-ai/be-p2p-core/internal/config"
	"github.com/pesio-ai/be-p2p-core/internal/database"
	"github.com/pesio-ai/be-p2p-core/internal/handler"
	"github.com/pesio-ai/be-p2p-core/internal/logger"
	"github.com/pesio-ai/be-p2p-core/internal/middleware"
	"github.com/pesio-ai/be-p2p-core/internal/repository"
	"github.com/pesio-ai/be-p2p-core/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting P2P Core Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize NATS for the audit trail
	var nc *nats.Conn
	if cfg.NATS.Enabled {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name))
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable; audit events will be dropped")
		} else {
			defer nc.Close()
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}
	audit := client.NewAuditPublisher(nc, log.Logger)

	// Document numbering: remote service when configured, local otherwise
	var numbering service.DocumentNumberer
	if cfg.Numbering.BaseURL != "" {
		numbering = client.NewNumberingClient(cfg.Numbering.BaseURL, cfg.Numbering.Timeout)
	} else {
		numbering = client.NewLocalNumberer()
	}

	// Initialize repositories
	budgetRepo := repository.NewBudgetRepository()
	policyRepo := repository.NewPolicyRulesRepository()
	workflowRepo := repository.NewWorkflowRepository()
	identityRepo := repository.NewIdentityRepository()
	vendorRepo := repository.NewVendorRepository()
	requisitionRepo := repository.NewRequisitionRepository()
	poRepo := repository.NewPurchaseOrderRepository()
	receiptRepo := repository.NewReceiptRepository()
	invoiceRepo := repository.NewInvoiceRepository()
	matchRepo := repository.NewMatchRepository()
	paymentRepo := repository.NewPaymentRepository()

	// Initialize core services
	ledgerService := service.NewLedgerService(budgetRepo, log)
	policyService := service.NewPolicyService(policyRepo, log)
	workflowService := service.NewWorkflowService(workflowRepo, identityRepo, log)
	matchService := service.NewMatchService(invoiceRepo, poRepo, receiptRepo, matchRepo, log)

	// Initialize lifecycle services
	vendorService := service.NewVendorService(db, vendorRepo, policyService, workflowService, audit, log)
	requisitionService := service.NewRequisitionService(db, requisitionRepo, vendorRepo, ledgerService, policyService, workflowService, numbering, audit, log)
	poService := service.NewPurchaseOrderService(db, poRepo, requisitionRepo, ledgerService, numbering, audit, log)
	receiptService := service.NewReceiptService(db, receiptRepo, poRepo, numbering, nil, audit, log)
	invoiceService := service.NewInvoiceService(db, invoiceRepo, matchService, ledgerService, policyService, workflowService, audit, log)
	paymentService := service.NewPaymentService(db, paymentRepo, invoiceRepo, vendorRepo, policyService, workflowService, numbering, audit, log)
	approvalService := service.NewApprovalService(db, workflowService, workflowRepo, audit, log)

	// Workflow completions feed back into the entity lifecycles
	workflowService.SetCompletionHandler(service.NewApprovalCallbacks(
		vendorRepo, requisitionRepo, poRepo, invoiceService, paymentRepo, ledgerService, log))

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(
		vendorService, requisitionService, poService, receiptService,
		invoiceService, paymentService, approvalService, log)
	mux := http.NewServeMux()
	httpHandler.RegisterRoutes(mux)

	chain := middleware.RequestID(
		middleware.Logger(&log.Logger)(
			middleware.Recovery(&log.Logger)(
				middleware.Timeout(cfg.Server.WriteTimeout)(mux))))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
