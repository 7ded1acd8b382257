package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/keygate/backend/internal/config"
	"github.com/keygate/backend/internal/domain"
	"github.com/keygate/backend/internal/handler"
	appMiddleware "github.com/keygate/backend/internal/middleware"
	"github.com/keygate/backend/internal/repository"
	"github.com/keygate/backend/internal/service"
	"github.com/keygate/backend/pkg/billing"
)

func main() {
	// Load .env file if present (for local development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}

	ctx := context.Background()

	// Initialize storage. DATABASE_URL=memory runs the in-process store,
	// useful for local development without Postgres.
	var store repository.Store
	if cfg.DatabaseURL == "memory" {
		store = repository.NewMemoryStore()
		log.Println("⚠️  Using in-memory store (data is not persisted)")
	} else {
		db, err := repository.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("❌ Database error: %v", err)
		}
		if err := repository.RunMigrations(ctx, db); err != nil {
			log.Fatalf("❌ Migration error: %v", err)
		}
		log.Println("✅ Database connected & migrated")
		store = repository.NewPostgresStore(db)
	}
	defer store.Close()

	plans := domain.NewPlanCatalog(cfg.PriceRefs)
	gateway := billing.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	// Initialize services
	registry := service.NewLicenseRegistry(store.Licenses(), plans)
	authorizer := service.NewDeviceAuthorizer(store.Devices())
	accountSvc := service.NewAccountService(cfg.JWTSecret, store.Accounts(), registry)
	reconciler := service.NewSubscriptionReconciler(store.Accounts(), registry, gateway, plans)
	processor := service.NewWebhookProcessor(store.Events(), reconciler, gateway)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(store)
	plansHandler := handler.NewPlansHandler(plans)
	authHandler := handler.NewAuthHandler(accountSvc)
	licenseHandler := handler.NewLicenseHandler(registry, authorizer)
	billingHandler := handler.NewBillingHandler(processor, accountSvc, gateway, plans, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)

	// Build router
	r := chi.NewRouter()

	// Global middleware
	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Global rate limiter (20 req/sec per IP, burst of 40)
	globalRL := appMiddleware.NewRateLimiter(20, 40)
	r.Use(globalRL.Middleware())

	// Health check and public routes (no auth)
	r.Get("/health", healthHandler.Check)
	r.Get("/api/plans", plansHandler.List)
	r.Post("/api/v1/billing/webhook", billingHandler.Webhook)

	// Credential and license-key endpoints get the stricter per-IP limit
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.StrictRateLimiter())
		r.Post("/api/v1/auth/signup", authHandler.Signup)
		r.Post("/api/v1/auth/login", authHandler.Login)
		r.Post("/api/v1/licenses/validate", licenseHandler.Validate)
	})

	// Protected API routes
	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(accountSvc))

		r.Get("/api/v1/auth/me", authHandler.Me)

		r.Get("/api/v1/licenses", licenseHandler.List)
		r.Get("/api/v1/devices", licenseHandler.Devices)
		r.Delete("/api/v1/devices/{deviceID}", licenseHandler.DeactivateDevice)

		r.Post("/api/v1/billing/checkout", billingHandler.CreateCheckout)
	})

	// Start server
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("🛑 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("🚀 Keygate license server listening at http://%s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("❌ Server error: %v", err)
	}
}
