package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shehryarbajwa/sessionpilot/internal/api"
	"github.com/shehryarbajwa/sessionpilot/internal/browser"
	"github.com/shehryarbajwa/sessionpilot/internal/config"
	"github.com/shehryarbajwa/sessionpilot/internal/engine"
	"github.com/shehryarbajwa/sessionpilot/internal/ratelimit"
	"github.com/shehryarbajwa/sessionpilot/internal/registry"
	"github.com/shehryarbajwa/sessionpilot/internal/store"
	"github.com/shehryarbajwa/sessionpilot/internal/validator"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	log.Println("Starting SessionPilot...")

	cfg := config.Load()

	// Initialize session store
	st := store.NewEncrypted(cfg.SessionsDir, cfg.KeyFile)
	if err := st.EnsureReady(); err != nil {
		log.Fatalf("Failed to prepare session store: %v", err)
	}
	log.Printf("✓ Session store ready at %s (encrypted, key %s)", cfg.SessionsDir, cfg.KeyFile)

	// Initialize registry with expiry sweeper
	reg := registry.New(cfg.HandleTTL)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go reg.Run(sweepCtx, cfg.SweepInterval)
	log.Printf("✓ Session registry initialized (handle TTL %s)", cfg.HandleTTL)

	// Initialize browser driver and validator
	driver := browser.NewPlaywrightDriver()
	val := validator.New(driver, cfg.ProbeTimeout, cfg.Headless)
	log.Println("✓ Browser driver initialized")

	// Initialize automation engine
	eng := engine.New(cfg, st, reg, val, driver)
	go eng.Run(sweepCtx, cfg.SweepInterval)
	log.Println("✓ Automation engine initialized")

	// Initialize rate limiter
	rateLimiter := ratelimit.NewLimiter(cfg.RatePerHour, cfg.RateBurst)
	log.Printf("✓ Rate limiter initialized (%d req/hour per user)", cfg.RatePerHour)

	// Setup HTTP handlers
	handler := api.NewHandler(eng)
	router := handler.SetupRoutes(rateLimiter, cfg.RatePerHour)
	log.Println("✓ HTTP routes configured")

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("🚀 Server starting on %s", cfg.Addr)
		log.Printf("📍 API endpoints available at http://localhost%s/v1", cfg.Addr)
		log.Printf("💾 Sessions: %s", cfg.SessionsDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("⏳ Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Tear down every live handle and browser before exiting.
	stopSweep()
	if err := eng.CloseAll(); err != nil {
		log.Printf("Cleanup error: %v", err)
	}

	log.Println("✅ Server stopped cleanly")
}
