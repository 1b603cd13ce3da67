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

	"github.com/gin-gonic/gin"

	"github.com/fleetmon/fleetmon/pkg/analytics"
	"github.com/fleetmon/fleetmon/pkg/bus"
	"github.com/fleetmon/fleetmon/pkg/config"
	"github.com/fleetmon/fleetmon/pkg/database"
	"github.com/fleetmon/fleetmon/pkg/prober"
)

func main() {
	log.Println("🛰  Starting fleetmon Prober...")

	environment := os.Getenv("FLEETMON_ENV")
	if environment == "" {
		environment = "development"
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	log.Printf("📋 Environment: %s", environment)

	db, err := database.NewDB(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	defer db.Close()

	var msgBus *bus.Bus
	if cfg.Rabbit.URL != "" {
		msgBus, err = bus.Connect(cfg)
		if err != nil {
			log.Fatalf("❌ Failed to connect to message bus: %v", err)
		}
		defer msgBus.Close()
	} else {
		log.Println("⚠️  rabbit.url not configured; probe events will not be published")
	}

	analyticsStore, err := analytics.Open(cfg, db)
	if err != nil {
		log.Fatalf("❌ Failed to open analytics store: %v", err)
	}
	defer analyticsStore.Close()

	scheduler := prober.New(db, cfg, msgBus, analyticsStore)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("❌ Failed to start probe scheduler: %v", err)
	}

	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		if err := db.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().Unix()})
	})

	api := r.Group("/api/v1")
	{
		api.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, scheduler.GetStatus())
		})
		api.GET("/metrics", func(c *gin.Context) {
			stats, err := db.GetStats()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, stats)
		})
	}

	port := cfg.Pinger.Port
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", port),
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("🚀 Prober status server starting on port %d", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down prober...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	scheduler.Stop()

	log.Println("✅ Prober shutdown complete")
}
