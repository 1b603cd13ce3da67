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

	"github.com/fleetmon/fleetmon/pkg/bus"
	"github.com/fleetmon/fleetmon/pkg/config"
	"github.com/fleetmon/fleetmon/pkg/llmworker"
)

func main() {
	log.Println("🧠 Starting fleetmon LLM enrichment worker...")

	environment := os.Getenv("FLEETMON_ENV")
	if environment == "" {
		environment = "development"
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	log.Printf("📋 Environment: %s", environment)

	msgBus, err := bus.Connect(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to message bus: %v", err)
	}
	defer msgBus.Close()

	worker := llmworker.New(msgBus, cfg)
	if err := worker.Start(); err != nil {
		log.Fatalf("❌ Failed to start llm worker: %v", err)
	}

	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().Unix()})
	})
	r.GET("/api/v1/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, worker.GetStatus())
	})

	port := cfg.LLM.Port
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", port),
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("🚀 LLM worker status server starting on port %d", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down llm worker...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	worker.Stop()

	log.Println("✅ LLM worker shutdown complete")
}
