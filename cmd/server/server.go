package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opencontroller/backend/api/handlers"
	"github.com/opencontroller/backend/internal/banner"
	"github.com/opencontroller/backend/internal/config"
	"github.com/opencontroller/backend/internal/db"
	"github.com/opencontroller/backend/internal/logger"
	"github.com/opencontroller/backend/internal/mdns"
	"github.com/opencontroller/backend/internal/metrics"
	"github.com/opencontroller/backend/internal/repository"
	"github.com/opencontroller/backend/internal/session"
	"github.com/opencontroller/backend/internal/ws"
	"github.com/opencontroller/backend/pkg/driver"
)

const (
	// startupTimeout bounds the stale session cleanup.
	startupTimeout = 5 * time.Second

	// shutdownTimeout bounds how long in-flight HTTP requests may take to finish.
	shutdownTimeout = 5 * time.Second
)

func run(cfg *config.Config) error {
	opts := ws.Options{
		InputRate:   cfg.InputRate,
		InputBurst:  cfg.InputBurst,
		HistorySize: cfg.HistorySize,
		Metrics:     metrics.New(),
	}

	// Session history
	var sessionRepo *repository.SessionRepository
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return err
		}
		database, err := db.InitDB(cfg.DBPath)
		if err != nil {
			return err
		}
		sessionRepo = repository.NewSessionRepository(database)

		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		stale, err := sessionRepo.CloseStale(ctx)
		cancel()
		if err != nil {
			log.Printf("Failed to close stale sessions: %v", err)
		} else if stale > 0 {
			log.Printf("Closed %d sessions left open by a previous run", stale)
		}
		opts.Store = sessionRepo
	}

	// Input recording
	var recorder *logger.Recorder
	if cfg.RecordDir != "" {
		rec, err := logger.NewRecorder(cfg.RecordDir)
		if err != nil {
			return err
		}
		recorder = rec
		opts.Recorder = recorder
	}

	// Devices and sessions
	drv := driver.NewLoopbackDriver(cfg.MaxDevices)
	manager := session.NewManager(session.NewRegistry(drv))
	wsService := ws.NewService(manager, opts)

	// Router
	r := gin.Default()
	r.SetTrustedProxies(nil)
	r.Use(corsMiddleware())

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	var advertiser *mdns.Advertiser
	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			log.Println("Shutting down server...")
			wsService.Close()
			if err := manager.Shutdown(); err != nil {
				log.Printf("Failed to release all controllers: %v", err)
			}
			if recorder != nil {
				recorder.Close()
			}
			if advertiser != nil {
				advertiser.Stop()
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Printf("Failed to stop HTTP server: %v", err)
			}
		})
	}

	handlers.NewStatusHandler(wsService, shutdown).RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	api := r.Group("/api")
	{
		if sessionRepo != nil {
			handlers.NewSessionHandler(sessionRepo).RegisterRoutes(api)
		}
		handlers.NewWebSocketHandler(wsService.Handler()).RegisterRoutes(api)
	}

	port, err := banner.Port(cfg.Addr)
	if err != nil {
		return err
	}
	banner.Print(os.Stdout, banner.JoinURL(cfg.Addr, banner.LANAddress()), cfg.QR)

	if cfg.MdnsEnabled {
		advertiser = mdns.NewAdvertiser(mdns.Config{Port: port, Name: cfg.MdnsName})
		if err := advertiser.Start(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		shutdown()
	}()

	log.Printf("Starting server on %s with %s driver", cfg.Addr, drv.Name())
	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		shutdown()
		db.CloseDB()
		return err
	}

	// ListenAndServe returns as soon as Shutdown starts; wait for it to finish.
	shutdown()
	if err := db.CloseDB(); err != nil {
		log.Printf("Failed to close database: %v", err)
	}
	return nil
}

// corsMiddleware returns a CORS middleware for the phone page.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
