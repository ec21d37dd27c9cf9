package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"medtrack/internal/apperr"
	"medtrack/internal/config"
	"medtrack/internal/es"
	"medtrack/internal/handlers"
	"medtrack/internal/logging"
	authmw "medtrack/internal/middleware/auth"
	loggingmw "medtrack/internal/middleware/logging"
	"medtrack/internal/mykafka"
	"medtrack/internal/session"
	"medtrack/internal/tokens"
	httpserver "medtrack/internal/transport/http"
)

const medicationIndex = "medications"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LOG_LEVEL)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	var prod *mykafka.Producer
	if cfg.KAFKA_ADDRESS != "" {
		brokers := []string{cfg.KAFKA_ADDRESS}
		topics := []string{"user_events", "medication_events"}
		prod, err = mykafka.NewProducer(brokers, topics)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		logger.Warn("KAFKA_ADDRESS not set, event publishing disabled")
	}

	var esClient *elasticsearch.Client
	if cfg.ES_URL != "" {
		esClient, err = es.NewClient(cfg)
		if err != nil {
			log.Fatal(err)
		}
	} else {
		logger.Warn("ES_URL not set, medication search disabled")
	}

	tokenSvc := &tokens.Service{
		AccessSecret:  []byte(cfg.JWT_SECRET),
		RefreshSecret: []byte(cfg.REFRESH_SECRET),
		AccessTTL:     cfg.ACCESS_TTL,
		RefreshTTL:    cfg.REFRESH_TTL,
	}
	sessions := &session.Manager{DB: db, Tokens: tokenSvc}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		DB:                db,
		Gate:              &authmw.Gate{DB: db, Tokens: tokenSvc},
		AuthHandler:       &handlers.AuthHandler{DB: db, Sessions: sessions, Producer: prod},
		UserHandler:       &handlers.UserHandler{DB: db, Producer: prod},
		MedicationHandler: &handlers.MedicationHandler{DB: db, ES: esClient, Index: medicationIndex, Producer: prod},
		SearchHandler:     &handlers.SearchHandler{ES: esClient, Index: medicationIndex},
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":" + cfg.PORT,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	if prod != nil {
		if err := prod.Close(); err != nil {
			log.Printf("kafka close error: %v", err)
		}
	}

	logger.Info("shutdown complete")
}
