package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/attar-shop/internal/auth"
	"github.com/vasiliy-maslov/attar-shop/internal/catalog"
	"github.com/vasiliy-maslov/attar-shop/internal/config"
	"github.com/vasiliy-maslov/attar-shop/internal/db"
	"github.com/vasiliy-maslov/attar-shop/internal/handler"
	"github.com/vasiliy-maslov/attar-shop/internal/order"
	"github.com/vasiliy-maslov/attar-shop/internal/payment"
	"github.com/vasiliy-maslov/attar-shop/internal/review"
	"github.com/vasiliy-maslov/attar-shop/internal/transport"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "attar-shop").Logger()

	log.Info().Msg("Attar shop backend starting...")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	dbConn, err := db.New(context.Background(), cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	sessions := auth.NewRedisSessions(cfg.Redis.Addr)

	catalogRepo := catalog.NewRepository(dbConn.Pool)
	orderRepo := order.NewRepository(dbConn.Pool)
	reviewRepo := review.NewRepository(dbConn.Pool)

	catalogService := catalog.NewService(catalogRepo)
	orderService := order.NewService(orderRepo, catalogRepo, cfg.Coupons)
	reviewService := review.NewService(reviewRepo, catalogRepo, orderService)

	gateway := payment.NewHTTPGateway(cfg.Payment.BaseURL, cfg.Payment.APIKey)
	paymentService := payment.NewService(orderService, gateway, cfg.Payment.Currency)

	router := transport.NewRouter(sessions, transport.Handlers{
		Catalog: handler.NewCatalogHandler(catalogService),
		Order:   handler.NewOrderHandler(orderService),
		Review:  handler.NewReviewHandler(reviewService),
		Payment: handler.NewPaymentHandler(paymentService, cfg.Payment.WebhookSecret),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
