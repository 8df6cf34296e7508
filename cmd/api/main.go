package main

import (
	"context"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careclaim/claimledger/internal/api"
	"github.com/careclaim/claimledger/internal/config"
	"github.com/careclaim/claimledger/internal/engine"
	"github.com/careclaim/claimledger/internal/ledger"
	"github.com/careclaim/claimledger/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	dbPool, err := pgxpool.New(context.Background(), cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbPool.Close()

	// Initialize Layers. The ledger client is constructed once and shared;
	// it holds the single signing identity for the process.
	gateway := store.NewPostgresFromPool(dbPool)
	ledgerClient := ledger.NewHTTPClient(cfg.LedgerGatewayURL, cfg.LedgerAPIKey, ledger.Options{
		ConfirmTimeout: cfg.LedgerConfirmTimeout,
		PollInterval:   cfg.LedgerPollInterval,
	})
	eng := engine.New(gateway, ledgerClient, engine.Options{
		IncidentDateTolerance: cfg.IncidentDateTolerance,
	})

	router := api.NewRouter(api.NewHandler(eng))
	router.Handle("/metrics", promhttp.Handler())

	log.Printf("Server starting on :%s (env=%s)", cfg.Port, cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal(err)
	}
}
