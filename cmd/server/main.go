package main

import (
	"fmt"
	"net/http"
	"os"

	"cryptofolio/internal/api"
	"cryptofolio/internal/auth"
	"cryptofolio/internal/config"
	"cryptofolio/internal/database"
	"cryptofolio/internal/ledger"
	"cryptofolio/internal/logger"
	"cryptofolio/internal/oracle"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Server.JwtSecret == "" {
		log.Fatal("server.jwt_secret must be set")
	}

	// Connect to the database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Wire services
	oracleClient := oracle.NewClient(&cfg.Oracle, log.Named("oracle"))
	authService := auth.NewService(db, &cfg, log.Named("auth"))
	engine := ledger.NewEngine(db, oracleClient, log.Named("settlement"))
	valuator := ledger.NewValuator(db, oracleClient, log.Named("valuation"))

	handler := api.NewHandler(log.Named("api"), db, authService, engine, valuator, oracleClient)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting web server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, handler.Routes()); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}
}
