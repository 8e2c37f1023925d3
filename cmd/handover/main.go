// Package main provides the handover orchestrator's HTTP API server:
// the Submission, Status, and Control APIs (spec.md §6).
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/ensembl-io/handover/internal/api"
	"github.com/ensembl-io/handover/internal/api/middleware"
	"github.com/ensembl-io/handover/internal/config"
	"github.com/ensembl-io/handover/internal/control"
	"github.com/ensembl-io/handover/internal/downstream"
	"github.com/ensembl-io/handover/internal/ingress"
	"github.com/ensembl-io/handover/internal/journal"
	"github.com/ensembl-io/handover/internal/router"
	"github.com/ensembl-io/handover/internal/storage"
	"github.com/ensembl-io/handover/internal/taskruntime"
)

const (
	version = "1.0.0-dev"
	name    = "handover"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting handover API server", slog.String("service", name), slog.String("version", version))

	dbConfig := storage.LoadConfig()
	if err := dbConfig.Validate(); err != nil {
		logger.Error("invalid database configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	conn, err := storage.NewConnection(dbConfig)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	apiKeyStore, err := storage.NewPersistentKeyStore(conn)
	if err != nil {
		logger.Error("failed to initialize API key store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	brokers := config.ParseCommaSeparatedList(config.GetEnvStr("HANDOVER_KAFKA_BROKERS", "localhost:9092"))

	publisher := journal.NewKafkaPublisher(brokers)

	journalStore, err := journal.NewPostgresStore(conn, publisher, logger)
	if err != nil {
		logger.Error("failed to initialize journal store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	taskStore, err := taskruntime.NewStore(conn)
	if err != nil {
		logger.Error("failed to initialize task store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	queue := taskruntime.NewQueue(brokers, config.GetEnvStr("HANDOVER_KAFKA_GROUP_ID", "handover-worker"))
	chain := taskruntime.NewChain(taskStore, queue)

	routerConfig, err := router.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load router configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dataCheckClient := downstream.NewDataCheckClient(config.GetEnvStr("HANDOVER_DATACHECK_URL", ""))
	verifier := ingress.NewTCPVerifier()

	ing := ingress.New(journalStore, router.New(routerConfig), verifier, dataCheckClient, chain)
	ctrl := control.New(journalStore, taskStore, chain, ing)

	rateLimiter := middleware.NewInMemoryRateLimiter(middleware.LoadConfig())
	defer rateLimiter.Close()

	server := api.NewServer(serverConfig, apiKeyStore, rateLimiter, ing, journalStore, ctrl)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("handover API server stopped")
}
