// Package main provides the handover orchestrator's worker pool: it
// consumes task_ids off the shared queue and runs each pipeline stage
// (data-check, copy, metadata, dispatch) to completion or retry
// (spec.md §4.4/§4.5).
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/smtp"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ensembl-io/handover/internal/config"
	"github.com/ensembl-io/handover/internal/downstream"
	"github.com/ensembl-io/handover/internal/journal"
	"github.com/ensembl-io/handover/internal/notify"
	"github.com/ensembl-io/handover/internal/orchestrator"
	"github.com/ensembl-io/handover/internal/router"
	"github.com/ensembl-io/handover/internal/storage"
	"github.com/ensembl-io/handover/internal/taskruntime"
)

const (
	version = "1.0.0-dev"
	name    = "handover-worker"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	logger.Info("Starting handover worker pool", slog.String("service", name), slog.String("version", version))

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

	brokers := config.ParseCommaSeparatedList(config.GetEnvStr("HANDOVER_KAFKA_BROKERS", "localhost:9092"))
	groupID := config.GetEnvStr("HANDOVER_KAFKA_GROUP_ID", "handover-worker")

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

	queue := taskruntime.NewQueue(brokers, groupID)
	chain := taskruntime.NewChain(taskStore, queue)

	routerConfig, err := router.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load router configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	stages := buildStages(routerConfig, journalStore, chain)

	runtime := taskruntime.NewRuntime(taskStore, queue, journalStore, stages.Resolver())

	concurrency := config.GetEnvInt("HANDOVER_WORKER_CONCURRENCY", 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)

		go func(workerID int) {
			defer wg.Done()
			runLoop(ctx, runtime, logger, workerID)
		}(i)
	}

	sig := <-stop
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	cancel()
	wg.Wait()

	logger.Info("handover worker pool stopped")
}

// runLoop repeatedly calls ProcessOne until ctx is cancelled, logging
// dequeue/run failures without killing the worker goroutine.
func runLoop(ctx context.Context, runtime *taskruntime.Runtime, logger *slog.Logger, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := runtime.ProcessOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}

			logger.Error("task processing failed", slog.Int("worker_id", workerID), slog.String("error", err.Error()))
		}
	}
}

// buildStages wires the four pipeline stages against their downstream
// clients and the operator email configured for BLAT/failure notices
// (spec.md §4.5).
func buildStages(
	routerConfig *router.Config,
	journalStore journal.Appender,
	chain *taskruntime.Chain,
) orchestrator.Stages {
	notifier := buildNotifier()
	operatorUser := config.GetEnvStr("HANDOVER_OPERATOR_USER", "handover")
	productionEmail := config.GetEnvStr("HANDOVER_PRODUCTION_EMAIL", "")

	dataCheckClient := downstream.NewDataCheckClient(config.GetEnvStr("HANDOVER_DATACHECK_URL", ""))
	dbCopyClient := downstream.NewDbCopyClient(config.GetEnvStr("HANDOVER_DBCOPY_URL", ""))
	metadataClient := downstream.NewMetadataClient(config.GetEnvStr("HANDOVER_METADATA_URL", ""))
	dropClient := downstream.NewDropClient(config.GetEnvStr("HANDOVER_DROP_URL", ""))

	return orchestrator.Stages{
		DataCheck:    orchestrator.NewDataCheckStage(dataCheckClient, journalStore, notifier),
		Copy:         orchestrator.NewCopyStage(dbCopyClient, operatorUser, journalStore, notifier),
		Metadata:     orchestrator.NewMetadataStage(metadataClient, dropClient, routerConfig, chain, productionEmail, journalStore, notifier),
		DispatchCopy: orchestrator.NewDispatchCopyStage(dbCopyClient, operatorUser, journalStore, notifier),
	}
}

// buildNotifier constructs the operator-email transport from environment
// configuration, falling back to a no-op notifier when SMTP is not
// configured (spec.md §4.5 treats notification failures as non-fatal, and
// an unconfigured relay is the degenerate case of that).
func buildNotifier() notify.Notifier {
	addr := config.GetEnvStr("HANDOVER_SMTP_ADDR", "")
	if addr == "" {
		return notify.NoopNotifier{}
	}

	from := config.GetEnvStr("HANDOVER_SMTP_FROM", "handover@ensembl.org")

	var auth smtp.Auth

	user := config.GetEnvStr("HANDOVER_SMTP_USER", "")
	if user != "" {
		auth = smtp.PlainAuth("", user, config.GetEnvStr("HANDOVER_SMTP_PASSWORD", ""), smtpHost(addr))
	}

	return notify.NewSMTPNotifier(addr, from, auth)
}

// smtpHost strips the port off addr for PLAIN auth, which authenticates
// against the bare hostname.
func smtpHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return host
}
