package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0x0shephard/h200/pkg/config"
	"github.com/0x0shephard/h200/pkg/index"
	"github.com/0x0shephard/h200/pkg/logging"
	"github.com/0x0shephard/h200/pkg/metrics"
	"github.com/0x0shephard/h200/pkg/pipeline"
	"github.com/0x0shephard/h200/pkg/publish/auditlog"
	"github.com/0x0shephard/h200/pkg/publish/db"
	"github.com/0x0shephard/h200/pkg/publish/oracle"
	"github.com/0x0shephard/h200/pkg/rates"
	"github.com/0x0shephard/h200/pkg/scrape"
	"github.com/0x0shephard/h200/pkg/version"
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version and exit")
	dryRun     = flag.Bool("dry-run", false, "Compute and validate the index but do not publish")
	interval   = flag.Duration("interval", 0, "Run continuously at this interval (0 = run once and exit)")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("h200-index version %s\n", version.Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		// Dry-run publishes nothing, but the scraping config must still be
		// sound: a broken provider entry should fail here, not in a real run.
		if err := config.ValidateScraping(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
			os.Exit(1)
		}
		cfg.Database.Enabled = false
		cfg.Oracle.Enabled = false
	} else if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting h200-index", "version", version.Version,
		"providers", len(cfg.EnabledProviders()), "dry_run", *dryRun)
	if *dryRun {
		logger.Warn("DRY RUN MODE ENABLED - index will be computed but NOT published")
	}

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
	}()

	pipe, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline", "error", err)
	}
	defer cleanup()

	if err := run(ctx, pipe, *interval, logger); err != nil {
		logger.Error("Pipeline failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// run executes the pipeline once, or on a fixed interval until the context
// is cancelled.
func run(ctx context.Context, pipe *pipeline.Pipeline, interval time.Duration, logger *logging.Logger) error {
	if interval <= 0 {
		_, err := pipe.Run(ctx)
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := pipe.Run(ctx); err != nil {
			// A failed cycle does not stop the scheduler; the next tick
			// gets a fresh attempt.
			logger.Error("Pipeline cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pipeline.Pipeline, func(), error) {
	cleanup := func() {}

	rateProvider := rates.NewProvider(nil, logger)
	normalizer := scrape.NewNormalizer(rateProvider.Rate, logger)

	var scrapers []pipeline.Scraper
	for _, p := range cfg.EnabledProviders() {
		scrapers = append(scrapers, scrape.NewProviderScraper(p, normalizer, logger))
	}

	aggregator := index.NewAggregator(cfg.Providers, cfg.Index, logger)

	var history index.HistorySource = index.NoHistory{}
	var opts []pipeline.Option

	if cfg.Database.Enabled {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("database unreachable: %w", err)
		}
		cleanup = pool.Close

		dbPub := db.NewPublisher(pool, cfg.Database.IndexTable, cfg.Database.ProviderTable, logger)
		history = dbPub
		opts = append(opts, pipeline.WithDatabase(dbPub))
		logger.Info("Database sink enabled",
			"index_table", cfg.Database.IndexTable, "provider_table", cfg.Database.ProviderTable)
	}

	if cfg.Oracle.Enabled {
		oraclePub, err := oracle.New(ctx, cfg.Oracle, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create oracle publisher: %w", err)
		}

		indexAssetID := common.HexToHash(cfg.Oracle.IndexAssetID)
		providerAssets := make(map[string]common.Hash)
		assetIDs := []common.Hash{indexAssetID}
		for _, p := range cfg.EnabledProviders() {
			if p.AssetID == "" {
				continue
			}
			id := common.HexToHash(p.AssetID)
			providerAssets[p.Name] = id
			assetIDs = append(assetIDs, id)
		}

		// Unregistered assets are a configuration failure; refuse to start
		// rather than burn gas on reverting transactions later.
		if err := oraclePub.VerifyRegistered(ctx, assetIDs); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("asset registration check failed: %w", err)
		}

		meta := pipeline.OracleMeta{
			ContractAddress: cfg.Oracle.ContractAddress,
			Network:         strconv.FormatInt(cfg.Oracle.ChainID, 10),
			UpdaterAddress:  oraclePub.Address().Hex(),
		}
		audit := auditlog.New(cfg.Oracle.AuditLogPath)
		opts = append(opts, pipeline.WithOracle(oraclePub, indexAssetID, providerAssets, meta, audit))
		logger.Info("Oracle sink enabled",
			"contract", cfg.Oracle.ContractAddress, "chain_id", cfg.Oracle.ChainID,
			"tracked_assets", len(assetIDs))
	}

	gate := index.NewGate(history, cfg.Index.Tolerance, logger)

	return pipeline.New(scrapers, aggregator, gate, logger, opts...), cleanup, nil
}
