package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gamehoard/internal/autotag"
	"gamehoard/internal/config"
	"gamehoard/internal/enrich"
	"gamehoard/internal/igdb"
	"gamehoard/internal/importer"
	"gamehoard/internal/jobs"
	"gamehoard/internal/logging"
	"gamehoard/internal/pics"
	"gamehoard/internal/popularity"
	"gamehoard/internal/server"
	"gamehoard/internal/settings"
	"gamehoard/internal/sources"
	"gamehoard/internal/store"
	"gamehoard/internal/tracker"
	"gamehoard/internal/watch"
)

// Set via -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gamehoard",
	Short: "gamehoard - personal multi-store game library aggregator",
	Long: `gamehoard pulls your libraries from Steam, Epic, GOG, itch.io,
Humble, Battle.net, Amazon Games and EA into one local catalog, matches
entries against IGDB, and keeps ratings, news and update history fresh
in the background.

Run without arguments to start the server.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the aggregator server",
	Long: `Starts the HTTP surface, the job engine and the launcher file
watcher. Binding the configured port doubles as single-instance
enforcement: a second copy exits immediately.`,
	RunE: runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations and exit",
	RunE:  runMigrate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gamehoard %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// picsSource adapts the worker-session factory to the tracker's batch
// query interface, respawning the helper process as needed.
type picsSource struct {
	factory *pics.Factory
}

func (p *picsSource) ProductInfo(ctx context.Context, appIDs []int64) (map[int64]tracker.ProductInfo, error) {
	session, err := p.factory.Get()
	if err != nil {
		return nil, err
	}
	if err := session.Connect(ctx, false); err != nil {
		return nil, err
	}
	records, err := session.GetProductInfo(ctx, appIDs, false)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]tracker.ProductInfo, len(records))
	for appID, rec := range records {
		out[appID] = tracker.ProductInfo{
			ChangeNumber: rec.ChangeNumber,
			LastChanged:  rec.LastChanged(),
		}
	}
	return out, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("Starting gamehoard",
		zap.String("version", version),
		zap.String("data_dir", cfg.DataDir),
		zap.Int("port", cfg.Port))

	if err := logging.Initialize(cfg.DataDir, cfg.Debug, cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open library database: %w", err)
	}
	defer st.Close()

	reg := settings.New(st)

	amazonAdapter := sources.NewAmazonAdapter(reg)
	adapters := map[string]sources.Adapter{
		store.StoreSteam:  sources.NewSteamAdapter(reg),
		store.StoreEpic:   sources.NewEpicAdapter(),
		store.StoreGOG:    sources.NewGOGAdapter(reg),
		store.StoreItch:   sources.NewItchAdapter(reg),
		store.StoreHumble: sources.NewHumbleAdapter(reg),
		store.StoreBnet:   sources.NewBnetAdapter(reg),
		store.StoreAmazon: amazonAdapter,
		store.StoreEA:     sources.NewEAAdapter(reg),
	}

	igdbClient := igdb.NewClient(reg)
	protonDB := enrich.NewProtonDBClient()
	metacritic := enrich.NewMetacriticClient()
	news := enrich.NewSteamNewsClient()
	steamStore := tracker.NewSteamStoreClient()

	var picsFactory *pics.Factory
	var productInfo tracker.ProductInfoSource
	if cfg.UseSteamClient || reg.Bool(settings.KeyUseSteamClient, false) {
		helperPath := cfg.SteamHelperPath
		if helperPath == "" {
			helperPath = reg.String(settings.KeySteamHelperPath, "")
		}
		if helperPath == "" {
			logger.Warn("Steam client mode enabled but no helper path configured, falling back to HTTP")
		} else {
			picsFactory = pics.NewFactory(helperPath)
			productInfo = &picsSource{factory: picsFactory}
			logger.Info("Steam worker session enabled", zap.String("helper", helperPath))
		}
	}
	if picsFactory != nil {
		defer picsFactory.Close()
	}

	trk := tracker.New(st, steamStore, productInfo)

	engine := jobs.NewEngine(st)
	jobs.RegisterAll(engine, &jobs.Deps{
		Store:      st,
		Adapters:   adapters,
		Importer:   importer.New(st),
		AutoTag:    autotag.New(st),
		IGDB:       igdbClient,
		ProtonDB:   protonDB,
		Metacritic: metacritic,
		News:       news,
		SteamStore: steamStore,
		Tracker:    trk,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.ResumeOrphans(ctx); err != nil {
		logger.Warn("Failed to resume orphaned jobs", zap.Error(err))
	}
	engine.StartSweeper(ctx)

	watcher := watch.New(engine, reg)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Warn("Launcher file watcher stopped", zap.Error(err))
		}
	}()

	pop := popularity.New(st, igdbClient)
	srv := server.New(cfg, st, reg, engine, igdbClient, protonDB, metacritic, pop, amazonAdapter)

	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("Shutting down, waiting for running jobs")
	engine.Wait()
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logging.Initialize(cfg.DataDir, cfg.Debug, cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	logger.Info("Applying schema migrations", zap.String("database", cfg.DatabasePath))
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer st.Close()

	fmt.Printf("Database at %s is up to date\n", cfg.DatabasePath)
	return nil
}
