// secbrief generates tiered, claim-verified summaries for securities.
//
// Exit codes: 0 all entities succeeded, 1 partial failures, 2 setup error.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"secbrief/internal/config"
	"secbrief/internal/evidence"
	"secbrief/internal/fleet"
	"secbrief/internal/generator"
	"secbrief/internal/logging"
	"secbrief/internal/pipeline"
	"secbrief/internal/provider"
	"secbrief/internal/store"
	"secbrief/internal/types"
	"secbrief/internal/verify"
)

const (
	exitOK         = 0
	exitPartial    = 1
	exitSetupError = 2
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	// Run flags
	runConcurrency int
	runBatchSize   int
	runMaxRetries  int
	runTimeout     time.Duration
	runDryRun      bool
	runEntitiesCSV string

	// Logger
	logger *zap.Logger

	// exitCode is set by runFleet for partial failures and applied in
	// main once cleanup has finished.
	exitCode = exitOK
)

var rootCmd = &cobra.Command{
	Use:   "secbrief",
	Short: "secbrief - tiered securities summary fleet",
	Long: `secbrief generates three escalating-detail summaries (hook, medium,
expanded) for each requested security, verifies every factual claim
against retrieved evidence, and regenerates with corrective feedback
until verification passes or the retry budget is exhausted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
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
		return logging.Initialize(workspace)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var runCmd = &cobra.Command{
	Use:   "run [entity-id ...]",
	Short: "Run the summary fleet for the given entities",
	Long: `Runs the full pipeline for each entity: evidence gathering, tiered
generation with claim verification and bounded retries, and persistence.
Entities are processed in batches under the configured concurrency cap.

Entity ids may be given as arguments or via --entities as a comma list;
an id may carry a display name after a colon, e.g. "AAPL:Apple Inc".`,
	RunE: runFleet,
}

var summaryCmd = &cobra.Command{
	Use:   "summary <run-id>",
	Short: "Show the stored summary for a previous run",
	Args:  cobra.ExactArgs(1),
	RunE:  showSummary,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured evidence sources",
	RunE:  listSources,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default .secbrief/config.json)")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", ".", "workspace directory for logs and data")

	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "override concurrency limit")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "override batch size (default: concurrency limit)")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", -1, "override per-tier retry budget")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "override per-call provider timeout")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "skip persistence")
	runCmd.Flags().StringVar(&runEntitiesCSV, "entities", "", "comma-separated entity ids")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

// parseTasks turns "ID" or "ID:Display Name" tokens into entity tasks.
func parseTasks(args []string, csv, runID string) []types.EntityTask {
	tokens := append([]string(nil), args...)
	for _, tok := range strings.Split(csv, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			tokens = append(tokens, tok)
		}
	}

	var tasks []types.EntityTask
	seen := make(map[string]bool)
	for _, tok := range tokens {
		id, name := tok, tok
		if idx := strings.Index(tok, ":"); idx > 0 {
			id = strings.TrimSpace(tok[:idx])
			name = strings.TrimSpace(tok[idx+1:])
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		tasks = append(tasks, types.EntityTask{EntityID: id, Name: name, RunID: runID})
	}
	return tasks
}

func buildProvider(ctx context.Context, cfg config.Config) (provider.Client, error) {
	switch cfg.Provider.Kind {
	case "gemini":
		return provider.NewGeminiClient(ctx, cfg.Provider.APIKey, cfg.Provider.Model)
	case "http", "":
		hc := provider.DefaultHTTPConfig(cfg.Provider.APIKey)
		if cfg.Provider.BaseURL != "" {
			hc.BaseURL = cfg.Provider.BaseURL
		}
		if cfg.Provider.Model != "" {
			hc.Model = cfg.Provider.Model
		}
		return provider.NewHTTPClientWithConfig(hc), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
}

func buildGatherer(cfg config.Config) (*evidence.Gatherer, error) {
	catalog, err := config.LoadSourceCatalog(cfg.SourceCatalogPath)
	if err != nil {
		return nil, err
	}
	var sources []evidence.Source
	for _, st := range catalog.EnabledTypes() {
		src, err := evidence.NewMockSource(st)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no evidence sources enabled")
	}
	return evidence.NewGatherer(sources, cfg.SourceTimeout(), cfg.Lookback()), nil
}

func dbPath(cfg config.Config) string {
	if cfg.DBPath != "" {
		return cfg.DBPath
	}
	return filepath.Join(workspace, ".secbrief", "secbrief.db")
}

func runFleet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runConcurrency > 0 {
		cfg.ConcurrencyLimit = runConcurrency
	}
	if runBatchSize > 0 {
		cfg.BatchSize = runBatchSize
	}
	if runMaxRetries >= 0 {
		cfg.MaxRetriesPerTier = runMaxRetries
	}
	if runTimeout > 0 {
		cfg.PerCallTimeoutSeconds = int(runTimeout.Seconds())
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID := uuid.New().String()
	tasks := parseTasks(args, runEntitiesCSV, runID)
	if len(tasks) == 0 {
		return fmt.Errorf("no entities given; pass ids as arguments or --entities")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := buildProvider(ctx, cfg)
	if err != nil {
		return err
	}
	gatherer, err := buildGatherer(cfg)
	if err != nil {
		return err
	}

	var outcomeStore pipeline.OutcomeStore
	var db *store.Store
	if !runDryRun {
		db, err = store.New(dbPath(cfg))
		if err != nil {
			return err
		}
		defer db.Close()
		outcomeStore = db
	}

	gen := generator.NewGenerator(client, cfg.TierWordRanges, cfg.PerCallTimeout())
	verifier := verify.NewVerifier(cfg.VerificationPassThreshold)
	tiers := pipeline.NewTierPipeline(gen, verifier, cfg.MaxRetriesPerTier)
	entities := pipeline.NewEntityPipeline(gatherer, tiers, outcomeStore)

	orch, err := fleet.New(entities, fleet.Config{
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		BatchSize:        cfg.EffectiveBatchSize(),
	})
	if err != nil {
		return err
	}

	logger.Info("starting fleet run",
		zap.String("run_id", runID),
		zap.Int("entities", len(tasks)),
		zap.Int("concurrency", cfg.ConcurrencyLimit),
		zap.String("mode", entities.Mode().String()),
	)

	outcomes, summary, err := orch.Run(ctx, runID, tasks)
	if err != nil {
		return err
	}
	if db != nil {
		if err := db.SaveSummary(ctx, summary); err != nil {
			logger.Warn("failed to persist run summary", zap.Error(err))
		}
	}

	printRunReport(outcomes, summary)

	if summary.Status != types.RunAllSucceeded {
		// Mapped to the process exit code in main, after deferred
		// cleanup and the post-run hooks have run.
		exitCode = exitPartial
	}
	return nil
}

func printRunReport(outcomes []*types.EntityOutcome, summary *types.FleetSummary) {
	fmt.Printf("Run %s: %s\n", summary.RunID, summary.Status)
	fmt.Printf("  entities: %d total, %d succeeded, %d failed\n", summary.Total, summary.Succeeded, summary.Failed)
	fmt.Printf("  elapsed:  %s\n", summary.Elapsed.Round(time.Millisecond))
	for _, tier := range types.AllTiers() {
		stats := summary.TierStats[tier]
		fmt.Printf("  %-8s avg words %.1f, retries %d, pass rate %.0f%%\n",
			tier, stats.AvgWordCount, stats.TotalRetries, stats.PassRate*100)
	}
	for _, o := range outcomes {
		if o.Succeeded() {
			continue
		}
		fmt.Printf("  FAILED %s: %s\n", o.Task.EntityID, o.Err)
	}
}

func showSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := store.New(dbPath(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	summary, err := db.GetSummary(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printRunReport(nil, summary)
	return nil
}

func listSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := config.LoadSourceCatalog(cfg.SourceCatalogPath)
	if err != nil {
		return err
	}
	for _, entry := range catalog.Sources {
		state := "disabled"
		if entry.Enabled {
			state = "enabled"
		}
		fmt.Printf("%-10s %s\n", entry.Type, state)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Errors returned from RunE are setup failures: configuration,
		// wiring, or an empty task list. Partial run failures come back
		// as exitCode so deferred cleanup and post-run hooks still run.
		fmt.Fprintf(os.Stderr, "secbrief: %v\n", err)
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
		os.Exit(exitSetupError)
	}
	os.Exit(exitCode)
}
