package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"laneval/internal/storage"
	api "laneval/pkg/laneval"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "index":
		return runIndex(ctx, args[1:])
	case "split":
		return runSplit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "episodes":
		return runEpisodes(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: lanevalctl <init|index|split|run|episodes> [flags]", msg)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newClient(storeKind, dbPath string, verbose bool) (*api.Client, error) {
	return api.New(api.Options{
		StoreKind: storeKind,
		DBPath:    dbPath,
		Logger:    newLogger(verbose),
	})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "laneval.db", "sqlite database path")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath, *verbose)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}
	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runIndex(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "laneval.db", "sqlite database path")
	name := fs.String("dataset", "synthetic", "dataset name")
	segments := fs.Int("segments", 4, "synthetic segment count")
	frames := fs.Int("frames", 600, "frames per segment")
	lanes := fs.Int("lanes", 5, "lane count")
	laneWidth := fs.Float64("lane-width", 3.5, "lane width in meters")
	vehicles := fs.Int("vehicles", 12, "scripted vehicles per segment")
	seed := fs.Int64("seed", 1, "dataset generation seed")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath, *verbose)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.Index(ctx, api.DatasetSpec{
		Name:      *name,
		Segments:  *segments,
		Frames:    *frames,
		Lanes:     *lanes,
		LaneWidth: *laneWidth,
		Vehicles:  *vehicles,
		Seed:      *seed,
	})
	if err != nil {
		return err
	}

	fmt.Printf("indexed dataset=%s segments=%d instants=%d train=%d validation=%d\n",
		summary.Dataset, summary.Segments, summary.Instants, summary.Train, summary.Validation)
	return nil
}

func runSplit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("split", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "laneval.db", "sqlite database path")
	name := fs.String("dataset", "synthetic", "dataset name")
	fraction := fs.Float64("fraction", 0.8, "train split fraction")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath, *verbose)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.Split(ctx, *name, *fraction)
	if err != nil {
		return err
	}

	fmt.Printf("dataset=%s fraction=%.2f total=%d train=%d validation=%d\n",
		summary.Dataset, summary.Fraction, summary.Total, summary.Train, summary.Validation)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config YAML path")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "laneval.db", "sqlite database path")
	name := fs.String("dataset", "", "dataset name")
	mode := fs.String("mode", "", "dataset mode: train|validation")
	rewardType := fs.String("reward", "", "reward type: sparse|dense")
	episodes := fs.Int("episodes", 0, "episode count")
	seed := fs.Int64("seed", 0, "episode draw seed")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	artifactsDir := fs.String("artifacts", "", "write per-run artifacts under this directory (optional)")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := loadOrDefaultRunRequest(*configPath)
	if err != nil {
		return err
	}
	// Flags override whatever the config file carries.
	if *name != "" {
		req.Dataset.Name = *name
	}
	if *mode != "" {
		req.Mode = *mode
	}
	if *rewardType != "" {
		req.RewardType = *rewardType
	}
	if *episodes > 0 {
		req.Episodes = *episodes
	}
	if *seed != 0 {
		req.Seed = *seed
	}
	if *runID != "" {
		req.RunID = *runID
	}

	client, err := api.New(api.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: *artifactsDir,
		Logger:       newLogger(*verbose),
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run=%s episodes=%d successes=%d early_stops=%d success_rate=%.2f total_reward=%.3f\n",
		summary.RunID, summary.Episodes, summary.Successes, summary.EarlyStops,
		summary.SuccessRate, summary.TotalReward)
	return nil
}

func runEpisodes(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("episodes", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "laneval.db", "sqlite database path")
	runID := fs.String("run-id", "", "run id to list")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return usageError("episodes requires -run-id")
	}

	client, err := newClient(*storeKind, *dbPath, *verbose)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	episodes, err := client.Episodes(ctx, *runID)
	if err != nil {
		return err
	}

	for _, episode := range episodes {
		fmt.Printf("episode=%s instant=%s mode=%s reward_type=%s frames=%d reward=%.3f succeeded=%t early_stop=%t\n",
			episode.EpisodeID, episode.Instant, episode.Mode, episode.RewardType,
			episode.Frames, episode.TotalReward, episode.Succeeded, episode.EarlyStop)
	}
	return nil
}
