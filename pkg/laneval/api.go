// Package laneval is the embedding API for the lane-change evaluation
// core: dataset generation and indexing, split inspection, batch
// episode runs, and persisted outcome retrieval, over a pluggable
// store.
package laneval

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"laneval/internal/dataset"
	"laneval/internal/harness"
	"laneval/internal/lanegraph"
	"laneval/internal/model"
	"laneval/internal/replay"
	"laneval/internal/report"
	"laneval/internal/scenario"
	"laneval/internal/storage"
)

const (
	defaultDBPath  = "laneval.db"
	defaultDataset = "synthetic"
)

type Options struct {
	StoreKind string
	DBPath    string
	// ArtifactsDir, when set, receives one directory of run artifacts
	// per evaluated batch plus a cumulative run index.
	ArtifactsDir string
	Logger       *slog.Logger
}

type Client struct {
	store        storage.Store
	artifactsDir string
	logger       *slog.Logger
}

// DatasetSpec describes a deterministic synthetic traffic dataset. The
// same spec always regenerates the same recording, so instants indexed
// from it stay valid across processes sharing only the store.
type DatasetSpec struct {
	Name      string  `yaml:"name"`
	Segments  int     `yaml:"segments"`
	Frames    int     `yaml:"frames"`
	Lanes     int     `yaml:"lanes"`
	LaneWidth float64 `yaml:"lane_width"`
	Vehicles  int     `yaml:"vehicles"`
	Seed      int64   `yaml:"seed"`
}

func (s *DatasetSpec) applyDefaults() {
	if s.Name == "" {
		s.Name = defaultDataset
	}
	if s.Segments <= 0 {
		s.Segments = 4
	}
	if s.Frames <= 0 {
		s.Frames = 600
	}
	if s.Lanes <= 0 {
		s.Lanes = 5
	}
	if s.LaneWidth <= 0 {
		s.LaneWidth = 3.5
	}
	if s.Vehicles <= 0 {
		s.Vehicles = 12
	}
	if s.Seed == 0 {
		s.Seed = 1
	}
}

type IndexSummary struct {
	Dataset    string
	Segments   int
	Frames     int
	Instants   int
	Train      int
	Validation int
}

type SplitSummary struct {
	Dataset    string
	Fraction   float64
	Total      int
	Train      int
	Validation int
}

type RunRequest struct {
	Dataset       DatasetSpec `yaml:"dataset"`
	Mode          string      `yaml:"mode"`
	RewardType    string      `yaml:"reward_type"`
	Episodes      int         `yaml:"episodes"`
	Seed          int64       `yaml:"seed"`
	SplitFraction float64     `yaml:"split_fraction"`
	FramesBefore  int         `yaml:"frames_before"`
	FramesAfter   int         `yaml:"frames_after"`
	MaxSteps      int         `yaml:"max_steps"`
	Speed         float64     `yaml:"speed"`
	LateralRate   float64     `yaml:"lateral_rate"`
	RunID         string      `yaml:"run_id"`
}

type RunSummary struct {
	RunID       string
	Episodes    int
	Successes   int
	EarlyStops  int
	SuccessRate float64
	TotalReward float64
}

type EpisodeItem struct {
	EpisodeID   string
	Instant     string
	Mode        string
	RewardType  string
	Frames      int
	TotalReward float64
	Succeeded   bool
	EarlyStop   bool
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store, artifactsDir: opts.ArtifactsDir, logger: logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Index regenerates the spec's synthetic recording, scans it for lane
// changes, and persists the resulting instants under the dataset name.
func (c *Client) Index(ctx context.Context, spec DatasetSpec) (IndexSummary, error) {
	spec.applyDefaults()

	road, rec, err := buildSynthetic(spec)
	if err != nil {
		return IndexSummary{}, err
	}
	instants := replay.IndexInstants(rec, road)
	if err := c.store.SaveInstants(ctx, spec.Name, instants); err != nil {
		return IndexSummary{}, fmt.Errorf("save instants: %w", err)
	}

	train := len(dataset.Filter(instants, model.Train, dataset.DefaultSplitFraction))
	c.logger.Info("indexed dataset",
		"dataset", spec.Name,
		"segments", spec.Segments,
		"instants", len(instants),
	)
	return IndexSummary{
		Dataset:    spec.Name,
		Segments:   spec.Segments,
		Frames:     spec.Frames,
		Instants:   len(instants),
		Train:      train,
		Validation: len(instants) - train,
	}, nil
}

// Split reports how a stored dataset partitions at the given train
// fraction without mutating anything.
func (c *Client) Split(ctx context.Context, datasetName string, fraction float64) (SplitSummary, error) {
	if datasetName == "" {
		datasetName = defaultDataset
	}
	if fraction <= 0 {
		fraction = dataset.DefaultSplitFraction
	}
	if fraction > 1 {
		return SplitSummary{}, fmt.Errorf("split fraction must be in (0, 1], got %f", fraction)
	}

	instants, ok, err := c.store.GetInstants(ctx, datasetName)
	if err != nil {
		return SplitSummary{}, err
	}
	if !ok {
		return SplitSummary{}, fmt.Errorf("dataset not indexed: %s", datasetName)
	}

	train := len(dataset.Filter(instants, model.Train, fraction))
	return SplitSummary{
		Dataset:    datasetName,
		Fraction:   fraction,
		Total:      len(instants),
		Train:      train,
		Validation: len(instants) - train,
	}, nil
}

// Run evaluates a batch of episodes with the scripted lane-change
// policy against the spec's regenerated recording. Instants come from
// the store when the dataset was indexed, and are derived on the fly
// otherwise.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	req.Dataset.applyDefaults()
	if req.Mode == "" {
		req.Mode = model.Train.String()
	}
	if req.RewardType == "" {
		req.RewardType = model.Dense.String()
	}
	if req.Episodes <= 0 {
		req.Episodes = 10
	}
	if req.Seed == 0 {
		req.Seed = 1
	}
	if req.MaxSteps <= 0 {
		req.MaxSteps = 500
	}
	if req.Speed <= 0 {
		req.Speed = 8
	}
	if req.LateralRate <= 0 {
		req.LateralRate = 0.25
	}

	mode, err := model.ParseDatasetMode(req.Mode)
	if err != nil {
		return RunSummary{}, err
	}
	rewardType, err := model.ParseRewardType(req.RewardType)
	if err != nil {
		return RunSummary{}, err
	}

	road, rec, err := buildSynthetic(req.Dataset)
	if err != nil {
		return RunSummary{}, err
	}
	instants, ok, err := c.store.GetInstants(ctx, req.Dataset.Name)
	if err != nil {
		return RunSummary{}, err
	}
	if !ok {
		instants = replay.IndexInstants(rec, road)
	}

	s, err := scenario.New(scenario.Config{
		Instants:      instants,
		Mode:          mode,
		SplitFraction: req.SplitFraction,
		RewardType:    rewardType,
		FramesBefore:  req.FramesBefore,
		FramesAfter:   req.FramesAfter,
		Trajectory:    rec,
		Graph:         road,
		NewMaterializer: func() (scenario.TrafficMaterializer, error) {
			return replay.NullMaterializer{}, nil
		},
		NewStuckMonitor: func(timeout time.Duration) (scenario.StuckMonitor, error) {
			return replay.NewEarlyStopMonitor(timeout), nil
		},
		Rand:   rand.New(rand.NewSource(req.Seed)),
		Logger: c.logger,
	})
	if err != nil {
		return RunSummary{}, err
	}

	runner := &harness.Runner{
		Scenario: s,
		Policy:   &harness.LaneChangePolicy{Graph: road, Speed: req.Speed, LateralRate: req.LateralRate},
		MaxSteps: req.MaxSteps,
		Store:    c.store,
		RunID:    req.RunID,
		Logger:   c.logger,
	}
	summary, err := runner.Run(ctx, req.Episodes)
	if err != nil {
		return RunSummary{}, err
	}

	if c.artifactsDir != "" {
		if err := c.writeArtifacts(req, summary); err != nil {
			return RunSummary{}, err
		}
	}

	return RunSummary{
		RunID:       summary.RunID,
		Episodes:    len(summary.Episodes),
		Successes:   summary.Successes,
		EarlyStops:  summary.EarlyStops,
		SuccessRate: summary.SuccessRate(),
		TotalReward: summary.TotalReward,
	}, nil
}

func (c *Client) writeArtifacts(req RunRequest, summary harness.RunSummary) error {
	rows := make([]report.EpisodeRow, 0, len(summary.Episodes))
	for _, episode := range summary.Episodes {
		rows = append(rows, report.EpisodeRow{
			EpisodeID:   episode.EpisodeID,
			Instant:     episode.Instant,
			Frames:      episode.Frames,
			TotalReward: episode.TotalReward,
			Succeeded:   episode.Succeeded,
			EarlyStop:   episode.EarlyStop,
		})
	}

	runDir, err := report.WriteRunArtifacts(c.artifactsDir, report.RunArtifacts{
		Config: report.RunConfig{
			RunID:         summary.RunID,
			Dataset:       req.Dataset.Name,
			Segments:      req.Dataset.Segments,
			Frames:        req.Dataset.Frames,
			Lanes:         req.Dataset.Lanes,
			LaneWidth:     req.Dataset.LaneWidth,
			Vehicles:      req.Dataset.Vehicles,
			DatasetSeed:   req.Dataset.Seed,
			Mode:          req.Mode,
			RewardType:    req.RewardType,
			Episodes:      req.Episodes,
			Seed:          req.Seed,
			SplitFraction: req.SplitFraction,
			FramesBefore:  req.FramesBefore,
			FramesAfter:   req.FramesAfter,
			MaxSteps:      req.MaxSteps,
			Speed:         req.Speed,
			LateralRate:   req.LateralRate,
		},
		Episodes:    rows,
		Successes:   summary.Successes,
		EarlyStops:  summary.EarlyStops,
		SuccessRate: summary.SuccessRate(),
		TotalReward: summary.TotalReward,
	})
	if err != nil {
		return fmt.Errorf("write run artifacts: %w", err)
	}

	if err := report.AppendRunIndex(c.artifactsDir, report.RunIndexEntry{
		RunID:        summary.RunID,
		Dataset:      req.Dataset.Name,
		Mode:         req.Mode,
		RewardType:   req.RewardType,
		Episodes:     len(summary.Episodes),
		Seed:         req.Seed,
		SuccessRate:  summary.SuccessRate(),
		TotalReward:  summary.TotalReward,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return fmt.Errorf("append run index: %w", err)
	}

	c.logger.Info("wrote run artifacts", "run_id", summary.RunID, "dir", runDir)
	return nil
}

// Episodes lists the persisted outcomes of a run.
func (c *Client) Episodes(ctx context.Context, runID string) ([]EpisodeItem, error) {
	records, ok, err := c.store.GetEpisodes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no episodes recorded for run: %s", runID)
	}

	items := make([]EpisodeItem, 0, len(records))
	for _, record := range records {
		items = append(items, EpisodeItem{
			EpisodeID:   record.EpisodeID,
			Instant:     record.Instant,
			Mode:        record.Mode,
			RewardType:  record.RewardType,
			Frames:      record.Frames,
			TotalReward: record.TotalReward,
			Succeeded:   record.Succeeded,
			EarlyStop:   record.EarlyStop,
		})
	}
	return items, nil
}

// buildSynthetic regenerates the spec's road and recording. Vehicle
// scripts derive from the seed alone, keeping regeneration stable
// across processes.
func buildSynthetic(spec DatasetSpec) (*lanegraph.StraightRoad, *replay.Recording, error) {
	road, err := lanegraph.NewStraightRoad(spec.Lanes, spec.LaneWidth, 0)
	if err != nil {
		return nil, nil, err
	}

	rng := rand.New(rand.NewSource(spec.Seed))
	rec := replay.NewRecording()
	for segment := 0; segment < spec.Segments; segment++ {
		vehicles := make([]replay.SyntheticVehicle, 0, spec.Vehicles)
		for i := 0; i < spec.Vehicles; i++ {
			lane := rng.Intn(spec.Lanes)
			target := lane
			// Roughly two thirds of the scripted vehicles change lanes
			// once, to a random adjacent lane, late enough that the
			// frames-before context window fits ahead of the change.
			if rng.Float64() < 0.66 {
				if lane == 0 {
					target = 1
				} else if lane == spec.Lanes-1 {
					target = lane - 1
				} else if rng.Intn(2) == 0 {
					target = lane + 1
				} else {
					target = lane - 1
				}
			}
			changeFrames := 20 + rng.Intn(30)
			changeFrame := scenario.DefaultFramesBefore + 10 + rng.Intn(spec.Frames/2)
			vehicles = append(vehicles, replay.SyntheticVehicle{
				ID:           segment*1000 + i,
				Lane:         lane,
				TargetLane:   target,
				ChangeFrame:  changeFrame,
				ChangeFrames: changeFrames,
				StartX:       rng.Float64() * 200,
				Speed:        6 + rng.Float64()*4,
			})
		}
		AppendSegment(rec, road, fmt.Sprintf("%s-%02d", spec.Name, segment), spec.Frames, vehicles)
	}
	return road, rec, nil
}

// AppendSegment is a thin alias kept so embedders can extend a
// regenerated recording with extra scripted segments.
func AppendSegment(rec *replay.Recording, road *lanegraph.StraightRoad, segment string, frames int, vehicles []replay.SyntheticVehicle) {
	replay.AppendSyntheticSegment(rec, road, segment, frames, vehicles)
}
