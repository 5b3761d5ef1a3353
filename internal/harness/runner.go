package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"laneval/internal/model"
	"laneval/internal/scenario"
	"laneval/internal/storage"
)

// EpisodeSummary aggregates one episode's arbitration outputs.
type EpisodeSummary struct {
	EpisodeID   string
	Instant     string
	Mode        string
	RewardType  string
	Frames      int
	TotalReward float64
	Succeeded   bool
	EarlyStop   bool
}

// RunSummary aggregates a batch of episodes.
type RunSummary struct {
	RunID       string
	Episodes    []EpisodeSummary
	Successes   int
	EarlyStops  int
	TotalReward float64
}

// SuccessRate is the fraction of episodes that completed the maneuver.
func (s RunSummary) SuccessRate() float64 {
	if len(s.Episodes) == 0 {
		return 0
	}
	return float64(s.Successes) / float64(len(s.Episodes))
}

// Runner drives a policy through scenario episodes under the
// sequential step/reset discipline the core requires. One Runner owns
// its scenario; concurrent use is not supported.
type Runner struct {
	Scenario *scenario.Scenario
	Policy   Policy
	// MaxSteps caps an episode that the scenario's own termination
	// conditions fail to end, such as a policy stuck on the start
	// lane with no timeout monitor attached.
	MaxSteps int
	// Store, when set, persists one EpisodeRecord per episode.
	Store  storage.Store
	RunID  string
	Logger *slog.Logger
}

// RunEpisode evaluates a single episode to termination.
func (r *Runner) RunEpisode(ctx context.Context) (EpisodeSummary, error) {
	agent := &SimAgent{}
	if err := r.Scenario.Reset(agent); err != nil {
		return EpisodeSummary{}, fmt.Errorf("reset scenario: %w", err)
	}
	r.Policy.Reset(agent.Pose())

	summary := EpisodeSummary{}
	var last scenario.StepResult
	for step := 0; r.MaxSteps <= 0 || step < r.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return EpisodeSummary{}, err
		}

		agent.SetPose(r.Policy.Next(last))
		result, err := r.Scenario.Step(agent)
		if err != nil {
			return EpisodeSummary{}, fmt.Errorf("step scenario: %w", err)
		}
		last = result

		summary.Frames++
		summary.TotalReward += result.Reward
		if result.Done {
			summary.EpisodeID, _ = result.Diagnostics["episode_id"].(string)
			summary.Instant, _ = result.Diagnostics["instant"].(string)
			summary.Mode, _ = result.Diagnostics["dataset_mode"].(string)
			summary.RewardType, _ = result.Diagnostics["reward_type"].(string)
			summary.Succeeded, _ = result.Diagnostics["succeeded"].(bool)
			summary.EarlyStop, _ = result.Diagnostics["early_stop"].(bool)
			return summary, nil
		}
	}
	return EpisodeSummary{}, fmt.Errorf("episode exceeded %d steps without terminating", r.MaxSteps)
}

// Run evaluates a batch of episodes and aggregates their outcomes,
// persisting per-episode records when a store is attached.
func (r *Runner) Run(ctx context.Context, episodes int) (RunSummary, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := r.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	summary := RunSummary{RunID: runID}
	for i := 0; i < episodes; i++ {
		episode, err := r.RunEpisode(ctx)
		if err != nil {
			return summary, fmt.Errorf("episode %d: %w", i, err)
		}

		summary.Episodes = append(summary.Episodes, episode)
		summary.TotalReward += episode.TotalReward
		if episode.Succeeded {
			summary.Successes++
		}
		if episode.EarlyStop {
			summary.EarlyStops++
		}

		if r.Store != nil {
			record := model.EpisodeRecord{
				EpisodeID:   episode.EpisodeID,
				RunID:       runID,
				Instant:     episode.Instant,
				Mode:        episode.Mode,
				RewardType:  episode.RewardType,
				Frames:      episode.Frames,
				TotalReward: episode.TotalReward,
				Succeeded:   episode.Succeeded,
				EarlyStop:   episode.EarlyStop,
			}
			if err := r.Store.SaveEpisode(ctx, record); err != nil {
				return summary, fmt.Errorf("save episode %s: %w", episode.EpisodeID, err)
			}
		}

		logger.Debug("episode complete",
			"run_id", runID,
			"episode", i,
			"frames", episode.Frames,
			"reward", episode.TotalReward,
			"succeeded", episode.Succeeded,
		)
	}

	r.Scenario.Close()
	return summary, nil
}
