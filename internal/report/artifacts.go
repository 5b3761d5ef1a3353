// Package report writes per-run artifact directories: the resolved run
// configuration, the aggregate outcome, and a per-episode table, plus a
// cumulative index of every run written under the same base directory.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

const runIndexFile = "run_index.json"

type RunConfig struct {
	RunID         string  `json:"run_id"`
	Dataset       string  `json:"dataset"`
	Segments      int     `json:"segments"`
	Frames        int     `json:"frames"`
	Lanes         int     `json:"lanes"`
	LaneWidth     float64 `json:"lane_width"`
	Vehicles      int     `json:"vehicles"`
	DatasetSeed   int64   `json:"dataset_seed"`
	Mode          string  `json:"mode"`
	RewardType    string  `json:"reward_type"`
	Episodes      int     `json:"episodes"`
	Seed          int64   `json:"seed"`
	SplitFraction float64 `json:"split_fraction"`
	FramesBefore  int     `json:"frames_before"`
	FramesAfter   int     `json:"frames_after"`
	MaxSteps      int     `json:"max_steps"`
	Speed         float64 `json:"speed"`
	LateralRate   float64 `json:"lateral_rate"`
}

type EpisodeRow struct {
	EpisodeID   string
	Instant     string
	Frames      int
	TotalReward float64
	Succeeded   bool
	EarlyStop   bool
}

type RunArtifacts struct {
	Config      RunConfig
	Episodes    []EpisodeRow
	Successes   int
	EarlyStops  int
	SuccessRate float64
	TotalReward float64
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Dataset      string  `json:"dataset"`
	Mode         string  `json:"mode"`
	RewardType   string  `json:"reward_type"`
	Episodes     int     `json:"episodes"`
	Seed         int64   `json:"seed"`
	SuccessRate  float64 `json:"success_rate"`
	TotalReward  float64 `json:"total_reward"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// WriteRunArtifacts materializes <baseDir>/<runID>/ with config.json,
// summary.json, and episodes.csv, and returns the run directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), map[string]any{
		"episodes":     len(artifacts.Episodes),
		"successes":    artifacts.Successes,
		"early_stops":  artifacts.EarlyStops,
		"success_rate": artifacts.SuccessRate,
		"total_reward": artifacts.TotalReward,
	}); err != nil {
		return "", err
	}
	if err := writeEpisodeCSV(filepath.Join(runDir, "episodes.csv"), artifacts.Episodes); err != nil {
		return "", err
	}

	return runDir, nil
}

// AppendRunIndex upserts the entry into the base directory's run index.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex loads the run index, newest entries first. A missing
// index reads as empty.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func writeEpisodeCSV(path string, episodes []EpisodeRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"episode_id", "instant", "frames", "total_reward", "succeeded", "early_stop"}); err != nil {
		return err
	}
	for _, episode := range episodes {
		record := []string{
			episode.EpisodeID,
			episode.Instant,
			strconv.Itoa(episode.Frames),
			strconv.FormatFloat(episode.TotalReward, 'f', -1, 64),
			strconv.FormatBool(episode.Succeeded),
			strconv.FormatBool(episode.EarlyStop),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}
