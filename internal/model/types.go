package model

import "fmt"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Command is the advisory directive the evaluated agent is expected to
// execute at a given frame.
type Command int

const (
	LaneFollow Command = iota
	ChangeLeft
	ChangeRight
)

func (c Command) String() string {
	switch c {
	case LaneFollow:
		return "lane_follow"
	case ChangeLeft:
		return "change_left"
	case ChangeRight:
		return "change_right"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Direction selects a neighbor lane relative to travel direction.
type Direction int

const (
	Left Direction = iota
	Right
)

func (d Direction) String() string {
	if d == Left {
		return "left"
	}
	return "right"
}

// Opposite returns the mirrored direction.
func (d Direction) Opposite() Direction {
	if d == Left {
		return Right
	}
	return Left
}

// ManeuverDirection maps a lane-change command to the neighbor direction
// it drives toward.
func ManeuverDirection(c Command) (Direction, error) {
	switch c {
	case ChangeLeft:
		return Left, nil
	case ChangeRight:
		return Right, nil
	default:
		return 0, fmt.Errorf("command %s has no maneuver direction", c)
	}
}

// DatasetMode partitions recorded maneuver instants for training and
// validation runs.
type DatasetMode int

const (
	Train DatasetMode = iota
	Validation
)

func (m DatasetMode) String() string {
	if m == Train {
		return "train"
	}
	return "validation"
}

// ParseDatasetMode converts a config-facing mode name.
func ParseDatasetMode(name string) (DatasetMode, error) {
	switch name {
	case "", "train":
		return Train, nil
	case "validation":
		return Validation, nil
	default:
		return 0, fmt.Errorf("unsupported dataset mode: %s", name)
	}
}

// RewardType selects the reward shaping applied per step.
type RewardType int

const (
	// Sparse rewards only terminal outcomes: +1 success, -1 early stop.
	Sparse RewardType = iota
	// Dense adds the per-frame progress delta to the terminal terms.
	Dense
)

func (r RewardType) String() string {
	if r == Dense {
		return "dense"
	}
	return "sparse"
}

// ParseRewardType converts a config-facing reward type name.
func ParseRewardType(name string) (RewardType, error) {
	switch name {
	case "", "sparse":
		return Sparse, nil
	case "dense":
		return Dense, nil
	default:
		return 0, fmt.Errorf("unsupported reward type: %s", name)
	}
}

// ManeuverInstant is one recorded lane-change event used as a scenario
// seed. Immutable once indexed.
type ManeuverInstant struct {
	VersionedRecord
	Segment    string  `json:"segment"`
	FrameStart int     `json:"frame_start"`
	VehicleID  int     `json:"vehicle_id"`
	Command    Command `json:"command"`
}

// Identity is the stable serialization used for deterministic
// partitioning. It must stay injective over real data and must not
// change across releases, or recorded splits shift.
func (mi ManeuverInstant) Identity() string {
	return fmt.Sprintf("%s:%d:%d:%s", mi.Segment, mi.FrameStart, mi.VehicleID, mi.Command)
}

// Position is a planar map coordinate in meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pose is a planar position plus heading in radians.
type Pose struct {
	Position Position `json:"position"`
	Yaw      float64  `json:"yaw"`
}

// VehicleState is one decoded frame of a recorded background vehicle.
type VehicleState struct {
	ID    int     `json:"id"`
	Pose  Pose    `json:"pose"`
	Speed float64 `json:"speed"`
}

// EpisodeRecord is the persisted outcome of one evaluated episode.
type EpisodeRecord struct {
	VersionedRecord
	EpisodeID   string  `json:"episode_id"`
	RunID       string  `json:"run_id"`
	Instant     string  `json:"instant"`
	Mode        string  `json:"mode"`
	RewardType  string  `json:"reward_type"`
	Frames      int     `json:"frames"`
	TotalReward float64 `json:"total_reward"`
	Succeeded   bool    `json:"succeeded"`
	EarlyStop   bool    `json:"early_stop"`
}
