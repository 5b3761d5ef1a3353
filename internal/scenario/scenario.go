package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"laneval/internal/dataset"
	"laneval/internal/lanegraph"
	"laneval/internal/model"
)

const (
	// StepDuration is the fixed simulation time increment the external
	// simulator advances between Step calls.
	StepDuration = 100 * time.Millisecond

	// DefaultFramesBefore and DefaultFramesAfter bound the replay
	// window around the recorded maneuver instant. Their sum at the
	// fixed step is the episode timeout budget.
	DefaultFramesBefore = 20
	DefaultFramesAfter  = 80
)

var (
	// ErrNoEpisode reports Step called before the first Reset.
	ErrNoEpisode = errors.New("no active episode: call Reset first")
	// ErrEpisodeDone reports Step called on a terminal episode.
	ErrEpisodeDone = errors.New("episode is done: call Reset before stepping again")
)

// Config wires a Scenario to its external collaborators.
type Config struct {
	// Instants is the full indexed dataset; the scenario filters it
	// into the partition for Mode.
	Instants      []model.ManeuverInstant
	Mode          model.DatasetMode
	SplitFraction float64 // 0 means dataset.DefaultSplitFraction
	RewardType    model.RewardType

	FramesBefore int // 0 means DefaultFramesBefore
	FramesAfter  int // 0 means DefaultFramesAfter

	Trajectory      TrajectorySource
	Graph           lanegraph.Graph
	NewMaterializer MaterializerFactory
	NewStuckMonitor MonitorFactory

	Rand   *rand.Rand
	Logger *slog.Logger
}

// StepResult is the per-frame output of the episode arbiter.
type StepResult struct {
	Command     model.Command
	Reward      float64
	Done        bool
	Diagnostics map[string]any
}

// episode holds all per-episode mutable state. A fresh value is built
// on every Reset and discarded on the next Reset or Close; nothing in
// it survives across episodes.
type episode struct {
	id      string
	instant model.ManeuverInstant

	startLaneID   string
	targetLaneID  string
	targetAtReset lanegraph.Lane

	alignment alignmentDetector
	progress  *progressScorer

	materializer TrafficMaterializer
	monitor      StuckMonitor

	done bool
}

// Scenario evaluates a single lane-change maneuver inside replayed
// background traffic. Reset seeds one recorded maneuver instant; Step
// arbitrates success, early stop and reward each frame. Calls must be
// sequential; the caller guarantees no concurrent Step/Reset on the
// same Scenario.
type Scenario struct {
	selector *dataset.Selector
	resolver *lanegraph.Resolver

	trajectory      TrajectorySource
	newMaterializer MaterializerFactory
	newStuckMonitor MonitorFactory

	rewardType   model.RewardType
	framesBefore int
	framesAfter  int

	logger *slog.Logger

	episode *episode
}

// New validates the configuration and partitions the dataset. An empty
// partition for the requested mode is a configuration error surfaced
// here, never a silent zero-instant run.
func New(cfg Config) (*Scenario, error) {
	if cfg.Trajectory == nil {
		return nil, errors.New("scenario requires a trajectory source")
	}
	if cfg.Graph == nil {
		return nil, errors.New("scenario requires a lane graph")
	}
	if cfg.NewMaterializer == nil {
		return nil, errors.New("scenario requires a traffic materializer factory")
	}
	if cfg.NewStuckMonitor == nil {
		return nil, errors.New("scenario requires a stuck monitor factory")
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	split := cfg.SplitFraction
	if split == 0 {
		split = dataset.DefaultSplitFraction
	}
	selector, err := dataset.NewSelector(cfg.Instants, cfg.Mode, split, rng)
	if err != nil {
		return nil, err
	}

	framesBefore := cfg.FramesBefore
	if framesBefore == 0 {
		framesBefore = DefaultFramesBefore
	}
	framesAfter := cfg.FramesAfter
	if framesAfter == 0 {
		framesAfter = DefaultFramesAfter
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("partitioned maneuver instants",
		"mode", cfg.Mode.String(),
		"instants", selector.Len(),
		"reward_type", cfg.RewardType.String(),
	)

	return &Scenario{
		selector:        selector,
		resolver:        lanegraph.NewResolver(cfg.Graph),
		trajectory:      cfg.Trajectory,
		newMaterializer: cfg.NewMaterializer,
		newStuckMonitor: cfg.NewStuckMonitor,
		rewardType:      cfg.RewardType,
		framesBefore:    framesBefore,
		framesAfter:     framesAfter,
		logger:          logger,
	}, nil
}

// Reset tears down the previous episode's collaborators, draws a new
// maneuver instant, seeds the replay and places the agent on its
// recorded start pose.
func (s *Scenario) Reset(agent AgentHandle) error {
	s.releaseEpisode()

	materializer, err := s.newMaterializer()
	if err != nil {
		return fmt.Errorf("acquire traffic materializer: %w", err)
	}

	timeout := time.Duration(s.framesBefore+s.framesAfter) * StepDuration
	monitor, err := s.newStuckMonitor(timeout)
	if err != nil {
		_ = materializer.Close()
		return fmt.Errorf("acquire stuck monitor: %w", err)
	}

	e := &episode{
		id:           uuid.NewString(),
		instant:      s.selector.Draw(),
		materializer: materializer,
		monitor:      monitor,
	}
	// Seed one frame ahead of the start offset, then step once so the
	// source is positioned exactly at the offset frame.
	startOffset := dataset.StartOffset(e.instant, s.framesBefore)
	if err := s.trajectory.Reset(e.instant.Segment, startOffset-1); err != nil {
		s.teardown(e)
		return fmt.Errorf("reset trajectory %s at frame %d: %w", e.instant.Segment, startOffset-1, err)
	}
	states, err := s.trajectory.Step()
	if err != nil {
		s.teardown(e)
		return fmt.Errorf("step trajectory: %w", err)
	}

	ego, others, found := splitEgo(states, e.instant.VehicleID)
	if !found {
		s.teardown(e)
		return fmt.Errorf("vehicle %d absent from segment %s at frame %d",
			e.instant.VehicleID, e.instant.Segment, s.trajectory.Frame())
	}

	agent.SetPose(ego.Pose)
	agent.SetVelocity(
		math.Cos(ego.Pose.Yaw)*ego.Speed,
		math.Sin(ego.Pose.Yaw)*ego.Speed,
	)

	startLane, ok := s.resolver.LaneAt(ego.Pose.Position)
	if !ok {
		s.teardown(e)
		return fmt.Errorf("maneuver start position %+v is off the road network", ego.Pose.Position)
	}
	targetLane, err := s.resolver.TargetLane(startLane, e.instant.Command)
	if err != nil {
		s.teardown(e)
		return fmt.Errorf("resolve target lane: %w", err)
	}

	direction, err := model.ManeuverDirection(e.instant.Command)
	if err != nil {
		s.teardown(e)
		return err
	}

	e.startLaneID = startLane.ID()
	e.targetLaneID = targetLane.ID()
	e.targetAtReset = targetLane
	e.progress = newProgressScorer(direction, e.startLaneID, e.targetLaneID)

	if err := materializer.Step(others); err != nil {
		s.teardown(e)
		return fmt.Errorf("materialize background traffic: %w", err)
	}

	s.episode = e
	s.logger.Debug("episode reset",
		"episode_id", e.id,
		"instant", e.instant.Identity(),
		"start_lane", e.startLaneID,
		"target_lane", e.targetLaneID,
	)
	return nil
}

// Step advances one frame: replays background traffic, reads the
// agent's pose and arbitrates the episode outcome. Success is decided
// before early stop, so a frame that both completes alignment and
// trips the timeout reports success.
func (s *Scenario) Step(agent AgentHandle) (StepResult, error) {
	e := s.episode
	if e == nil {
		return StepResult{}, ErrNoEpisode
	}
	if e.done {
		return StepResult{}, ErrEpisodeDone
	}

	states, err := s.trajectory.Step()
	if err != nil {
		return StepResult{}, fmt.Errorf("step trajectory: %w", err)
	}
	_, others, _ := splitEgo(states, e.instant.VehicleID)
	if err := e.materializer.Step(others); err != nil {
		return StepResult{}, fmt.Errorf("materialize background traffic: %w", err)
	}

	pose := agent.Pose()
	lane, onRoad := s.resolver.LaneAt(pose.Position)

	onStartLane := onRoad && lane.ID() == e.startLaneID
	onTargetLane := onRoad && lane.ID() == e.targetLaneID

	// Alignment is only defined against the target lane; leaving it
	// loses any partially accumulated debounce window.
	alignmentComplete := false
	if onTargetLane {
		alignmentComplete = e.alignment.check(pose, lane)
	} else {
		e.alignment.reset()
	}

	var progressLane lanegraph.Lane
	if onRoad {
		progressLane = lane
	}
	progressDelta := e.progress.delta(pose.Position, progressLane, e.targetAtReset)

	notOnExpectedLanes := !(onStartLane || onTargetLane)
	command := model.LaneFollow
	if onStartLane {
		command = e.instant.Command
	}

	timeoutOrStuck := e.monitor.ShouldStop(pose)

	succeeded := onTargetLane && alignmentComplete
	earlyStop := !succeeded && (timeoutOrStuck || notOnExpectedLanes)
	done := succeeded || earlyStop

	reward := 0.0
	if s.rewardType == model.Dense {
		reward += progressDelta
	}
	if succeeded {
		reward++
	}
	if earlyStop {
		reward--
	}

	e.done = done

	result := StepResult{
		Command: command,
		Reward:  reward,
		Done:    done,
		Diagnostics: map[string]any{
			"episode_id":               e.id,
			"instant":                  e.instant.Identity(),
			"segment":                  e.instant.Segment,
			"frame":                    s.trajectory.Frame(),
			"dataset_mode":             s.selector.Mode().String(),
			"reward_type":              s.rewardType.String(),
			"target_alignment_counter": e.alignment.counter,
			"succeeded":                succeeded,
			"early_stop":               earlyStop,
		},
	}

	if done {
		s.logger.Debug("episode finished",
			"episode_id", e.id,
			"succeeded", succeeded,
			"early_stop", earlyStop,
			"frame", s.trajectory.Frame(),
		)
	}
	return result, nil
}

// Close releases the active episode's collaborators. It is idempotent:
// repeated calls, or calling it with no active episode, are no-ops.
func (s *Scenario) Close() {
	s.releaseEpisode()
}

func (s *Scenario) releaseEpisode() {
	if s.episode == nil {
		return
	}
	s.teardown(s.episode)
	s.episode = nil
}

func (s *Scenario) teardown(e *episode) {
	if e.monitor != nil {
		_ = e.monitor.Close()
		e.monitor = nil
	}
	if e.materializer != nil {
		_ = e.materializer.Close()
		e.materializer = nil
	}
}

func splitEgo(states []model.VehicleState, egoID int) (model.VehicleState, []model.VehicleState, bool) {
	var ego model.VehicleState
	found := false
	others := make([]model.VehicleState, 0, len(states))
	for _, state := range states {
		if state.ID == egoID && !found {
			ego = state
			found = true
			continue
		}
		others = append(others, state)
	}
	return ego, others, found
}
