package scenario

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"
	"time"

	"laneval/internal/dataset"
	"laneval/internal/lanegraph"
	"laneval/internal/model"
)

// stubTrajectory replays a single ego vehicle cruising the start lane.
type stubTrajectory struct {
	ego    model.VehicleState
	cursor int
	resets []int
}

func (t *stubTrajectory) Reset(_ string, frame int) error {
	t.resets = append(t.resets, frame)
	t.cursor = frame
	return nil
}

func (t *stubTrajectory) Step() ([]model.VehicleState, error) {
	t.cursor++
	other := model.VehicleState{
		ID:    t.ego.ID + 1,
		Pose:  model.Pose{Position: model.Position{X: t.ego.Pose.Position.X + 30}},
		Speed: t.ego.Speed,
	}
	return []model.VehicleState{t.ego, other}, nil
}

func (t *stubTrajectory) Frame() int { return t.cursor }

type stubMaterializer struct {
	steps  int
	closed int
}

func (m *stubMaterializer) Step(states []model.VehicleState) error {
	m.steps++
	return nil
}

func (m *stubMaterializer) Close() error {
	m.closed++
	return nil
}

// stubMonitor fires on a scripted call index; zero means never.
type stubMonitor struct {
	stopAtCall int
	calls      int
	closed     int
}

func (m *stubMonitor) ShouldStop(model.Pose) bool {
	m.calls++
	return m.stopAtCall > 0 && m.calls >= m.stopAtCall
}

func (m *stubMonitor) Close() error {
	m.closed++
	return nil
}

type fakeAgent struct {
	pose   model.Pose
	vx, vy float64
}

func (a *fakeAgent) Pose() model.Pose        { return a.pose }
func (a *fakeAgent) SetPose(pose model.Pose) { a.pose = pose }
func (a *fakeAgent) SetVelocity(vx, vy float64) {
	a.vx = vx
	a.vy = vy
}

type fixture struct {
	scenario     *Scenario
	trajectory   *stubTrajectory
	materializer *stubMaterializer
	monitor      *stubMonitor
	agent        *fakeAgent
	road         *lanegraph.StraightRoad
}

func trainInstant(t *testing.T, frameStart int) model.ManeuverInstant {
	t.Helper()
	// Probe vehicle ids until the identity hashes into TRAIN so the
	// fixture stays valid if the identity serialization ever changes.
	for vehicleID := 1; vehicleID < 200; vehicleID++ {
		instant := model.ManeuverInstant{
			Segment:    "i80-00",
			FrameStart: frameStart,
			VehicleID:  vehicleID,
			Command:    model.ChangeLeft,
		}
		if dataset.Partition(instant, dataset.DefaultSplitFraction) == model.Train {
			return instant
		}
	}
	t.Fatalf("no train-partition instant found")
	return model.ManeuverInstant{}
}

func newFixture(t *testing.T, rewardType model.RewardType, stopAtCall int) *fixture {
	t.Helper()

	road, err := lanegraph.NewStraightRoad(3, 3.5, 0)
	if err != nil {
		t.Fatalf("new road: %v", err)
	}
	instant := trainInstant(t, 100)

	trajectory := &stubTrajectory{
		ego: model.VehicleState{
			ID:    instant.VehicleID,
			Pose:  model.Pose{Position: model.Position{X: 0, Y: 0}},
			Speed: 8,
		},
	}
	materializer := &stubMaterializer{}
	monitor := &stubMonitor{stopAtCall: stopAtCall}

	scenario, err := New(Config{
		Instants:     []model.ManeuverInstant{instant},
		Mode:         model.Train,
		RewardType:   rewardType,
		FramesBefore: 20,
		FramesAfter:  80,
		Trajectory:   trajectory,
		Graph:        road,
		NewMaterializer: func() (TrafficMaterializer, error) {
			return materializer, nil
		},
		NewStuckMonitor: func(timeout time.Duration) (StuckMonitor, error) {
			if want := 100 * StepDuration; timeout != want {
				t.Fatalf("expected timeout %v, got %v", want, timeout)
			}
			return monitor, nil
		},
		Rand:   rand.New(rand.NewSource(1)),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new scenario: %v", err)
	}

	return &fixture{
		scenario:     scenario,
		trajectory:   trajectory,
		materializer: materializer,
		monitor:      monitor,
		agent:        &fakeAgent{},
		road:         road,
	}
}

func (f *fixture) alignedTargetPose() model.Pose {
	return model.Pose{Position: model.Position{X: 0, Y: 3.5}, Yaw: 0}
}

func TestNewRejectsEmptyPartition(t *testing.T) {
	road, err := lanegraph.NewStraightRoad(2, 3.5, 0)
	if err != nil {
		t.Fatalf("new road: %v", err)
	}
	_, err = New(Config{
		Instants:        nil,
		Mode:            model.Train,
		Trajectory:      &stubTrajectory{},
		Graph:           road,
		NewMaterializer: func() (TrafficMaterializer, error) { return &stubMaterializer{}, nil },
		NewStuckMonitor: func(time.Duration) (StuckMonitor, error) { return &stubMonitor{}, nil },
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if !errors.Is(err, dataset.ErrEmptyPartition) {
		t.Fatalf("expected empty partition error, got %v", err)
	}
}

func TestStepBeforeResetFailsLoudly(t *testing.T) {
	f := newFixture(t, model.Sparse, 0)
	if _, err := f.scenario.Step(f.agent); !errors.Is(err, ErrNoEpisode) {
		t.Fatalf("expected ErrNoEpisode, got %v", err)
	}
}

func TestResetSeedsReplayAndPlacesAgent(t *testing.T) {
	f := newFixture(t, model.Sparse, 0)
	if err := f.scenario.Reset(f.agent); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// frame_start=100 with 20 frames of lead-in seeds the replay at
	// frame 79; the priming step leaves the source on frame 80.
	if len(f.trajectory.resets) != 1 || f.trajectory.resets[0] != 79 {
		t.Fatalf("expected replay reset to frame 79, got %v", f.trajectory.resets)
	}
	if f.trajectory.Frame() != 80 {
		t.Fatalf("expected trajectory at frame 80 after reset, got %d", f.trajectory.Frame())
	}
	if f.agent.pose != (model.Pose{Position: model.Position{X: 0, Y: 0}}) {
		t.Fatalf("agent not placed on recorded pose: %+v", f.agent.pose)
	}
	if f.agent.vx != 8 || f.agent.vy != 0 {
		t.Fatalf("agent velocity not seeded: vx=%f vy=%f", f.agent.vx, f.agent.vy)
	}
	if f.materializer.steps != 1 {
		t.Fatalf("background traffic not materialized at reset, steps=%d", f.materializer.steps)
	}
}

func TestSuccessAtTenthAlignedFrame(t *testing.T) {
	f := newFixture(t, model.Sparse, 0)
	if err := f.scenario.Reset(f.agent); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// Hold the start lane until the replay reaches frame 149.
	for f.trajectory.Frame() < 149 {
		result, err := f.scenario.Step(f.agent)
		if err != nil {
			t.Fatalf("step at frame %d: %v", f.trajectory.Frame(), err)
		}
		if result.Done {
			t.Fatalf("episode ended prematurely at frame %d", f.trajectory.Frame())
		}
		if result.Command != model.ChangeLeft {
			t.Fatalf("expected maneuver command on start lane, got %s", result.Command)
		}
	}

	// Drift to the target lane; alignment holds frames 150-159.
	f.agent.pose = f.alignedTargetPose()
	for i := 0; i < AlignmentFrames; i++ {
		result, err := f.scenario.Step(f.agent)
		if err != nil {
			t.Fatalf("aligned step %d: %v", i+1, err)
		}
		if result.Command != model.LaneFollow {
			t.Fatalf("expected lane-follow off the start lane, got %s", result.Command)
		}
		frame := f.trajectory.Frame()
		if i < AlignmentFrames-1 {
			if result.Done {
				t.Fatalf("premature success at aligned frame %d (replay frame %d)", i+1, frame)
			}
			continue
		}
		if !result.Done {
			t.Fatalf("expected success at the tenth aligned frame")
		}
		if frame != 159 {
			t.Fatalf("expected success while processing frame 159, got %d", frame)
		}
		if result.Reward != 1 {
			t.Fatalf("expected +1 sparse success reward, got %f", result.Reward)
		}
	}

	if _, err := f.scenario.Step(f.agent); !errors.Is(err, ErrEpisodeDone) {
		t.Fatalf("expected ErrEpisodeDone after success, got %v", err)
	}
}

func TestSuccessTakesPrecedenceOverTimeout(t *testing.T) {
	// The monitor fires on the exact call where alignment completes:
	// success must win and the reward must include +1, not -1.
	f := newFixture(t, model.Sparse, AlignmentFrames)
	if err := f.scenario.Reset(f.agent); err != nil {
		t.Fatalf("reset: %v", err)
	}

	f.agent.pose = f.alignedTargetPose()
	var last StepResult
	for i := 0; i < AlignmentFrames; i++ {
		result, err := f.scenario.Step(f.agent)
		if err != nil {
			t.Fatalf("step %d: %v", i+1, err)
		}
		last = result
	}
	if !last.Done {
		t.Fatalf("expected terminal frame")
	}
	if last.Reward != 1 {
		t.Fatalf("expected success reward +1 despite timeout, got %f", last.Reward)
	}
}

func TestOffExpectedLanesStopsEarly(t *testing.T) {
	f := newFixture(t, model.Sparse, 0)
	if err := f.scenario.Reset(f.agent); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// One frame off the road network ends the episode regardless of
	// the timeout monitor.
	f.agent.pose = model.Pose{Position: model.Position{X: 0, Y: -50}}
	result, err := f.scenario.Step(f.agent)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !result.Done {
		t.Fatalf("expected early stop off expected lanes")
	}
	if result.Reward != -1 {
		t.Fatalf("expected -1 early stop reward, got %f", result.Reward)
	}
	if result.Command != model.LaneFollow {
		t.Fatalf("expected lane-follow advisory off the start lane, got %s", result.Command)
	}
}

func TestNonAdjacentLaneIsNotExpected(t *testing.T) {
	f := newFixture(t, model.Sparse, 0)
	if err := f.scenario.Reset(f.agent); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// lane-2 is mapped road, but neither the start nor the target lane.
	f.agent.pose = model.Pose{Position: model.Position{X: 0, Y: 7.0}}
	result, err := f.scenario.Step(f.agent)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !result.Done || result.Reward != -1 {
		t.Fatalf("expected early stop on non-adjacent lane, got done=%v reward=%f", result.Done, result.Reward)
	}
}

func TestTimeoutStopsEarly(t *testing.T) {
	f := newFixture(t, model.Sparse, 5)
	if err := f.scenario.Reset(f.agent); err != nil {
		t.Fatalf("reset: %v", err)
	}

	for i := 0; i < 4; i++ {
		result, err := f.scenario.Step(f.agent)
		if err != nil {
			t.Fatalf("step %d: %v", i+1, err)
		}
		if result.Done {
			t.Fatalf("premature stop on step %d", i+1)
		}
	}
	result, err := f.scenario.Step(f.agent)
	if err != nil {
		t.Fatalf("timeout step: %v", err)
	}
	if !result.Done || result.Reward != -1 {
		t.Fatalf("expected timeout early stop, got done=%v reward=%f", result.Done, result.Reward)
	}
}

func TestDenseRewardComposition(t *testing.T) {
	f := newFixture(t, model.Dense, 0)
	if err := f.scenario.Reset(f.agent); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// Drive straight toward the target centerline and hold alignment
	// just inside the crosstrack tolerance. The distance snapshot is
	// fixed on the first step, so the hold point stays short of the
	// overshoot clamp. Cumulative dense reward is the accrued progress
	// fraction plus the terminal success bonus, with no clipping.
	total := 0.0
	for i := 1; i <= 13; i++ {
		f.agent.pose = model.Pose{Position: model.Position{X: 0, Y: 0.25 * float64(i)}}
		result, err := f.scenario.Step(f.agent)
		if err != nil {
			t.Fatalf("approach step %d: %v", i, err)
		}
		total += result.Reward
		if result.Done {
			t.Fatalf("premature terminal state at approach step %d", i)
		}
	}

	// Snapshot total distance was 3.25 (first step at y=0.25); holding
	// at y=3.25 is 9 checkpoints in, i.e. progress 0.9.
	done := false
	for i := 0; i < AlignmentFrames && !done; i++ {
		result, err := f.scenario.Step(f.agent)
		if err != nil {
			t.Fatalf("aligned step %d: %v", i+1, err)
		}
		total += result.Reward
		done = result.Done
	}
	if !done {
		t.Fatalf("expected success")
	}
	if math.Abs(total-1.9) > 1e-6 {
		t.Fatalf("expected cumulative dense reward 1.9, got %f", total)
	}
}

func TestResetReleasesPreviousEpisodeResources(t *testing.T) {
	f := newFixture(t, model.Sparse, 0)
	if err := f.scenario.Reset(f.agent); err != nil {
		t.Fatalf("first reset: %v", err)
	}
	if err := f.scenario.Reset(f.agent); err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if f.materializer.closed != 1 || f.monitor.closed != 1 {
		t.Fatalf("previous episode not released: materializer=%d monitor=%d",
			f.materializer.closed, f.monitor.closed)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newFixture(t, model.Sparse, 0)

	// Close with no active episode is a no-op.
	f.scenario.Close()

	if err := f.scenario.Reset(f.agent); err != nil {
		t.Fatalf("reset: %v", err)
	}
	f.scenario.Close()
	f.scenario.Close()
	if f.materializer.closed != 1 || f.monitor.closed != 1 {
		t.Fatalf("close not idempotent: materializer=%d monitor=%d",
			f.materializer.closed, f.monitor.closed)
	}

	if _, err := f.scenario.Step(f.agent); !errors.Is(err, ErrNoEpisode) {
		t.Fatalf("expected ErrNoEpisode after close, got %v", err)
	}
}

func TestStepDiagnostics(t *testing.T) {
	f := newFixture(t, model.Sparse, 0)
	if err := f.scenario.Reset(f.agent); err != nil {
		t.Fatalf("reset: %v", err)
	}

	result, err := f.scenario.Step(f.agent)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if result.Diagnostics["segment"] != "i80-00" {
		t.Fatalf("missing segment diagnostic: %+v", result.Diagnostics)
	}
	if result.Diagnostics["dataset_mode"] != "train" {
		t.Fatalf("missing dataset mode diagnostic: %+v", result.Diagnostics)
	}
	if result.Diagnostics["frame"] != 81 {
		t.Fatalf("expected frame 81 diagnostic, got %v", result.Diagnostics["frame"])
	}
	if _, ok := result.Diagnostics["episode_id"].(string); !ok {
		t.Fatalf("missing episode id diagnostic: %+v", result.Diagnostics)
	}
	if result.Diagnostics["target_alignment_counter"] != 0 {
		t.Fatalf("expected zero alignment counter on the start lane, got %v",
			result.Diagnostics["target_alignment_counter"])
	}
}

// degenerateLane reports itself as its own neighbor in both
// directions, the pathological lane graph where start and target
// identity coincide.
type degenerateLane struct {
	center model.Position
}

func (l degenerateLane) ID() string                  { return "loop" }
func (l degenerateLane) CenterPoint() model.Position { return l.center }
func (l degenerateLane) Heading() float64            { return 0 }
func (l degenerateLane) Neighbor(model.Direction) (lanegraph.Lane, bool) {
	return l, true
}

type degenerateGraph struct{}

func (degenerateGraph) LaneAt(pos model.Position) (lanegraph.Lane, bool) {
	return degenerateLane{center: model.Position{X: pos.X, Y: 0}}, true
}

func TestDualOccupancyKeepsManeuverCommandAndAllowsSuccess(t *testing.T) {
	instant := trainInstant(t, 100)
	trajectory := &stubTrajectory{
		ego: model.VehicleState{ID: instant.VehicleID, Pose: model.Pose{}, Speed: 5},
	}

	s, err := New(Config{
		Instants:        []model.ManeuverInstant{instant},
		Mode:            model.Train,
		Trajectory:      trajectory,
		Graph:           degenerateGraph{},
		NewMaterializer: func() (TrafficMaterializer, error) { return &stubMaterializer{}, nil },
		NewStuckMonitor: func(time.Duration) (StuckMonitor, error) { return &stubMonitor{}, nil },
		Rand:            rand.New(rand.NewSource(1)),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new scenario: %v", err)
	}

	agent := &fakeAgent{}
	if err := s.Reset(agent); err != nil {
		t.Fatalf("reset: %v", err)
	}

	var last StepResult
	for i := 0; i < AlignmentFrames; i++ {
		last, err = s.Step(agent)
		if err != nil {
			t.Fatalf("step %d: %v", i+1, err)
		}
		// Start-lane occupancy takes precedence for the advisory even
		// though the same lane is also the target.
		if last.Command != model.ChangeLeft {
			t.Fatalf("expected maneuver command under dual occupancy, got %s", last.Command)
		}
	}
	if !last.Done || last.Reward != 1 {
		t.Fatalf("expected aligned success under dual occupancy, got done=%v reward=%f", last.Done, last.Reward)
	}
}
