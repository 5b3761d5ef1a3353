package scenario

import (
	"time"

	"laneval/internal/model"
)

// TrajectorySource replays a recorded traffic segment frame by frame.
// Reset seeds the replay cursor; Step advances one fixed time increment
// and returns every vehicle state decoded for that frame. Given the
// same segment and frame seed the sequence must be deterministic.
type TrajectorySource interface {
	Reset(segment string, frame int) error
	Step() ([]model.VehicleState, error)
	// Frame is the index of the most recently stepped frame.
	Frame() int
}

// TrafficMaterializer mirrors replayed background vehicles into the
// live simulator. The ego vehicle's recorded twin is excluded by the
// caller. One materializer is owned per episode and must be closed
// before the next episode acquires its own.
type TrafficMaterializer interface {
	Step(states []model.VehicleState) error
	Close() error
}

// StuckMonitor watches the controlled agent for timeout, stuck,
// collision and off-road conditions, folded into a single should-stop
// signal polled once per frame.
type StuckMonitor interface {
	ShouldStop(pose model.Pose) bool
	Close() error
}

// MaterializerFactory builds the per-episode traffic materializer.
type MaterializerFactory func() (TrafficMaterializer, error)

// MonitorFactory builds the per-episode stuck monitor with the episode
// timeout budget.
type MonitorFactory func(timeout time.Duration) (StuckMonitor, error)

// AgentHandle is the controlled vehicle as seen by the evaluation
// core: pose feedback each frame, plus placement at episode reset.
type AgentHandle interface {
	Pose() model.Pose
	SetPose(pose model.Pose)
	// SetVelocity seeds the planar velocity in meters per second.
	SetVelocity(vx, vy float64)
}
