package replay

import (
	"time"

	"laneval/internal/geom"
	"laneval/internal/model"
	"laneval/internal/scenario"
)

const (
	// stuckWindow is how long the agent may stay essentially
	// motionless before the monitor fires.
	stuckWindow = 3 * time.Second
	// minFrameTravel is the per-frame displacement below which the
	// agent counts as motionless.
	minFrameTravel = 0.01
)

// EarlyStopMonitor realizes the stuck-monitor contract for offline
// runs: it fires when the episode timeout budget is exhausted or when
// the agent has not moved for stuckWindow. Collision and off-road
// detection belong to the live simulator and are not reproduced here.
type EarlyStopMonitor struct {
	framesLeft  int
	stuckFrames int
	stuckCount  int
	lastPos     model.Position
	observed    bool
	closed      bool
}

func NewEarlyStopMonitor(timeout time.Duration) *EarlyStopMonitor {
	return &EarlyStopMonitor{
		framesLeft:  int(timeout / scenario.StepDuration),
		stuckFrames: int(stuckWindow / scenario.StepDuration),
	}
}

func (m *EarlyStopMonitor) ShouldStop(pose model.Pose) bool {
	if m.closed {
		return false
	}

	m.framesLeft--
	if m.framesLeft < 0 {
		return true
	}

	if m.observed {
		if geom.PlanarDistance(pose.Position, m.lastPos) < minFrameTravel {
			m.stuckCount++
		} else {
			m.stuckCount = 0
		}
	}
	m.lastPos = pose.Position
	m.observed = true

	return m.stuckCount >= m.stuckFrames
}

func (m *EarlyStopMonitor) Close() error {
	m.closed = true
	return nil
}

// NullMaterializer satisfies the traffic materializer contract for
// runs without a live simulator attached.
type NullMaterializer struct{}

func (NullMaterializer) Step([]model.VehicleState) error { return nil }
func (NullMaterializer) Close() error                    { return nil }
