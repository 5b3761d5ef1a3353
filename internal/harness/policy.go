package harness

import (
	"laneval/internal/lanegraph"
	"laneval/internal/model"
	"laneval/internal/scenario"
)

// Policy decides the agent's next pose each frame from the previous
// step's arbitration result. Next sees the zero StepResult on the
// first frame of an episode, before any advisory has been issued.
type Policy interface {
	Reset(start model.Pose)
	Next(last scenario.StepResult) model.Pose
}

// LaneChangePolicy is a scripted kinematic driver: constant forward
// speed, lateral drift while a lane-change advisory is active, then
// settling onto the current lane centerline. It executes the maneuver
// well enough to exercise the full success path without any learning.
type LaneChangePolicy struct {
	Graph       lanegraph.Graph
	Speed       float64
	LateralRate float64

	pose  model.Pose
	drift float64
}

func (p *LaneChangePolicy) Reset(start model.Pose) {
	p.pose = start
	p.drift = 0
}

func (p *LaneChangePolicy) Next(last scenario.StepResult) model.Pose {
	p.pose.Position.X += p.Speed * scenario.StepDuration.Seconds()
	p.pose.Yaw = 0

	switch last.Command {
	case model.ChangeLeft:
		p.drift = p.LateralRate
	case model.ChangeRight:
		p.drift = -p.LateralRate
	default:
		p.drift = 0
		p.settle()
		return p.pose
	}

	p.pose.Position.Y += p.drift
	return p.pose
}

// settle pulls the agent toward the centerline of whatever lane it is
// on, clamped to the lateral rate per frame.
func (p *LaneChangePolicy) settle() {
	lane, ok := p.Graph.LaneAt(p.pose.Position)
	if !ok {
		return
	}
	dy := lane.CenterPoint().Y - p.pose.Position.Y
	if dy > p.LateralRate {
		dy = p.LateralRate
	} else if dy < -p.LateralRate {
		dy = -p.LateralRate
	}
	p.pose.Position.Y += dy
}
