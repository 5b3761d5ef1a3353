package harness

import "laneval/internal/model"

// SimAgent is an in-memory agent handle for offline runs: the policy
// moves it, the scenario reads it back. A live deployment would hand
// the scenario the simulator's vehicle instead.
type SimAgent struct {
	pose model.Pose
	vx   float64
	vy   float64
}

func (a *SimAgent) Pose() model.Pose        { return a.pose }
func (a *SimAgent) SetPose(pose model.Pose) { a.pose = pose }

func (a *SimAgent) SetVelocity(vx, vy float64) {
	a.vx = vx
	a.vy = vy
}

// Velocity reports the last seeded planar velocity.
func (a *SimAgent) Velocity() (vx, vy float64) {
	return a.vx, a.vy
}
