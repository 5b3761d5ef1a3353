package replay

import (
	"math"

	"laneval/internal/lanegraph"
	"laneval/internal/model"
	"laneval/internal/scenario"
)

// SyntheticVehicle scripts one vehicle of a generated segment: constant
// speed along the road, with an optional linear drift from Lane to
// TargetLane starting at ChangeFrame and lasting ChangeFrames.
type SyntheticVehicle struct {
	ID           int
	Lane         int
	TargetLane   int
	ChangeFrame  int
	ChangeFrames int
	StartX       float64
	Speed        float64
}

// AppendSyntheticSegment generates frames for a scripted segment on a
// straight road and appends them to the recording. It substitutes for
// real recorded traffic in the CLI demo and tests.
func AppendSyntheticSegment(rec *Recording, road *lanegraph.StraightRoad, segment string, frames int, vehicles []SyntheticVehicle) {
	dt := scenario.StepDuration.Seconds()
	for frame := 0; frame < frames; frame++ {
		states := make([]model.VehicleState, 0, len(vehicles))
		for _, v := range vehicles {
			x := v.StartX + v.Speed*dt*float64(frame)
			y := syntheticY(road, v, frame)
			yawNext := syntheticY(road, v, frame+1)
			yaw := math.Atan2(yawNext-y, v.Speed*dt)
			states = append(states, model.VehicleState{
				ID:    v.ID,
				Pose:  model.Pose{Position: model.Position{X: x, Y: y}, Yaw: yaw},
				Speed: v.Speed,
			})
		}
		rec.AppendFrame(segment, states)
	}
}

func syntheticY(road *lanegraph.StraightRoad, v SyntheticVehicle, frame int) float64 {
	from := road.LaneCenterY(v.Lane)
	if v.TargetLane == v.Lane || v.ChangeFrames <= 0 || frame < v.ChangeFrame {
		return from
	}
	to := road.LaneCenterY(v.TargetLane)
	elapsed := frame - v.ChangeFrame
	if elapsed >= v.ChangeFrames {
		return to
	}
	return from + (to-from)*float64(elapsed)/float64(v.ChangeFrames)
}
