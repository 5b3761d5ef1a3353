package scenario

import (
	"math"

	"laneval/internal/geom"
	"laneval/internal/lanegraph"
	"laneval/internal/model"
)

const (
	// CrosstrackTolerance is the maximum planar distance in meters
	// from the target lane centerline that still counts as aligned.
	CrosstrackTolerance = 0.3
	// YawToleranceDeg is the maximum heading error against the target
	// lane, in degrees. Converted to radians for the comparison.
	YawToleranceDeg = 10.0
	// AlignmentFrames is the debounce window: alignment must hold for
	// this many consecutive frames before the maneuver counts as
	// complete. A single aligned sample is telemetry noise; ten frames
	// at the fixed simulation step rejects transient pass-throughs of
	// the target lane.
	AlignmentFrames = 10
)

// alignmentDetector accumulates consecutive aligned frames against the
// target lane. The counter is reset to exactly zero on the first
// non-aligned frame; it never decays.
type alignmentDetector struct {
	counter int
}

// check evaluates one frame of target-lane alignment and reports
// whether the debounce window just completed. It fires exactly once,
// on the frame the counter reaches AlignmentFrames.
func (a *alignmentDetector) check(pose model.Pose, lane lanegraph.Lane) bool {
	crosstrack := geom.PlanarDistance(pose.Position, lane.CenterPoint())
	yawError := math.Abs(geom.NormalizeAngle(pose.Yaw - lane.Heading()))

	if crosstrack < CrosstrackTolerance && yawError < geom.DegToRad(YawToleranceDeg) {
		a.counter++
	} else {
		a.counter = 0
	}
	return a.counter == AlignmentFrames
}

func (a *alignmentDetector) reset() {
	a.counter = 0
}
