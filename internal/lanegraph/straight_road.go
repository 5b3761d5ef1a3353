package lanegraph

import (
	"fmt"

	"laneval/internal/model"
)

// StraightRoad is an in-memory lane graph for a road of parallel lanes
// running along the +X axis. Lane 0 is the rightmost lane; higher
// indices sit further left (+Y). It backs the CLI demo and tests in
// place of a full map service.
type StraightRoad struct {
	lanes     int
	laneWidth float64
	// Y coordinate of lane 0's centerline.
	baseY float64
}

func NewStraightRoad(lanes int, laneWidth, baseY float64) (*StraightRoad, error) {
	if lanes <= 0 {
		return nil, fmt.Errorf("straight road needs at least one lane, got %d", lanes)
	}
	if laneWidth <= 0 {
		return nil, fmt.Errorf("lane width must be positive, got %f", laneWidth)
	}
	return &StraightRoad{lanes: lanes, laneWidth: laneWidth, baseY: baseY}, nil
}

// LaneCenterY returns the centerline Y of the given lane index.
func (r *StraightRoad) LaneCenterY(index int) float64 {
	return r.baseY + float64(index)*r.laneWidth
}

func (r *StraightRoad) LaneAt(pos model.Position) (Lane, bool) {
	for index := 0; index < r.lanes; index++ {
		center := r.LaneCenterY(index)
		if pos.Y >= center-r.laneWidth/2 && pos.Y < center+r.laneWidth/2 {
			return straightLane{road: r, index: index, station: pos.X}, true
		}
	}
	return nil, false
}

// straightLane is a waypoint handle on a StraightRoad: lane index plus
// the longitudinal station of the originating query.
type straightLane struct {
	road    *StraightRoad
	index   int
	station float64
}

func (l straightLane) ID() string {
	return fmt.Sprintf("lane-%d", l.index)
}

func (l straightLane) CenterPoint() model.Position {
	return model.Position{X: l.station, Y: l.road.LaneCenterY(l.index)}
}

func (l straightLane) Heading() float64 {
	return 0
}

func (l straightLane) Neighbor(d model.Direction) (Lane, bool) {
	// Heading is +X, so left is +Y, toward higher lane indices.
	index := l.index
	switch d {
	case model.Left:
		index++
	case model.Right:
		index--
	}
	if index < 0 || index >= l.road.lanes {
		return nil, false
	}
	return straightLane{road: l.road, index: index, station: l.station}, true
}
