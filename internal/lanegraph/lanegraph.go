package lanegraph

import (
	"fmt"

	"laneval/internal/model"
)

// Lane is an opaque waypoint-style handle onto the road network: the
// identity of the lane containing a query position, the centerline
// point nearest that position, and the lane heading there. Equality of
// lanes is equality of ID.
type Lane interface {
	ID() string
	CenterPoint() model.Position
	Heading() float64
	// Neighbor returns the adjacent lane at the same longitudinal
	// station, or false when no lane exists in that direction.
	Neighbor(d model.Direction) (Lane, bool)
}

// Graph answers nearest-lane queries against the mapped road network.
// LaneAt returns false when the position is off the mapped network.
type Graph interface {
	LaneAt(pos model.Position) (Lane, bool)
}

// Resolver is the thin adapter the evaluation core uses for lane
// geometry: start/target resolution at reset, current-lane lookup per
// frame.
type Resolver struct {
	graph Graph
}

func NewResolver(graph Graph) *Resolver {
	return &Resolver{graph: graph}
}

// LaneAt resolves the lane containing pos. A false result means the
// position is off the mapped road network, which the caller treats as
// "not on either expected lane" rather than an error.
func (r *Resolver) LaneAt(pos model.Position) (Lane, bool) {
	return r.graph.LaneAt(pos)
}

// TargetLane resolves the maneuver's target lane: the neighbor of the
// start lane in the commanded direction. Missing neighbors are a setup
// error because the maneuver cannot be scored without its target.
func (r *Resolver) TargetLane(start Lane, cmd model.Command) (Lane, error) {
	dir, err := model.ManeuverDirection(cmd)
	if err != nil {
		return nil, err
	}
	target, ok := start.Neighbor(dir)
	if !ok {
		return nil, fmt.Errorf("lane %s has no %s neighbor", start.ID(), dir)
	}
	return target, nil
}
