package scenario

import (
	"math"

	"laneval/internal/geom"
	"laneval/internal/lanegraph"
	"laneval/internal/model"
)

// Checkpoints is the number of equal subdivisions of the start-to-target
// centerline distance used to discretize progress.
const Checkpoints = 10

// progressScorer converts physical motion between the start and target
// lane centerlines into a discretized progress fraction and reports the
// frame-to-frame delta.
//
// The total and per-checkpoint distances are fixed on the first
// measurement and never recomputed within an episode: measuring against
// a moving reference would let ordinary drift manufacture phantom
// negative progress swings.
type progressScorer struct {
	direction    model.Direction
	startLaneID  string
	targetLaneID string

	totalDistance      float64
	checkpointDistance float64
	initialized        bool

	previousProgress float64
}

func newProgressScorer(direction model.Direction, startLaneID, targetLaneID string) *progressScorer {
	return &progressScorer{
		direction:    direction,
		startLaneID:  startLaneID,
		targetLaneID: targetLaneID,
	}
}

// delta scores one frame. lane is the agent's current lane handle, or
// nil when the agent is off the mapped network. targetAtReset is the
// target lane handle resolved at episode reset, used only to fix the
// distance snapshot on the first measurement.
func (p *progressScorer) delta(pos model.Position, lane lanegraph.Lane, targetAtReset lanegraph.Lane) float64 {
	if !p.initialized {
		p.totalDistance = geom.PlanarDistance(pos, targetAtReset.CenterPoint())
		p.checkpointDistance = p.totalDistance / Checkpoints
		p.initialized = true
	}

	if lane == nil {
		return 0
	}

	// Start-lane pairing takes precedence when a degenerate lane graph
	// reports the same identity for both lanes.
	var startWaypoint, targetWaypoint lanegraph.Lane
	switch lane.ID() {
	case p.startLaneID:
		neighbor, ok := lane.Neighbor(p.direction)
		if !ok {
			return 0
		}
		startWaypoint, targetWaypoint = lane, neighbor
	case p.targetLaneID:
		neighbor, ok := lane.Neighbor(p.direction.Opposite())
		if !ok {
			return 0
		}
		startWaypoint, targetWaypoint = neighbor, lane
	default:
		// Off both expected lanes: no progress, no state mutation.
		return 0
	}

	if p.checkpointDistance == 0 {
		return 0
	}

	distanceFromStart := geom.PlanarDistance(pos, startWaypoint.CenterPoint())
	distanceFromTarget := geom.PlanarDistance(pos, targetWaypoint.CenterPoint())

	distanceTraveled := p.totalDistance - distanceFromTarget
	checkpointsPassed := math.Floor(distanceTraveled / p.checkpointDistance)

	// Past the target centerline the instantaneous distance-from-target
	// grows again; without this clamp an overshooting agent would keep
	// accruing progress.
	passedTargetCenterline := distanceFromStart > p.totalDistance &&
		distanceFromStart > distanceFromTarget

	progress := 0.0
	if !passedTargetCenterline {
		progress = checkpointsPassed / Checkpoints
	}

	change := progress - p.previousProgress
	p.previousProgress = progress
	return change
}
