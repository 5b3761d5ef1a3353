package replay

import (
	"laneval/internal/lanegraph"
	"laneval/internal/model"
)

// IndexInstants scans every segment of a recording against the lane
// graph and emits one ManeuverInstant per detected lane change: a
// vehicle whose lane identity switches to a neighbor of its previous
// lane between consecutive frames. FrameStart is the first frame on
// the new lane. Off-road frames break the vehicle's lane history
// instead of producing spurious instants.
func IndexInstants(rec *Recording, graph lanegraph.Graph) []model.ManeuverInstant {
	var instants []model.ManeuverInstant
	for _, segment := range rec.Segments() {
		instants = append(instants, indexSegment(rec, graph, segment)...)
	}
	return instants
}

func indexSegment(rec *Recording, graph lanegraph.Graph, segment string) []model.ManeuverInstant {
	var instants []model.ManeuverInstant
	previous := make(map[int]lanegraph.Lane)

	for frame := 0; frame < rec.FrameCount(segment); frame++ {
		states := rec.segments[segment][frame]
		seen := make(map[int]bool, len(states))

		for _, state := range states {
			seen[state.ID] = true
			lane, ok := graph.LaneAt(state.Pose.Position)
			if !ok {
				delete(previous, state.ID)
				continue
			}
			before, had := previous[state.ID]
			previous[state.ID] = lane
			if !had || before.ID() == lane.ID() {
				continue
			}
			command, ok := neighborCommand(before, lane)
			if !ok {
				// Jumped more than one lane between frames: not a
				// scoreable single lane change.
				continue
			}
			instants = append(instants, model.ManeuverInstant{
				Segment:    segment,
				FrameStart: frame,
				VehicleID:  state.ID,
				Command:    command,
			})
		}

		for id := range previous {
			if !seen[id] {
				delete(previous, id)
			}
		}
	}
	return instants
}

func neighborCommand(from, to lanegraph.Lane) (model.Command, bool) {
	if left, ok := from.Neighbor(model.Left); ok && left.ID() == to.ID() {
		return model.ChangeLeft, true
	}
	if right, ok := from.Neighbor(model.Right); ok && right.ID() == to.ID() {
		return model.ChangeRight, true
	}
	return model.LaneFollow, false
}
