package replay

import (
	"fmt"
	"sort"

	"laneval/internal/model"
)

// Recording is an in-memory trajectory source: per-segment vehicle
// states decoded frame by frame. Replay is deterministic for a given
// segment and frame seed.
type Recording struct {
	segments map[string][][]model.VehicleState

	segment string
	cursor  int
	active  bool
}

func NewRecording() *Recording {
	return &Recording{segments: make(map[string][][]model.VehicleState)}
}

// AppendFrame adds one decoded frame to the end of a segment.
func (r *Recording) AppendFrame(segment string, states []model.VehicleState) {
	r.segments[segment] = append(r.segments[segment], states)
}

// Segments lists recorded segment names in stable order.
func (r *Recording) Segments() []string {
	names := make([]string, 0, len(r.segments))
	for name := range r.segments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FrameCount reports the number of recorded frames for a segment.
func (r *Recording) FrameCount(segment string) int {
	return len(r.segments[segment])
}

// Reset positions the replay cursor so the next Step returns frame+1.
// Seeding with frame -1 replays the segment from its first frame.
func (r *Recording) Reset(segment string, frame int) error {
	frames, ok := r.segments[segment]
	if !ok {
		return fmt.Errorf("unknown segment: %s", segment)
	}
	if frame < -1 {
		frame = -1
	}
	if frame >= len(frames) {
		return fmt.Errorf("segment %s has %d frames, cannot seed at %d", segment, len(frames), frame)
	}
	r.segment = segment
	r.cursor = frame
	r.active = true
	return nil
}

// Step advances one frame and returns every vehicle state recorded for
// it.
func (r *Recording) Step() ([]model.VehicleState, error) {
	if !r.active {
		return nil, fmt.Errorf("recording is not reset")
	}
	frames := r.segments[r.segment]
	if r.cursor+1 >= len(frames) {
		return nil, fmt.Errorf("segment %s exhausted at frame %d", r.segment, r.cursor)
	}
	r.cursor++
	return frames[r.cursor], nil
}

// Frame is the index of the most recently stepped frame.
func (r *Recording) Frame() int {
	return r.cursor
}
