package dataset

import (
	"errors"
	"fmt"
	"math/rand"

	"laneval/internal/model"
)

// ErrEmptyPartition reports an evaluation mode with zero maneuver
// instants. This is a setup bug surfaced at construction, not a
// runtime condition.
var ErrEmptyPartition = errors.New("no maneuver instants in active partition")

// Selector owns the active partition's maneuver instants and draws one
// uniformly at random per episode reset.
type Selector struct {
	instants []model.ManeuverInstant
	mode     model.DatasetMode
	rng      *rand.Rand
}

// NewSelector filters instants into the partition for mode and returns
// a selector over it. rng is required so episode sequences stay
// reproducible under a caller-controlled seed.
func NewSelector(instants []model.ManeuverInstant, mode model.DatasetMode, splitFraction float64, rng *rand.Rand) (*Selector, error) {
	if rng == nil {
		return nil, errors.New("selector requires a random source")
	}
	kept := Filter(instants, mode, splitFraction)
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: mode=%s instants=%d", ErrEmptyPartition, mode, len(instants))
	}
	return &Selector{instants: kept, mode: mode, rng: rng}, nil
}

// Draw picks one maneuver instant uniformly at random.
func (s *Selector) Draw() model.ManeuverInstant {
	return s.instants[s.rng.Intn(len(s.instants))]
}

func (s *Selector) Len() int {
	return len(s.instants)
}

func (s *Selector) Mode() model.DatasetMode {
	return s.mode
}

// StartOffset is the replay frame from which the simulation is seeded:
// framesBefore frames ahead of the recorded maneuver, clamped at the
// start of the recording.
func StartOffset(instant model.ManeuverInstant, framesBefore int) int {
	offset := instant.FrameStart - framesBefore
	if offset < 0 {
		return 0
	}
	return offset
}
