package dataset

import (
	"github.com/cespare/xxhash/v2"

	"laneval/internal/model"
)

// DefaultSplitFraction is the train share of the train/validation split.
const DefaultSplitFraction = 0.8

// Partition deterministically assigns a maneuver instant to train or
// validation. It is a pure function of the instant's identity string:
// no process seed, no run-order dependence, so re-indexing the same
// dataset reproduces the same split. Hash collisions may skew the
// ratio slightly and are never corrected.
func Partition(instant model.ManeuverInstant, splitFraction float64) model.DatasetMode {
	bucket := xxhash.Sum64String(instant.Identity()) % 100
	if bucket < uint64(splitFraction*100) {
		return model.Train
	}
	return model.Validation
}

// Filter returns the instants assigned to mode, preserving input order.
func Filter(instants []model.ManeuverInstant, mode model.DatasetMode, splitFraction float64) []model.ManeuverInstant {
	var kept []model.ManeuverInstant
	for _, instant := range instants {
		if Partition(instant, splitFraction) == mode {
			kept = append(kept, instant)
		}
	}
	return kept
}
