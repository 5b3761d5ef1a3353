package storage

import (
	"context"

	"laneval/internal/model"
)

// Store persists indexed maneuver instants per dataset and the outcome
// records of evaluated episodes per run.
type Store interface {
	Init(ctx context.Context) error
	SaveInstants(ctx context.Context, dataset string, instants []model.ManeuverInstant) error
	GetInstants(ctx context.Context, dataset string) ([]model.ManeuverInstant, bool, error)
	SaveEpisode(ctx context.Context, record model.EpisodeRecord) error
	GetEpisodes(ctx context.Context, runID string) ([]model.EpisodeRecord, bool, error)
}
