package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laneval/internal/model"
)

func TestInstantCodecRoundTrip(t *testing.T) {
	instants := []model.ManeuverInstant{
		{Segment: "i80-00", FrameStart: 120, VehicleID: 9, Command: model.ChangeLeft},
	}
	payload, err := EncodeInstants(instants)
	require.NoError(t, err)

	decoded, err := DecodeInstants(payload)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, instants[0].Identity(), decoded[0].Identity())
	assert.Equal(t, CurrentSchemaVersion, decoded[0].SchemaVersion)
}

func TestDecodeInstantsRejectsVersionMismatch(t *testing.T) {
	payload := []byte(`[{"schema_version":99,"codec_version":1,"segment":"i80-00","frame_start":1,"vehicle_id":2,"command":1}]`)
	_, err := DecodeInstants(payload)
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestEpisodeCodecStampsVersions(t *testing.T) {
	record := model.EpisodeRecord{EpisodeID: "ep-1", RunID: "run-1", Succeeded: true, TotalReward: 1.2}
	payload, err := EncodeEpisode(record)
	require.NoError(t, err)

	decoded, err := DecodeEpisode(payload)
	require.NoError(t, err)
	assert.Equal(t, "ep-1", decoded.EpisodeID)
	assert.Equal(t, CurrentCodecVersion, decoded.CodecVersion)
	assert.True(t, decoded.Succeeded)
}
