package storage

import (
	"encoding/json"
	"errors"

	"laneval/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeInstants(instants []model.ManeuverInstant) ([]byte, error) {
	stamped := make([]model.ManeuverInstant, len(instants))
	copy(stamped, instants)
	for i := range stamped {
		stamped[i].VersionedRecord = currentVersion()
	}
	return json.Marshal(stamped)
}

func DecodeInstants(data []byte) ([]model.ManeuverInstant, error) {
	var instants []model.ManeuverInstant
	if err := json.Unmarshal(data, &instants); err != nil {
		return nil, err
	}
	for _, instant := range instants {
		if err := checkVersion(instant.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return instants, nil
}

func EncodeEpisode(record model.EpisodeRecord) ([]byte, error) {
	record.VersionedRecord = currentVersion()
	return json.Marshal(record)
}

func DecodeEpisode(data []byte) (model.EpisodeRecord, error) {
	var record model.EpisodeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.EpisodeRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.EpisodeRecord{}, err
	}
	return record, nil
}

func currentVersion() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}

func checkVersion(record model.VersionedRecord) error {
	if record.SchemaVersion != CurrentSchemaVersion || record.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
