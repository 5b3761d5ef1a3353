package main

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	api "laneval/pkg/laneval"
)

// loadOrDefaultRunRequest reads a YAML run config when a path is
// given, or returns a zero request so the client's defaults apply.
func loadOrDefaultRunRequest(path string) (api.RunRequest, error) {
	if path == "" {
		return api.RunRequest{}, nil
	}
	return loadRunRequest(path)
}

func loadRunRequest(path string) (api.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.RunRequest{}, err
	}

	var req api.RunRequest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&req); err != nil {
		return api.RunRequest{}, fmt.Errorf("parse run config %s: %w", path, err)
	}
	return req, nil
}
