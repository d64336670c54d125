package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daytrip/daytrip/internal/place"
	"github.com/daytrip/daytrip/internal/planner"
)

// poolFile is a place pool on disk. The requirement is optional and is
// overridden by command-line flags.
type poolFile struct {
	Requirement planner.Requirement `json:"requirement" yaml:"requirement"`
	Places      []place.Record      `json:"places" yaml:"places"`
}

// loadPool reads a YAML or JSON place pool. The file is either a mapping
// with a places key or a bare list of places. JSON is chosen by extension.
func loadPool(path string) (*poolFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read place pool: %w", err)
	}

	isJSON := strings.EqualFold(filepath.Ext(path), ".json")
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errors.New("place pool is empty")
	}

	var pool poolFile
	if strings.HasPrefix(trimmed, "[") || (!isJSON && strings.HasPrefix(trimmed, "-")) {
		err = unmarshal(isJSON, data, &pool.Places)
	} else {
		err = unmarshal(isJSON, data, &pool)
	}
	if err != nil {
		return nil, fmt.Errorf("parse place pool %s: %w", path, err)
	}
	if len(pool.Places) == 0 {
		return nil, fmt.Errorf("place pool %s has no places", path)
	}
	return &pool, nil
}

func unmarshal(isJSON bool, data []byte, v interface{}) error {
	if isJSON {
		return json.Unmarshal(data, v)
	}
	return yaml.Unmarshal(data, v)
}
