// Package deltalog reads and writes the delta transaction log of a table:
// JSON commit files and parquet checkpoints under `_delta_log/`, replayed
// into an in-memory snapshot of table state.
package deltalog

import (
	"encoding/json"
	"fmt"
)

type (
	// Action is one line of a commit file. Exactly one field is set.
	Action struct {
		CommitInfo CommitInfo `json:"commitInfo,omitempty"`
		Protocol   *Protocol  `json:"protocol,omitempty"`
		Metadata   *Metadata  `json:"metaData,omitempty"`
		Add        *Add       `json:"add,omitempty"`
		Remove     *Remove    `json:"remove,omitempty"`
		Txn        *Txn       `json:"txn,omitempty"`
	}

	Metadata struct {
		ID               string            `json:"id"`
		Name             string            `json:"name,omitempty"`
		Description      string            `json:"description,omitempty"`
		Format           Format            `json:"format"`
		SchemaString     string            `json:"schemaString"`
		PartitionColumns []string          `json:"partitionColumns"`
		Configuration    map[string]string `json:"configuration"`
		CreatedTime      int64             `json:"createdTime,omitempty"`
	}

	Format struct {
		Provider string            `json:"provider"`
		Options  map[string]string `json:"options,omitempty"`
	}

	Protocol struct {
		MinReaderVersion int `json:"minReaderVersion"`
		MinWriterVersion int `json:"minWriterVersion"`
	}

	Add struct {
		Path             string            `json:"path"`
		PartitionValues  map[string]string `json:"partitionValues"`
		Size             int64             `json:"size"`
		ModificationTime int64             `json:"modificationTime"`
		DataChange       bool              `json:"dataChange"`
		Stats            string            `json:"stats,omitempty"`
	}

	Remove struct {
		Path              string            `json:"path"`
		DeletionTimestamp int64             `json:"deletionTimestamp"`
		DataChange        bool              `json:"dataChange"`
		PartitionValues   map[string]string `json:"partitionValues,omitempty"`
		Size              int64             `json:"size,omitempty"`
	}

	// CommitInfo is free-form commit provenance; delta writers don't agree on
	// its shape so it stays a map.
	CommitInfo map[string]any

	Txn struct {
		AppID       string `json:"appId"`
		Version     int64  `json:"version"`
		LastUpdated int64  `json:"lastUpdated,omitempty"`
	}

	// Schema mirrors the JSON struct type stored in Metadata.SchemaString.
	Schema struct {
		Type   string        `json:"type"`
		Fields []SchemaField `json:"fields"`
	}

	SchemaField struct {
		Name string `json:"name"`
		// Type is a string for primitives and a nested object for
		// struct/array/map types
		Type     any            `json:"type"`
		Nullable bool           `json:"nullable"`
		Metadata map[string]any `json:"metadata"`
	}
)

// ParseSchema decodes a metadata schemaString.
func (m *Metadata) ParseSchema() (Schema, error) {
	var s Schema
	if err := json.Unmarshal([]byte(m.SchemaString), &s); err != nil {
		return s, fmt.Errorf("error in json.Unmarshal of schemaString: %w", err)
	}
	return s, nil
}

// MarshalCommit renders actions as a commit file: one JSON action per line.
func MarshalCommit(actions []Action) ([]byte, error) {
	var out []byte
	for _, a := range actions {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("error in json.Marshal: %w", err)
		}
		out = append(out, b...)
		out = append(out, '\n')
	}
	return out, nil
}

// UnmarshalCommit parses a commit file into its actions, skipping blank
// lines.
func UnmarshalCommit(data []byte) ([]Action, error) {
	var actions []Action
	start := 0
	for i := 0; i <= len(data); i++ {
		if i != len(data) && data[i] != '\n' {
			continue
		}
		line := data[start:i]
		start = i + 1
		if len(line) == 0 {
			continue
		}
		var a Action
		if err := json.Unmarshal(line, &a); err != nil {
			return nil, fmt.Errorf("error in json.Unmarshal of action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}
