package models

import "encoding/json"

// SnapshotEnvelope is the wrapped form of a snapshot: {"nodes": [...]}.
type SnapshotEnvelope struct {
	Nodes []RawNode `json:"nodes"`
}

// DecodeSnapshot accepts either a bare array of nodes or an envelope.
func DecodeSnapshot(data []byte) ([]RawNode, error) {
	var nodes []RawNode
	if err := json.Unmarshal(data, &nodes); err == nil {
		return nodes, nil
	}

	var env SnapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return env.Nodes, nil
}
