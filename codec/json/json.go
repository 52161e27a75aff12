// Package jsoncodec implements raft.Codec using encoding/json.
package jsoncodec

import (
	"encoding/json"

	"github.com/raftlabs/raftcore"
)

// Codec marshals raft.Message values as JSON. It has no state, so the
// zero value is ready to use.
type Codec struct{}

func (Codec) Encode(m raft.Message) ([]byte, error) {
	return json.Marshal(m)
}

func (Codec) Decode(b []byte) (raft.Message, error) {
	var m raft.Message
	if err := json.Unmarshal(b, &m); err != nil {
		return raft.Message{}, err
	}
	return m, nil
}
