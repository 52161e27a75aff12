// Package boltstorage implements raft.Storage on top of a bbolt file,
// checkpointing the durable parts of RoleState (term, vote, log) as a
// single JSON blob under one key. A single key is sufficient here: the
// whole point of SaveState is to make one atomic fsync'd write per
// persist, and bbolt's transaction already gives us that for free without
// needing per-field buckets.
package boltstorage

import (
	"encoding/json"
	"fmt"

	"github.com/raftlabs/raftcore"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketName = []byte("raft_state")
	stateKey   = []byte("state")
)

type persistedState struct {
	Term     raft.Term       `json:"term"`
	VotedFor *raft.NodeId    `json:"voted_for,omitempty"`
	Entries  []raft.LogEntry `json:"entries"`
}

// Storage is a bbolt-backed raft.Storage.
type Storage struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and
// ensures the state bucket exists.
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstorage: opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstorage: creating bucket: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases the underlying database file.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) SaveState(term raft.Term, votedFor *raft.NodeId, entries []raft.LogEntry) error {
	blob, err := json.Marshal(persistedState{Term: term, VotedFor: votedFor, Entries: entries})
	if err != nil {
		return fmt.Errorf("boltstorage: marshaling state: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(stateKey, blob)
	})
}

func (s *Storage) LoadState() (raft.Term, *raft.NodeId, []raft.LogEntry, error) {
	var ps persistedState
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(stateKey)
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &ps)
	})
	if err != nil {
		return 0, nil, nil, fmt.Errorf("boltstorage: loading state: %w", err)
	}
	if !found {
		return 0, nil, nil, nil
	}
	return ps.Term, ps.VotedFor, ps.Entries, nil
}
