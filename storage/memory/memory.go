// Package memorystorage implements raft.Storage with no durability at
// all, for tests and in-process simulations where restart-survival isn't
// exercised.
package memorystorage

import (
	"sync"

	"github.com/raftlabs/raftcore"
)

// Storage is a mutex-guarded in-memory implementation of raft.Storage.
type Storage struct {
	mu       sync.Mutex
	term     raft.Term
	votedFor *raft.NodeId
	entries  []raft.LogEntry
}

// New returns an empty Storage, as if no state had ever been persisted.
func New() *Storage {
	return &Storage{}
}

func (s *Storage) SaveState(term raft.Term, votedFor *raft.NodeId, entries []raft.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term = term
	if votedFor != nil {
		v := *votedFor
		s.votedFor = &v
	} else {
		s.votedFor = nil
	}
	s.entries = append([]raft.LogEntry(nil), entries...)
	return nil
}

func (s *Storage) LoadState() (raft.Term, *raft.NodeId, []raft.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var votedFor *raft.NodeId
	if s.votedFor != nil {
		v := *s.votedFor
		votedFor = &v
	}
	entries := append([]raft.LogEntry(nil), s.entries...)
	return s.term, votedFor, entries, nil
}
