// Package config loads a raftd node's settings from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/raftlabs/raftcore"
	"gopkg.in/yaml.v3"
)

// PeerConfig names one member of the cluster and the address this node
// should dial to reach it.
type PeerConfig struct {
	ID      raft.NodeId `yaml:"id"`
	Address string      `yaml:"address"`
}

// File is the on-disk shape of a raftd configuration file. Durations are
// strings ("150ms") rather than raw nanoseconds, since yaml.v3 doesn't
// unmarshal time.Duration from a duration-literal string on its own.
type File struct {
	NodeID             raft.NodeId  `yaml:"node_id"`
	ListenAddress      string       `yaml:"listen_address"`
	MetricsAddress     string       `yaml:"metrics_address"`
	DataDir            string       `yaml:"data_dir"`
	Peers              []PeerConfig `yaml:"peers"`
	Heartbeat          string       `yaml:"heartbeat"`
	ElectionTimeoutMin string       `yaml:"election_timeout_min"`
	ElectionTimeoutMax string       `yaml:"election_timeout_max"`
}

// Settings is a File that has been validated and had its durations
// parsed.
type Settings struct {
	NodeID             raft.NodeId
	ListenAddress      string
	MetricsAddress     string
	DataDir            string
	Peers              []PeerConfig
	Heartbeat          time.Duration
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	heartbeat, err := parseDurationOrDefault(f.Heartbeat, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config: heartbeat: %w", err)
	}
	emin, err := parseDurationOrDefault(f.ElectionTimeoutMin, 150*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config: election_timeout_min: %w", err)
	}
	emax, err := parseDurationOrDefault(f.ElectionTimeoutMax, 300*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config: election_timeout_max: %w", err)
	}

	s := &Settings{
		NodeID:             f.NodeID,
		ListenAddress:      f.ListenAddress,
		MetricsAddress:     f.MetricsAddress,
		DataDir:            f.DataDir,
		Peers:              f.Peers,
		Heartbeat:          heartbeat,
		ElectionTimeoutMin: emin,
		ElectionTimeoutMax: emax,
	}
	if err := s.RaftConfig().Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return s, nil
}

func parseDurationOrDefault(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// PeerAddrs returns the dialable address for every peer other than this
// node.
func (s *Settings) PeerAddrs() map[raft.NodeId]string {
	out := make(map[raft.NodeId]string, len(s.Peers))
	for _, p := range s.Peers {
		if p.ID == s.NodeID {
			continue
		}
		out[p.ID] = p.Address
	}
	return out
}

// RaftConfig translates Settings into a raft.Config.
func (s *Settings) RaftConfig() raft.Config {
	peerIDs := make([]raft.NodeId, 0, len(s.Peers))
	for _, p := range s.Peers {
		if p.ID != s.NodeID {
			peerIDs = append(peerIDs, p.ID)
		}
	}
	return raft.Config{
		NodeID:             s.NodeID,
		Peers:              peerIDs,
		Heartbeat:          s.Heartbeat,
		ElectionTimeoutMin: s.ElectionTimeoutMin,
		ElectionTimeoutMax: s.ElectionTimeoutMax,
	}
}
