package raft_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	raft "github.com/raftlabs/raftcore"
	jsoncodec "github.com/raftlabs/raftcore/codec/json"
	memorystorage "github.com/raftlabs/raftcore/storage/memory"
	memorytransport "github.com/raftlabs/raftcore/transport/memory"
	"github.com/rs/zerolog"
)

func newCluster(t *testing.T, size int) ([]*raft.Server, func()) {
	t.Helper()
	hub := memorytransport.NewHub()
	servers := make([]*raft.Server, size)
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < size; i++ {
		id := raft.NodeId(i)
		net := hub.Node(id, size)
		cfg := raft.DefaultConfig(id, nil)
		cfg.Heartbeat = 5 * time.Millisecond
		cfg.ElectionTimeoutMin = 30 * time.Millisecond
		cfg.ElectionTimeoutMax = 60 * time.Millisecond

		srv, err := raft.NewServer(cfg, net, memorystorage.New(), jsoncodec.Codec{}, zerolog.Nop())
		require.NoError(t, err)
		servers[i] = srv
		go srv.Run(ctx)
	}

	return servers, cancel
}

func awaitLeader(t *testing.T, servers []*raft.Server, timeout time.Duration) *raft.Server {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, srv := range servers {
			snap, err := srv.ObserveState(context.Background())
			if err == nil && snap.Role == raft.Leader {
				return srv
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no leader elected within timeout")
	return nil
}

func TestClusterElectsALeader(t *testing.T) {
	servers, cancel := newCluster(t, 3)
	defer cancel()

	leader := awaitLeader(t, servers, 2*time.Second)
	require.NotNil(t, leader)
}

func TestSubmitOnLeaderCommits(t *testing.T) {
	servers, cancel := newCluster(t, 3)
	defer cancel()

	leader := awaitLeader(t, servers, 2*time.Second)

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	idx, err := leader.Submit(ctx, []byte("set x=1"))
	require.NoError(t, err)
	require.Equal(t, raft.Index(1), idx)
}

func TestSubmitOnFollowerReturnsNotLeader(t *testing.T) {
	servers, cancel := newCluster(t, 3)
	defer cancel()

	leader := awaitLeader(t, servers, 2*time.Second)

	var follower *raft.Server
	for _, srv := range servers {
		if srv != leader {
			follower = srv
			break
		}
	}
	require.NotNil(t, follower)

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	_, err := follower.Submit(ctx, []byte("set x=1"))
	require.Error(t, err)
	require.ErrorIs(t, err, raft.ErrNotLeader)
}
