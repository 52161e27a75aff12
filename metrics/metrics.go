// Package metrics exposes a raft Server's state as Prometheus gauges.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/raftlabs/raftcore"
)

// Registry holds the gauges for one node. Role is exported as a gauge of
// its numeric raft.Role value (0=Follower, 1=Candidate, 2=Leader) rather
// than three separate booleans, since only one role is ever active.
type Registry struct {
	term        prometheus.Gauge
	role        prometheus.Gauge
	commitIndex prometheus.Gauge
	lastApplied prometheus.Gauge
	nextIndex   *prometheus.GaugeVec
	matchIndex  *prometheus.GaugeVec
}

// NewRegistry creates and registers this node's gauges against reg.
func NewRegistry(reg prometheus.Registerer, nodeID raft.NodeId) *Registry {
	constLabels := prometheus.Labels{"node_id": fmt.Sprintf("%d", nodeID)}
	r := &Registry{
		term: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "raft_term", Help: "Current term.", ConstLabels: constLabels,
		}),
		role: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "raft_role", Help: "Current role (0=Follower, 1=Candidate, 2=Leader).", ConstLabels: constLabels,
		}),
		commitIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "raft_commit_index", Help: "Highest log index known committed.", ConstLabels: constLabels,
		}),
		lastApplied: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "raft_last_applied", Help: "Highest log index applied to the state machine.", ConstLabels: constLabels,
		}),
		nextIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "raft_peer_next_index", Help: "Leader's next_index for a peer.", ConstLabels: constLabels,
		}, []string{"peer"}),
		matchIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "raft_peer_match_index", Help: "Leader's match_index for a peer.", ConstLabels: constLabels,
		}, []string{"peer"}),
	}
	reg.MustRegister(r.term, r.role, r.commitIndex, r.lastApplied, r.nextIndex, r.matchIndex)
	return r
}

// Observe updates every gauge from a snapshot.
func (r *Registry) Observe(s raft.StateSnapshot) {
	r.term.Set(float64(s.CurrentTerm))
	r.role.Set(float64(s.Role))
	r.commitIndex.Set(float64(s.CommitIndex))
	r.lastApplied.Set(float64(s.LastApplied))
	for peer, ps := range s.Peers {
		label := fmt.Sprintf("%d", peer)
		r.nextIndex.WithLabelValues(label).Set(float64(ps.NextIndex))
		r.matchIndex.WithLabelValues(label).Set(float64(ps.MatchIndex))
	}
}
