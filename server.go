package raft

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Server wires RoleState/handlers/transitions to a Network, a Storage, a
// Codec, and a TimerService, and runs the single-threaded event loop that
// the rest of the package's pure logic is executed from.
type Server struct {
	cfg    Config
	state  *RoleState
	net    Network
	store  Storage
	codec  Codec
	timers *TimerService
	log    zerolog.Logger
	rng    *rand.Rand

	heartbeatKeys map[NodeId]TimerKey

	controlCh chan controlRequest
	inbound   chan inboundMessage
	netErr    chan error

	waitersMu sync.Mutex
	waiters   map[Index][]chan SubmitResult
}

type inboundMessage struct {
	from NodeId
	msg  Message
}

type controlRequest interface{ isControlRequest() }

type submitRequest struct {
	cmd   []byte
	reply chan SubmitResult
}

func (submitRequest) isControlRequest() {}

type stopRequest struct {
	done chan struct{}
}

func (stopRequest) isControlRequest() {}

type observeRequest struct {
	reply chan StateSnapshot
}

func (observeRequest) isControlRequest() {}

// SubmitResult is the outcome of a command that reached commitment, or the
// error that prevented it from doing so.
type SubmitResult struct {
	Index Index
	Err   error
}

// NewServer constructs a Server from a previously-persisted Storage state
// (or a fresh one if none exists) and validates cfg.
func NewServer(cfg Config, net Network, store Storage, codec Codec, log zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	term, votedFor, entries, err := store.LoadState()
	if err != nil {
		return nil, fmt.Errorf("raft: loading persisted state: %w", err)
	}

	state := NewRoleState(cfg.NodeID, net.NetworkSize())
	state.CurrentTerm = term
	state.VotedFor = votedFor
	state.Log.Restore(entries)

	return &Server{
		cfg:           cfg,
		state:         state,
		net:           net,
		store:         store,
		codec:         codec,
		timers:        NewTimerService(),
		log:           log.With().Uint64("node_id", uint64(cfg.NodeID)).Logger(),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(cfg.NodeID))),
		heartbeatKeys: map[NodeId]TimerKey{},
		controlCh:     make(chan controlRequest),
		inbound:       make(chan inboundMessage, 64),
		netErr:        make(chan error, 1),
		waiters:       map[Index][]chan SubmitResult{},
	}, nil
}

// Run drives the event loop until ctx is canceled or Stop is called.
// Run owns the Server's TimerService and Network pump goroutine and
// releases both before returning.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.timers.Stop()

	go s.pumpNetwork(ctx)

	initial := &Actions{}
	transitionToFollower(s.state, initial)
	if err := s.execute(ctx, initial.List()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.rejectAllWaiters(ctx.Err())
			return ctx.Err()

		case err := <-s.netErr:
			s.rejectAllWaiters(err)
			return err

		case req := <-s.controlCh:
			done, err := s.handleControl(ctx, req)
			if err != nil {
				s.rejectAllWaiters(err)
				return err
			}
			if done {
				return nil
			}

		case im := <-s.inbound:
			a := &Actions{}
			dispatch(s.state, im.from, im.msg, a)
			if err := s.execute(ctx, a.List()); err != nil {
				return err
			}
			s.tryResolveWaiters()

		case ev := <-s.timers.Next():
			a := &Actions{}
			s.handleTimerEvent(ev, a)
			if err := s.execute(ctx, a.List()); err != nil {
				return err
			}
		}
	}
}

func dispatch(s *RoleState, from NodeId, m Message, a *Actions) {
	switch m.Type {
	case MsgAppendEntriesReq:
		HandleAppendEntriesReq(s, from, m, a)
	case MsgAppendEntriesRep:
		HandleAppendEntriesRep(s, from, m, a)
	case MsgRequestVoteReq:
		HandleRequestVoteReq(s, from, m, a)
	case MsgRequestVoteRep:
		HandleRequestVoteRep(s, from, m, a)
	}
}

func (s *Server) handleTimerEvent(ev TimerEvent, a *Actions) {
	switch ev.Kind {
	case ElectionTimerKind:
		transitionToCandidate(s.state, a)
	case HeartbeatTimerKind:
		if s.state.Role != Leader {
			return
		}
		ps, ok := s.state.Peers[ev.Peer]
		if !ok {
			return
		}
		sendAppendEntries(s.state, ev.Peer, ps, a)
		a.SetHeartbeatTimer(ev.Peer)
	}
}

func (s *Server) handleControl(ctx context.Context, req controlRequest) (stop bool, err error) {
	switch r := req.(type) {
	case submitRequest:
		if err := s.handleSubmit(ctx, r); err != nil {
			return false, err
		}
	case observeRequest:
		r.reply <- s.state.Snapshot()
	case stopRequest:
		s.rejectAllWaiters(ErrSteppedDown)
		close(r.done)
		return true, nil
	}
	return false, nil
}

func (s *Server) handleSubmit(ctx context.Context, r submitRequest) error {
	if s.state.Role != Leader {
		var leader *NodeId
		if s.state.CurrentLeader != nil {
			l := *s.state.CurrentLeader
			leader = &l
		}
		r.reply <- SubmitResult{Err: &NotLeaderError{CurrentLeader: leader}}
		return nil
	}

	a := &Actions{}
	idx := s.state.LastLogIndex() + 1
	if err := s.state.Log.Append(s.state.LastLogIndex(), s.state.LastLogTerm(), []LogEntry{{Term: s.state.CurrentTerm, Command: r.cmd}}); err != nil {
		r.reply <- SubmitResult{Err: err}
		return nil
	}
	a.Persist()
	for peer, ps := range s.state.Peers {
		sendAppendEntries(s.state, peer, ps, a)
	}

	s.waitersMu.Lock()
	s.waiters[idx] = append(s.waiters[idx], r.reply)
	s.waitersMu.Unlock()

	return s.execute(ctx, a.List())
}

// execute applies a handler or transition's recorded Actions against the
// live Server: timers are armed/disarmed, persistence is checkpointed
// synchronously, and messages are encoded and handed to the Network.
func (s *Server) execute(ctx context.Context, actions []Action) error {
	for _, act := range actions {
		switch act.Kind {
		case ActionSetElectionTimer:
			if s.state.ElectionTimerKey != nil {
				s.timers.Cancel(*s.state.ElectionTimerKey)
			}
			k := s.timers.Insert(TimerEvent{Kind: ElectionTimerKind}, s.electionTimeout())
			s.state.ElectionTimerKey = &k

		case ActionClearElectionTimer:
			if s.state.ElectionTimerKey != nil {
				s.timers.Cancel(*s.state.ElectionTimerKey)
				s.state.ElectionTimerKey = nil
			}

		case ActionSetHeartbeatTimer:
			if k, ok := s.heartbeatKeys[act.Peer]; ok {
				s.timers.Cancel(k)
			}
			k := s.timers.Insert(TimerEvent{Kind: HeartbeatTimerKind, Peer: act.Peer}, s.cfg.Heartbeat)
			s.heartbeatKeys[act.Peer] = k

		case ActionClearAllHeartbeatTimers:
			for _, k := range s.heartbeatKeys {
				s.timers.Cancel(k)
			}
			s.heartbeatKeys = map[NodeId]TimerKey{}

		case ActionPersist:
			if err := s.store.SaveState(s.state.CurrentTerm, s.state.VotedFor, s.state.Log.entries); err != nil {
				return fmt.Errorf("%w: %v", ErrStorage, err)
			}

		case ActionTransitionTo:
			s.log.Debug().Str("role", act.Role.String()).Uint64("term", uint64(s.state.CurrentTerm)).Msg("role transition")
			if act.Role != Leader {
				s.rejectWaitersIfNoLongerLeader()
			}

		case ActionSend:
			payload, err := s.codec.Encode(act.Message)
			if err != nil {
				s.log.Error().Err(err).Msg("failed to encode outbound message")
				continue
			}
			if err := s.net.Send(ctx, act.Peer, payload); err != nil {
				s.log.Warn().Err(err).Uint64("peer", uint64(act.Peer)).Msg("send failed, dropping")
			}
		}
	}
	return nil
}

func (s *Server) electionTimeout() time.Duration {
	lo := s.cfg.ElectionTimeoutMin
	hi := s.cfg.ElectionTimeoutMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rng.Int63n(int64(hi-lo)))
}

func (s *Server) pumpNetwork(ctx context.Context) {
	for {
		from, payload, err := s.net.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case s.netErr <- fmt.Errorf("%w: %v", ErrTransportRecv, err):
			case <-ctx.Done():
			}
			return
		}
		msg, err := s.codec.Decode(payload)
		if err != nil {
			s.log.Warn().Err(err).Msg("discarding undecodable message")
			continue
		}
		select {
		case s.inbound <- inboundMessage{from: from, msg: msg}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) tryResolveWaiters() {
	s.waitersMu.Lock()
	defer s.waitersMu.Unlock()
	for idx, chans := range s.waiters {
		if idx > s.state.CommitIndex {
			continue
		}
		for _, ch := range chans {
			ch <- SubmitResult{Index: idx}
		}
		delete(s.waiters, idx)
	}
}

func (s *Server) rejectWaitersIfNoLongerLeader() {
	s.rejectAllWaiters(ErrSteppedDown)
}

func (s *Server) rejectAllWaiters(err error) {
	s.waitersMu.Lock()
	defer s.waitersMu.Unlock()
	for idx, chans := range s.waiters {
		for _, ch := range chans {
			ch <- SubmitResult{Err: err}
		}
		delete(s.waiters, idx)
	}
}

// Submit appends cmd to the replicated log if this node is currently
// Leader, and blocks until either it commits or this node steps down
// before it does.
func (s *Server) Submit(ctx context.Context, cmd []byte) (Index, error) {
	reply := make(chan SubmitResult, 1)
	select {
	case s.controlCh <- submitRequest{cmd: cmd, reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.Index, r.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ObserveState returns a consistent snapshot of this node's state, for
// diagnostics and tests.
func (s *Server) ObserveState(ctx context.Context) (StateSnapshot, error) {
	reply := make(chan StateSnapshot, 1)
	select {
	case s.controlCh <- observeRequest{reply: reply}:
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	}
}

// Stop requests a graceful shutdown of the event loop, waiting for it to
// acknowledge before returning.
func (s *Server) Stop(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.controlCh <- stopRequest{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
