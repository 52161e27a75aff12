package raft

import "testing"

func newTestState(id NodeId, size int) *RoleState {
	return NewRoleState(id, size)
}

func TestRequestVoteGrantedForUpToDateCandidate(t *testing.T) {
	s := newTestState(1, 3)
	a := &Actions{}

	HandleRequestVoteReq(s, 2, Message{Type: MsgRequestVoteReq, Term: 1, CandidateId: 2, LastLogIndex: 0, LastLogTerm: 0}, a)

	if s.CurrentTerm != 1 {
		t.Fatalf("expected term to adopt 1, got %d", s.CurrentTerm)
	}
	if s.VotedFor == nil || *s.VotedFor != 2 {
		t.Fatalf("expected vote for 2, got %v", s.VotedFor)
	}
	assertReplyGranted(t, a, true)
}

func TestRequestVoteRejectedForStaleTerm(t *testing.T) {
	s := newTestState(1, 3)
	s.CurrentTerm = 5

	a := &Actions{}
	HandleRequestVoteReq(s, 2, Message{Type: MsgRequestVoteReq, Term: 3, CandidateId: 2}, a)
	assertReplyGranted(t, a, false)
}

func TestRequestVoteRejectedForStaleLog(t *testing.T) {
	s := newTestState(1, 3)
	s.Log.Append(0, 0, []LogEntry{{Term: 1}, {Term: 2}})

	a := &Actions{}
	HandleRequestVoteReq(s, 2, Message{Type: MsgRequestVoteReq, Term: 1, CandidateId: 2, LastLogIndex: 1, LastLogTerm: 1}, a)
	assertReplyGranted(t, a, false)
}

func TestRequestVoteRejectedWhenAlreadyVotedThisTerm(t *testing.T) {
	s := newTestState(1, 3)
	a := &Actions{}
	HandleRequestVoteReq(s, 2, Message{Type: MsgRequestVoteReq, Term: 1, CandidateId: 2}, a)
	assertReplyGranted(t, a, true)

	a2 := &Actions{}
	HandleRequestVoteReq(s, 3, Message{Type: MsgRequestVoteReq, Term: 1, CandidateId: 3}, a2)
	assertReplyGranted(t, a2, false)
}

func assertReplyGranted(t *testing.T, a *Actions, want bool) {
	t.Helper()
	for _, act := range a.List() {
		if act.Kind == ActionSend && act.Message.Type == MsgRequestVoteRep {
			if act.Message.VoteGranted != want {
				t.Fatalf("expected vote_granted=%v, got %v", want, act.Message.VoteGranted)
			}
			return
		}
	}
	t.Fatal("no RequestVoteRep was sent")
}

func TestCandidateBecomesLeaderOnMajorityVotes(t *testing.T) {
	s := newTestState(1, 3)
	a := &Actions{}
	transitionToCandidate(s, a)

	a2 := &Actions{}
	HandleRequestVoteRep(s, 2, Message{Type: MsgRequestVoteRep, Term: s.CurrentTerm, VoteGranted: true}, a2)

	if s.Role != Leader {
		t.Fatalf("expected Leader after majority, got %s", s.Role)
	}
}

func TestCandidateStaysCandidateWithoutMajority(t *testing.T) {
	s := newTestState(1, 5)
	a := &Actions{}
	transitionToCandidate(s, a)

	a2 := &Actions{}
	HandleRequestVoteRep(s, 2, Message{Type: MsgRequestVoteRep, Term: s.CurrentTerm, VoteGranted: true}, a2)

	if s.Role != Candidate {
		t.Fatalf("expected to remain Candidate with only 2/5 votes, got %s", s.Role)
	}
}

func TestAppendEntriesStepsDownCandidateAtCurrentTerm(t *testing.T) {
	s := newTestState(1, 3)
	a := &Actions{}
	transitionToCandidate(s, a)

	a2 := &Actions{}
	HandleAppendEntriesReq(s, 2, Message{Type: MsgAppendEntriesReq, Term: s.CurrentTerm, Leader: 2}, a2)

	if s.Role != Follower {
		t.Fatalf("expected to step down to Follower, got %s", s.Role)
	}
	if s.CurrentLeader == nil || *s.CurrentLeader != 2 {
		t.Fatalf("expected CurrentLeader=2, got %v", s.CurrentLeader)
	}
}

func TestAppendEntriesRejectedOnLogMismatch(t *testing.T) {
	s := newTestState(1, 3)
	a := &Actions{}
	HandleAppendEntriesReq(s, 2, Message{Type: MsgAppendEntriesReq, Term: 1, Leader: 2, PrevLogIndex: 5, PrevLogTerm: 3}, a)

	for _, act := range a.List() {
		if act.Kind == ActionSend && act.Message.Type == MsgAppendEntriesRep {
			if act.Message.Success {
				t.Fatal("expected success=false on log mismatch")
			}
			return
		}
	}
	t.Fatal("no AppendEntriesRep was sent")
}

func TestLeaderAdvancesCommitIndexOnMajorityMatch(t *testing.T) {
	s := newTestState(1, 3)
	s.Role = Leader
	s.CurrentTerm = 2
	s.Log.Append(0, 0, []LogEntry{{Term: 2, Command: []byte("x")}})
	for _, ps := range s.Peers {
		ps.NextIndex = 2
	}

	a := &Actions{}
	HandleAppendEntriesRep(s, 2, Message{Type: MsgAppendEntriesRep, Term: 2, Success: true, NextIndex: 2}, a)

	if s.CommitIndex != 1 {
		t.Fatalf("expected commit index 1 after one peer ack (majority of 3), got %d", s.CommitIndex)
	}
}

func TestLeaderWontCommitEntryFromEarlierTermByCountAlone(t *testing.T) {
	s := newTestState(1, 3)
	s.Role = Leader
	s.CurrentTerm = 3
	s.Log.Append(0, 0, []LogEntry{{Term: 2, Command: []byte("old")}})
	for _, ps := range s.Peers {
		ps.NextIndex = 2
	}

	a := &Actions{}
	HandleAppendEntriesRep(s, 2, Message{Type: MsgAppendEntriesRep, Term: 3, Success: true, NextIndex: 2}, a)

	if s.CommitIndex != 0 {
		t.Fatalf("must not commit an entry from an earlier term by match count alone, got commit index %d", s.CommitIndex)
	}
}

func TestLeaderDecrementsNextIndexOnRejection(t *testing.T) {
	s := newTestState(1, 3)
	s.Role = Leader
	s.CurrentTerm = 1
	s.Peers[2].NextIndex = 5

	a := &Actions{}
	HandleAppendEntriesRep(s, 2, Message{Type: MsgAppendEntriesRep, Term: 1, Success: false, NextIndex: 10}, a)

	if s.Peers[2].NextIndex != 4 {
		t.Fatalf("expected next_index decremented to 4, got %d", s.Peers[2].NextIndex)
	}
}

func TestLeaderNextIndexClampedToPeersReportedNextIndex(t *testing.T) {
	s := newTestState(1, 3)
	s.Role = Leader
	s.CurrentTerm = 1
	s.Peers[2].NextIndex = 5

	a := &Actions{}
	HandleAppendEntriesRep(s, 2, Message{Type: MsgAppendEntriesRep, Term: 1, Success: false, NextIndex: 3}, a)

	if s.Peers[2].NextIndex != 3 {
		t.Fatalf("expected next_index clamped down to the peer's reported next_index 3, got %d", s.Peers[2].NextIndex)
	}
}

func TestUniversalTermRulePersistsAndStepsDownLeader(t *testing.T) {
	s := newTestState(1, 3)
	s.Role = Leader
	s.CurrentTerm = 1

	a := &Actions{}
	applyUniversalTermRule(s, 2, a)

	if s.CurrentTerm != 2 {
		t.Fatalf("expected term to adopt 2, got %d", s.CurrentTerm)
	}
	if s.Role != Follower {
		t.Fatalf("expected Leader to step down on higher term, got %s", s.Role)
	}

	sawPersist := false
	for _, act := range a.List() {
		if act.Kind == ActionPersist {
			sawPersist = true
		}
	}
	if !sawPersist {
		t.Fatal("expected a Persist action on term bump, for crash safety")
	}
}
