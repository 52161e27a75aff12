package raft

// MessageType discriminates the four message variants the core handles.
type MessageType string

const (
	MsgAppendEntriesReq MessageType = "AppendEntriesReq"
	MsgAppendEntriesRep MessageType = "AppendEntriesRep"
	MsgRequestVoteReq   MessageType = "RequestVoteReq"
	MsgRequestVoteRep   MessageType = "RequestVoteRep"
)

// Message is the wire-level union of the four Raft RPC variants. Each
// variant only populates the fields relevant to it; Type is the
// discriminant a Codec switches on to decode the rest. A Codec is
// responsible for the bijection between a Message and a byte sequence.
type Message struct {
	Type MessageType `json:"type"`
	Term Term        `json:"term"`

	// AppendEntriesReq
	Leader       NodeId     `json:"leader,omitempty"`
	PrevLogIndex Index      `json:"prev_log_index,omitempty"`
	PrevLogTerm  Term       `json:"prev_log_term,omitempty"`
	Entries      []LogEntry `json:"entries,omitempty"`
	LeaderCommit Index      `json:"leader_commit,omitempty"`

	// AppendEntriesRep
	Success   bool  `json:"success,omitempty"`
	NextIndex Index `json:"next_index,omitempty"`

	// RequestVoteReq
	CandidateId  NodeId `json:"candidate_id,omitempty"`
	LastLogIndex Index  `json:"last_log_index,omitempty"`
	LastLogTerm  Term   `json:"last_log_term,omitempty"`

	// RequestVoteRep
	VoteGranted bool `json:"vote_granted,omitempty"`
}

// Codec is the bijection between a Message and its wire bytes, consumed by
// a Network implementation and owned by Server.
type Codec interface {
	Encode(Message) ([]byte, error)
	Decode([]byte) (Message, error)
}
