package raft

// ActionKind enumerates the side effects a handler can request.
type ActionKind int

const (
	ActionSetElectionTimer ActionKind = iota
	ActionClearElectionTimer
	ActionSetHeartbeatTimer
	ActionClearAllHeartbeatTimers
	ActionSend
	ActionTransitionTo
	ActionPersist
)

// Action is a single typed instruction emitted by a handler. The event
// loop executes a handler's Actions, in order, after the handler returns
// control and before the next event is dequeued.
type Action struct {
	Kind    ActionKind
	Peer    NodeId
	Message Message
	Role    Role
}

// Actions is an append-only list-builder for Action values. Handlers and
// role transitions are given an *Actions to record their side effects into
// instead of performing them directly, so they can be tested without a
// running event loop, timer service, or network.
type Actions struct {
	items []Action
}

func (a *Actions) SetElectionTimer() {
	a.items = append(a.items, Action{Kind: ActionSetElectionTimer})
}

func (a *Actions) ClearElectionTimer() {
	a.items = append(a.items, Action{Kind: ActionClearElectionTimer})
}

func (a *Actions) SetHeartbeatTimer(peer NodeId) {
	a.items = append(a.items, Action{Kind: ActionSetHeartbeatTimer, Peer: peer})
}

func (a *Actions) ClearAllHeartbeatTimers() {
	a.items = append(a.items, Action{Kind: ActionClearAllHeartbeatTimers})
}

func (a *Actions) Send(peer NodeId, msg Message) {
	a.items = append(a.items, Action{Kind: ActionSend, Peer: peer, Message: msg})
}

func (a *Actions) TransitionTo(role Role) {
	a.items = append(a.items, Action{Kind: ActionTransitionTo, Role: role})
}

func (a *Actions) Persist() {
	a.items = append(a.items, Action{Kind: ActionPersist})
}

// List returns the recorded actions in emission order.
func (a *Actions) List() []Action {
	return a.items
}
