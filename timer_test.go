package raft

import (
	"testing"
	"time"
)

func TestTimerServiceFiresInOrder(t *testing.T) {
	ts := NewTimerService()
	defer ts.Stop()

	ts.Insert(TimerEvent{Kind: HeartbeatTimerKind, Peer: 3}, 30*time.Millisecond)
	ts.Insert(TimerEvent{Kind: ElectionTimerKind}, 10*time.Millisecond)
	ts.Insert(TimerEvent{Kind: HeartbeatTimerKind, Peer: 2}, 20*time.Millisecond)

	want := []TimerEvent{
		{Kind: ElectionTimerKind},
		{Kind: HeartbeatTimerKind, Peer: 2},
		{Kind: HeartbeatTimerKind, Peer: 3},
	}
	for i, w := range want {
		select {
		case got := <-ts.Next():
			if got != w {
				t.Fatalf("event %d: got %+v, want %+v", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d: timed out waiting for fire", i)
		}
	}
}

func TestTimerServiceCancelPreventsFire(t *testing.T) {
	ts := NewTimerService()
	defer ts.Stop()

	k := ts.Insert(TimerEvent{Kind: ElectionTimerKind}, 20*time.Millisecond)
	ts.Cancel(k)
	ts.Insert(TimerEvent{Kind: HeartbeatTimerKind, Peer: 1}, 40*time.Millisecond)

	select {
	case got := <-ts.Next():
		if got.Kind != HeartbeatTimerKind {
			t.Fatalf("expected the canceled election timer to be skipped, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the surviving timer")
	}
}

func TestTimerServiceCancelAfterFireIsNoop(t *testing.T) {
	ts := NewTimerService()
	defer ts.Stop()

	k := ts.Insert(TimerEvent{Kind: ElectionTimerKind}, time.Millisecond)
	select {
	case <-ts.Next():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fire")
	}
	ts.Cancel(k) // must not panic or block
}
