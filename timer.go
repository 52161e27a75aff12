package raft

import (
	"container/heap"
	"time"
)

// TimerKind distinguishes the two kinds of timer the core schedules.
type TimerKind int

const (
	ElectionTimerKind TimerKind = iota
	HeartbeatTimerKind
)

// TimerEvent is delivered by TimerService.Next when a scheduled timer
// fires. Peer is only meaningful for HeartbeatTimerKind.
type TimerEvent struct {
	Kind TimerKind
	Peer NodeId
}

// TimerKey identifies a single outstanding timer, returned by Insert and
// consumed by Cancel. The zero value never refers to a real timer.
type TimerKey uint64

// TimerService is a priority queue of future timer events. A single
// goroutine owns the heap; Insert/Cancel communicate with it over channels
// so the caller (the event loop) never touches the heap directly. Next
// yields expired events in expiration order.
type TimerService struct {
	insertCh chan insertRequest
	cancelCh chan cancelRequest
	events   chan TimerEvent
	done     chan struct{}
}

type insertRequest struct {
	event TimerEvent
	delay time.Duration
	keyCh chan TimerKey
}

type cancelRequest struct {
	key TimerKey
}

// NewTimerService starts the background goroutine and returns a ready
// TimerService. Call Stop to release it.
func NewTimerService() *TimerService {
	ts := &TimerService{
		insertCh: make(chan insertRequest),
		cancelCh: make(chan cancelRequest),
		events:   make(chan TimerEvent),
		done:     make(chan struct{}),
	}
	go ts.run()
	return ts
}

// Insert schedules event to fire after delay and returns a key that can
// later be passed to Cancel.
func (ts *TimerService) Insert(event TimerEvent, delay time.Duration) TimerKey {
	keyCh := make(chan TimerKey, 1)
	select {
	case ts.insertCh <- insertRequest{event: event, delay: delay, keyCh: keyCh}:
	case <-ts.done:
		return 0
	}
	select {
	case k := <-keyCh:
		return k
	case <-ts.done:
		return 0
	}
}

// Cancel removes a pending timer. It is a no-op, not a panic, if the timer
// has already fired or was already canceled.
func (ts *TimerService) Cancel(key TimerKey) {
	select {
	case ts.cancelCh <- cancelRequest{key: key}:
	case <-ts.done:
	}
}

// Next returns the channel on which expired events are delivered, in
// expiration order.
func (ts *TimerService) Next() <-chan TimerEvent {
	return ts.events
}

// Stop shuts down the background goroutine. Outstanding timers are
// dropped without firing.
func (ts *TimerService) Stop() {
	select {
	case <-ts.done:
	default:
		close(ts.done)
	}
}

func (ts *TimerService) run() {
	h := &pendingTimerHeap{}
	heap.Init(h)
	var nextKey TimerKey
	var ready []TimerEvent

	timer := time.NewTimer(time.Hour)
	armed := false
	stopTimer := func() {
		if armed {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			armed = false
		}
	}
	defer stopTimer()
	defer timer.Stop()

	for {
		if h.Len() > 0 {
			stopTimer()
			d := time.Until((*h)[0].at)
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
			armed = true
		}
		var out chan TimerEvent
		var head TimerEvent
		if len(ready) > 0 {
			out, head = ts.events, ready[0]
		}

		select {
		case <-ts.done:
			return

		case out <- head:
			ready = ready[1:]

		case req := <-ts.insertCh:
			nextKey++
			k := nextKey
			heap.Push(h, &pendingTimer{
				key:   k,
				at:    time.Now().Add(req.delay),
				event: req.event,
			})
			stopTimer()
			select {
			case req.keyCh <- k:
			case <-ts.done:
				return
			}

		case req := <-ts.cancelCh:
			for i, pt := range *h {
				if pt.key == req.key {
					heap.Remove(h, i)
					break
				}
			}
			stopTimer()

		case <-timer.C:
			armed = false
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].at.After(now) {
				ready = append(ready, heap.Pop(h).(*pendingTimer).event)
			}
		}
	}
}

type pendingTimer struct {
	key   TimerKey
	at    time.Time
	event TimerEvent
	index int
}

type pendingTimerHeap []*pendingTimer

func (h pendingTimerHeap) Len() int            { return len(h) }
func (h pendingTimerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h pendingTimerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *pendingTimerHeap) Push(x interface{}) {
	pt := x.(*pendingTimer)
	pt.index = len(*h)
	*h = append(*h, pt)
}

func (h *pendingTimerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	pt := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return pt
}
