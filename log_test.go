package raft

import "testing"

func TestLogAppendRejectsMismatchedPrevEntry(t *testing.T) {
	l := NewLog()
	if err := l.Append(0, 0, []LogEntry{{Term: 1, Command: []byte("a")}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Append(1, 99, []LogEntry{{Term: 1, Command: []byte("b")}}); err != ErrLogMismatch {
		t.Fatalf("expected ErrLogMismatch, got %v", err)
	}
	if l.Length() != 1 {
		t.Fatalf("log should be unchanged after rejected append, got length %d", l.Length())
	}
}

func TestLogAppendTruncatesConflictingSuffix(t *testing.T) {
	l := NewLog()
	l.Append(0, 0, []LogEntry{{Term: 1}, {Term: 1}, {Term: 2}})

	if err := l.Append(1, 1, []LogEntry{{Term: 3}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Length() != 2 {
		t.Fatalf("expected log length 2 after truncation, got %d", l.Length())
	}
	if l.Get(2).Term != 3 {
		t.Fatalf("expected entry 2 to have term 3, got %d", l.Get(2).Term)
	}
}

func TestLogAppendRetainsIdenticalEntries(t *testing.T) {
	l := NewLog()
	entries := []LogEntry{{Term: 1, Command: []byte("x")}, {Term: 1, Command: []byte("y")}}
	l.Append(0, 0, entries)

	if err := l.Append(0, 0, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Length() != 2 {
		t.Fatalf("re-appending identical entries should be a no-op, got length %d", l.Length())
	}
}

func TestLogGetSentinelForEmptyIndex(t *testing.T) {
	l := NewLog()
	if got := l.Get(0).Term; got != 0 {
		t.Fatalf("expected term 0 for index 0, got %d", got)
	}
	if got := l.Get(5).Term; got != 0 {
		t.Fatalf("expected term 0 past tail, got %d", got)
	}
}

func TestLogSliceFromMiddle(t *testing.T) {
	l := NewLog()
	l.Append(0, 0, []LogEntry{{Term: 1}, {Term: 2}, {Term: 3}})

	got := l.Slice(2)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries from index 2, got %d", len(got))
	}
	if got[0].Term != 2 || got[1].Term != 3 {
		t.Fatalf("unexpected slice contents: %+v", got)
	}
}
