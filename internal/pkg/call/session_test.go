package call

import "testing"

func TestStateTerminal(t *testing.T) {
	live := []State{StateOffering, StateRinging, StateAnswering, StateConnected}
	for _, s := range live {
		if s.Terminal() {
			t.Fatalf("%v reported terminal", s)
		}
	}
	terminal := []State{StateRejected, StateTimedOut, StateEnded, StateFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%v reported live", s)
		}
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateOffering:  "offering",
		StateRinging:   "ringing",
		StateConnected: "connected",
		StateTimedOut:  "timed_out",
		State(99):      "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestNonTerminalSessionStaysRegistered(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())

	s := &Session{CallerID: "alice", CalleeID: "bob", State: StateRinging}
	c.mu.Lock()
	c.sessions["alice"] = s
	c.sessions["bob"] = s
	c.remove(s)
	c.mu.Unlock()

	if _, ok := c.SessionState("alice"); !ok {
		t.Fatal("live session was removed without reaching a terminal state")
	}
}
