package call

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of a call session. Terminal states are never
// stored: reaching one destroys the session.
type State int

const (
	StateOffering State = iota
	StateRinging
	StateAnswering
	StateConnected
	StateRejected
	StateTimedOut
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOffering:
		return "offering"
	case StateRinging:
		return "ringing"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateRejected:
		return "rejected"
	case StateTimedOut:
		return "timed_out"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether s destroys the session.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateTimedOut, StateEnded, StateFailed:
		return true
	}
	return false
}

// Session is the stateful negotiation record for one call attempt between two
// users. The SDP offer and ICE candidates are opaque payloads, merely relayed;
// the media path is negotiated peer-to-peer outside this system.
type Session struct {
	ID             string
	CallerID       string
	CallerName     string
	CalleeID       string
	ConversationID string
	IsVideo        bool
	Offer          json.RawMessage

	State          State
	CreatedAt      time.Time
	LastActivityAt time.Time

	timer *time.Timer
}

func (s *Session) peerOf(userID string) string {
	if userID == s.CallerID {
		return s.CalleeID
	}
	return s.CallerID
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) touch() {
	s.LastActivityAt = time.Now()
}
