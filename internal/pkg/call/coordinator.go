// Package call arbitrates offer/answer/ICE exchange between pairs of users.
// Only the negotiation handshake flows through here; media goes peer-to-peer.
package call

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRingTimeout is how long a delivered offer may ring before the
// coordinator gives up on the callee answering.
const DefaultRingTimeout = 60 * time.Second

// Sender delivers a payload to a user's live connection, reporting false when
// the user is unreachable. Satisfied by realtime.Registry.
type Sender interface {
	NotifyUser(userID string, payload []byte) bool
}

// Coordinator owns every live call session. A user owns at most one
// non-terminal session at a time; reaching a terminal state removes the
// session, so membership in the sessions map doubles as the busy check.
//
// All transitions happen under one mutex, which makes the ring-timeout
// check-then-act atomic with client-driven transitions. Nothing under the
// mutex touches the network: deliveries go through the sender's non-blocking
// per-connection buffer, and missed-call persistence runs outside the lock.
type Coordinator struct {
	mu       sync.Mutex
	sessions map[string]*Session // keyed by both caller and callee id

	sender      Sender
	missed      MissedCallStore
	ringTimeout time.Duration
}

// NewCoordinator constructs a Coordinator delivering through sender and
// recording undeliverable attempts in missed.
func NewCoordinator(sender Sender, missed MissedCallStore) *Coordinator {
	return &Coordinator{
		sessions:    make(map[string]*Session),
		sender:      sender,
		missed:      missed,
		ringTimeout: DefaultRingTimeout,
	}
}

// SetRingTimeout overrides the no-answer timeout. Must be called before use.
func (c *Coordinator) SetRingTimeout(d time.Duration) { c.ringTimeout = d }

type offerFrame struct {
	Type           string          `json:"type"`
	Offer          json.RawMessage `json:"offer"`
	CallerID       string          `json:"callerId"`
	CallerName     string          `json:"callerName"`
	ConversationID string          `json:"conversationId"`
	IsVideo        bool            `json:"isVideo"`
}

type answerFrame struct {
	Type       string          `json:"type"`
	Answer     json.RawMessage `json:"answer"`
	AnswererID string          `json:"answererId"`
}

type candidateFrame struct {
	Type       string          `json:"type"`
	Candidate  json.RawMessage `json:"candidate"`
	FromUserID string          `json:"fromUserId"`
}

type signalFrame struct {
	Type string `json:"type"`
}

type callErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// OfferInput carries a caller's request to start a call.
type OfferInput struct {
	CallerID       string
	CallerName     string
	CalleeID       string
	ConversationID string
	IsVideo        bool
	Offer          json.RawMessage
}

// Offer creates a call session and delivers the offer to the callee.
//
// It fails with ErrBusy when either party already owns a live session, and
// with ErrUnreachable when the callee has no live connection; in the latter
// case a missed-call record has been queued for the callee before returning.
// On success the session is Ringing and the no-answer timer is armed.
func (c *Coordinator) Offer(ctx context.Context, in OfferInput) error {
	payload, err := json.Marshal(offerFrame{
		Type:           "call_offer",
		Offer:          in.Offer,
		CallerID:       in.CallerID,
		CallerName:     in.CallerName,
		ConversationID: in.ConversationID,
		IsVideo:        in.IsVideo,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if _, busy := c.sessions[in.CalleeID]; busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if _, busy := c.sessions[in.CallerID]; busy {
		c.mu.Unlock()
		return ErrBusy
	}

	now := time.Now()
	s := &Session{
		ID:             uuid.NewString(),
		CallerID:       in.CallerID,
		CallerName:     in.CallerName,
		CalleeID:       in.CalleeID,
		ConversationID: in.ConversationID,
		IsVideo:        in.IsVideo,
		Offer:          in.Offer,
		State:          StateOffering,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	if !c.sender.NotifyUser(in.CalleeID, payload) {
		c.mu.Unlock()
		rec := MissedCall{
			CalleeID:   in.CalleeID,
			CallerID:   in.CallerID,
			CallerName: in.CallerName,
			IsVideo:    in.IsVideo,
			CreatedAt:  now,
		}
		if err := c.missed.Record(ctx, rec); err != nil {
			log.Printf("call: missed-call record for %s: %v", in.CalleeID, err)
		}
		return ErrUnreachable
	}

	s.State = StateRinging
	c.sessions[in.CallerID] = s
	c.sessions[in.CalleeID] = s
	s.timer = time.AfterFunc(c.ringTimeout, func() { c.timeout(s) })
	c.mu.Unlock()
	return nil
}

// timeout fires when the callee neither answered nor rejected in time. The
// state re-check under the mutex guarantees it never acts on a session that
// left Ringing by another path.
func (c *Coordinator) timeout(s *Session) {
	c.mu.Lock()
	if c.sessions[s.CalleeID] != s || s.State != StateRinging {
		c.mu.Unlock()
		return
	}
	s.State = StateTimedOut
	c.remove(s)
	c.mu.Unlock()

	payload, err := json.Marshal(callErrorFrame{Type: "call_error", Error: "no answer"})
	if err != nil {
		return
	}
	c.sender.NotifyUser(s.CallerID, payload)
}

// Answer relays the callee's answer to the caller and completes signaling.
// Anything but a callee answering a Ringing session is silently ignored;
// duplicate answers from stale UI events are expected.
func (c *Coordinator) Answer(calleeID string, answer json.RawMessage) {
	payload, err := json.Marshal(answerFrame{Type: "call_answer", Answer: answer, AnswererID: calleeID})
	if err != nil {
		return
	}

	c.mu.Lock()
	s := c.sessions[calleeID]
	if s == nil || s.CalleeID != calleeID || s.State != StateRinging {
		c.mu.Unlock()
		return
	}
	s.stopTimer()
	s.State = StateAnswering
	s.touch()

	if c.sender.NotifyUser(s.CallerID, payload) {
		// Signaling is complete; ICE success is observed only by the peers.
		s.State = StateConnected
		c.mu.Unlock()
		return
	}

	// Caller vanished mid-handshake.
	s.State = StateFailed
	c.remove(s)
	c.mu.Unlock()
	c.notifyEnded(calleeID)
}

// ICECandidate relays a connectivity candidate to the session counterpart.
// Candidates arriving after teardown are expected network jitter and are
// dropped without a trace.
func (c *Coordinator) ICECandidate(fromID string, candidate json.RawMessage) {
	c.mu.Lock()
	s := c.sessions[fromID]
	if s == nil {
		c.mu.Unlock()
		return
	}
	switch s.State {
	case StateRinging, StateAnswering, StateConnected:
	default:
		c.mu.Unlock()
		return
	}
	peerID := s.peerOf(fromID)
	s.touch()
	c.mu.Unlock()

	payload, err := json.Marshal(candidateFrame{Type: "ice_candidate", Candidate: candidate, FromUserID: fromID})
	if err != nil {
		return
	}
	c.sender.NotifyUser(peerID, payload)
}

// Reject declines a ringing call and informs the caller. Rejecting a session
// that no longer exists, or that the user is not the callee of, is a no-op.
func (c *Coordinator) Reject(calleeID string) {
	c.mu.Lock()
	s := c.sessions[calleeID]
	if s == nil || s.CalleeID != calleeID || s.State != StateRinging {
		c.mu.Unlock()
		return
	}
	s.stopTimer()
	s.State = StateRejected
	c.remove(s)
	c.mu.Unlock()

	payload, err := json.Marshal(signalFrame{Type: "call_rejected"})
	if err != nil {
		return
	}
	c.sender.NotifyUser(s.CallerID, payload)
}

// End terminates userID's live session, whatever its state, and informs the
// counterpart. Ending with no session is a successful no-op so duplicate
// hang-ups and cancel-after-timeout races stay quiet.
func (c *Coordinator) End(userID string) {
	c.mu.Lock()
	s := c.sessions[userID]
	if s == nil {
		c.mu.Unlock()
		return
	}
	s.stopTimer()
	s.State = StateEnded
	peerID := s.peerOf(userID)
	c.remove(s)
	c.mu.Unlock()

	c.notifyEnded(peerID)
}

// HandleDisconnect forces userID's session to Ended when their transport
// drops, notifying the remaining party. Equivalent to an explicit hang-up.
func (c *Coordinator) HandleDisconnect(userID string) {
	c.End(userID)
}

// SessionState reports the live session state for userID, if any.
func (c *Coordinator) SessionState(userID string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sessions[userID]
	if s == nil {
		return 0, false
	}
	return s.State, true
}

func (c *Coordinator) notifyEnded(userID string) {
	payload, err := json.Marshal(signalFrame{Type: "call_ended"})
	if err != nil {
		return
	}
	c.sender.NotifyUser(userID, payload)
}

// remove must be called with the mutex held. A session leaves the map only
// through a terminal state; anything else would break the busy check.
func (c *Coordinator) remove(s *Session) {
	if !s.State.Terminal() {
		return
	}
	delete(c.sessions, s.CallerID)
	delete(c.sessions, s.CalleeID)
}
