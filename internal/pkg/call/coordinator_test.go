package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu      sync.Mutex
	offline map[string]bool
	frames  map[string][]map[string]any
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		offline: make(map[string]bool),
		frames:  make(map[string][]map[string]any),
	}
}

func (f *fakeSender) NotifyUser(userID string, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline[userID] {
		return false
	}
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		panic("malformed frame: " + err.Error())
	}
	f.frames[userID] = append(f.frames[userID], frame)
	return true
}

func (f *fakeSender) setOffline(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline[userID] = true
}

func (f *fakeSender) frameTypes(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, frame := range f.frames[userID] {
		types = append(types, frame["type"].(string))
	}
	return types
}

func (f *fakeSender) lastFrame(t *testing.T, userID string) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	frames := f.frames[userID]
	if len(frames) == 0 {
		t.Fatalf("no frames delivered to %s", userID)
	}
	return frames[len(frames)-1]
}

type memMissedStore struct {
	mu      sync.Mutex
	pending map[string][]MissedCall
}

func newMemMissedStore() *memMissedStore {
	return &memMissedStore{pending: make(map[string][]MissedCall)}
}

func (m *memMissedStore) Record(_ context.Context, rec MissedCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[rec.CalleeID] = append(m.pending[rec.CalleeID], rec)
	return nil
}

func (m *memMissedStore) Drain(_ context.Context, calleeID string) ([]MissedCall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending[calleeID]
	delete(m.pending, calleeID)
	return out, nil
}

func offerInput(caller, callee string) OfferInput {
	return OfferInput{
		CallerID:       caller,
		CallerName:     caller + " name",
		CalleeID:       callee,
		ConversationID: "conv-1",
		IsVideo:        true,
		Offer:          json.RawMessage(`{"sdp":"v=0"}`),
	}
}

func TestOfferDeliversAndRings(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())

	if err := c.Offer(context.Background(), offerInput("alice", "bob")); err != nil {
		t.Fatalf("offer failed: %v", err)
	}

	frame := sender.lastFrame(t, "bob")
	if frame["type"] != "call_offer" {
		t.Fatalf("frame type = %v, want call_offer", frame["type"])
	}
	if frame["callerId"] != "alice" || frame["callerName"] != "alice name" {
		t.Fatalf("caller identity not carried: %v", frame)
	}
	if frame["isVideo"] != true {
		t.Fatalf("isVideo not carried: %v", frame)
	}

	for _, id := range []string{"alice", "bob"} {
		state, ok := c.SessionState(id)
		if !ok || state != StateRinging {
			t.Fatalf("session state for %s = %v/%v, want ringing", id, state, ok)
		}
	}
}

func TestOfferToBusyPartyFails(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())
	ctx := context.Background()

	if err := c.Offer(ctx, offerInput("alice", "bob")); err != nil {
		t.Fatalf("first offer failed: %v", err)
	}

	// Callee already ringing.
	if err := c.Offer(ctx, offerInput("carol", "bob")); !errors.Is(err, ErrBusy) {
		t.Fatalf("offer to ringing callee = %v, want ErrBusy", err)
	}
	// Caller of the live session is busy too, in either role.
	if err := c.Offer(ctx, offerInput("alice", "carol")); !errors.Is(err, ErrBusy) {
		t.Fatalf("offer from busy caller = %v, want ErrBusy", err)
	}
	if err := c.Offer(ctx, offerInput("carol", "alice")); !errors.Is(err, ErrBusy) {
		t.Fatalf("offer to busy caller = %v, want ErrBusy", err)
	}
}

func TestOfferUnreachableRecordsMissedCall(t *testing.T) {
	sender := newFakeSender()
	sender.setOffline("bob")
	store := newMemMissedStore()
	c := NewCoordinator(sender, store)
	ctx := context.Background()

	if err := c.Offer(ctx, offerInput("alice", "bob")); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("offer to offline callee = %v, want ErrUnreachable", err)
	}
	if _, ok := c.SessionState("alice"); ok {
		t.Fatal("unreachable offer left a live session behind")
	}

	recs, err := store.Drain(ctx, "bob")
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("drained %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.CallerID != "alice" || rec.CallerName != "alice name" || !rec.IsVideo {
		t.Fatalf("missed call record mismatch: %+v", rec)
	}

	recs, err = store.Drain(ctx, "bob")
	if err != nil {
		t.Fatalf("second drain failed: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("second drain returned %d records, want 0", len(recs))
	}
}

func TestAnswerCompletesSignaling(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())

	if err := c.Offer(context.Background(), offerInput("alice", "bob")); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	c.Answer("bob", json.RawMessage(`{"sdp":"answer"}`))

	frame := sender.lastFrame(t, "alice")
	if frame["type"] != "call_answer" || frame["answererId"] != "bob" {
		t.Fatalf("caller did not receive the answer: %v", frame)
	}
	for _, id := range []string{"alice", "bob"} {
		state, ok := c.SessionState(id)
		if !ok || state != StateConnected {
			t.Fatalf("session state for %s = %v/%v, want connected", id, state, ok)
		}
	}
}

func TestAnswerFromWrongPartyIgnored(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())

	if err := c.Offer(context.Background(), offerInput("alice", "bob")); err != nil {
		t.Fatalf("offer failed: %v", err)
	}

	// Callers do not answer their own calls, and strangers hold no session.
	c.Answer("alice", json.RawMessage(`{}`))
	c.Answer("carol", json.RawMessage(`{}`))

	if types := sender.frameTypes("alice"); len(types) != 0 {
		t.Fatalf("caller received unexpected frames: %v", types)
	}
	if state, ok := c.SessionState("bob"); !ok || state != StateRinging {
		t.Fatalf("session state = %v/%v, want ringing", state, ok)
	}
}

func TestRingTimeoutExpiresUnansweredCall(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())
	c.SetRingTimeout(30 * time.Millisecond)

	if err := c.Offer(context.Background(), offerInput("alice", "bob")); err != nil {
		t.Fatalf("offer failed: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	frame := sender.lastFrame(t, "alice")
	if frame["type"] != "call_error" || frame["error"] != "no answer" {
		t.Fatalf("caller frame = %v, want call_error/no answer", frame)
	}
	if _, ok := c.SessionState("alice"); ok {
		t.Fatal("timed-out session still live for caller")
	}
	if _, ok := c.SessionState("bob"); ok {
		t.Fatal("timed-out session still live for callee")
	}

	// Both parties are free again.
	if err := c.Offer(context.Background(), offerInput("bob", "alice")); err != nil {
		t.Fatalf("offer after timeout failed: %v", err)
	}
}

func TestAnswerSuppressesRingTimeout(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())
	c.SetRingTimeout(40 * time.Millisecond)

	if err := c.Offer(context.Background(), offerInput("alice", "bob")); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	c.Answer("bob", json.RawMessage(`{}`))

	time.Sleep(120 * time.Millisecond)

	for _, frameType := range sender.frameTypes("alice") {
		if frameType == "call_error" {
			t.Fatal("ring timeout fired after the call was answered")
		}
	}
	if state, ok := c.SessionState("alice"); !ok || state != StateConnected {
		t.Fatalf("session state = %v/%v, want connected", state, ok)
	}
}

func TestRejectSuppressesRingTimeout(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())
	c.SetRingTimeout(40 * time.Millisecond)

	if err := c.Offer(context.Background(), offerInput("alice", "bob")); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	c.Reject("bob")

	time.Sleep(120 * time.Millisecond)

	types := sender.frameTypes("alice")
	if len(types) != 1 || types[0] != "call_rejected" {
		t.Fatalf("caller frames = %v, want exactly [call_rejected]", types)
	}
	if _, ok := c.SessionState("bob"); ok {
		t.Fatal("rejected session still live")
	}
}

func TestRejectIsIdempotent(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())

	if err := c.Offer(context.Background(), offerInput("alice", "bob")); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	c.Reject("bob")
	c.Reject("bob")

	if types := sender.frameTypes("alice"); len(types) != 1 {
		t.Fatalf("caller frames = %v, want a single call_rejected", types)
	}
}

func TestEndNotifiesCounterpart(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())

	if err := c.Offer(context.Background(), offerInput("alice", "bob")); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	c.Answer("bob", json.RawMessage(`{}`))
	c.End("alice")

	frame := sender.lastFrame(t, "bob")
	if frame["type"] != "call_ended" {
		t.Fatalf("callee frame = %v, want call_ended", frame)
	}
	if _, ok := c.SessionState("alice"); ok {
		t.Fatal("ended session still live")
	}

	// Duplicate hang-up stays quiet.
	c.End("alice")
	c.End("bob")
	if types := sender.frameTypes("bob"); len(types) != 2 {
		t.Fatalf("callee frames = %v, want offer-era plus one call_ended", types)
	}
}

func TestDisconnectEndsLiveCall(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())

	if err := c.Offer(context.Background(), offerInput("alice", "bob")); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	c.Answer("bob", json.RawMessage(`{}`))
	c.HandleDisconnect("bob")

	frame := sender.lastFrame(t, "alice")
	if frame["type"] != "call_ended" {
		t.Fatalf("caller frame = %v, want call_ended", frame)
	}
	if _, ok := c.SessionState("alice"); ok {
		t.Fatal("session survived its owner's disconnect")
	}
}

func TestICECandidateRelayedToPeer(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())

	if err := c.Offer(context.Background(), offerInput("alice", "bob")); err != nil {
		t.Fatalf("offer failed: %v", err)
	}

	c.ICECandidate("bob", json.RawMessage(`{"candidate":"a=1"}`))
	frame := sender.lastFrame(t, "alice")
	if frame["type"] != "ice_candidate" || frame["fromUserId"] != "bob" {
		t.Fatalf("caller frame = %v, want ice_candidate from bob", frame)
	}

	c.ICECandidate("alice", json.RawMessage(`{"candidate":"a=2"}`))
	frame = sender.lastFrame(t, "bob")
	if frame["type"] != "ice_candidate" || frame["fromUserId"] != "alice" {
		t.Fatalf("callee frame = %v, want ice_candidate from alice", frame)
	}
}

func TestLateICECandidateDropped(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())

	if err := c.Offer(context.Background(), offerInput("alice", "bob")); err != nil {
		t.Fatalf("offer failed: %v", err)
	}
	c.End("alice")

	before := len(sender.frameTypes("alice")) + len(sender.frameTypes("bob"))
	c.ICECandidate("alice", json.RawMessage(`{"candidate":"late"}`))
	c.ICECandidate("bob", json.RawMessage(`{"candidate":"late"}`))
	after := len(sender.frameTypes("alice")) + len(sender.frameTypes("bob"))

	if before != after {
		t.Fatal("late candidates were relayed after teardown")
	}
}

func TestConcurrentOffersToOneCalleeSingleWinner(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(sender, newMemMissedStore())
	ctx := context.Background()

	callers := []string{"alice", "carol", "dave", "erin"}
	errs := make([]error, len(callers))

	var wg sync.WaitGroup
	for i, caller := range callers {
		wg.Add(1)
		go func(i int, caller string) {
			defer wg.Done()
			errs[i] = c.Offer(ctx, offerInput(caller, "bob"))
		}(i, caller)
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrBusy):
		default:
			t.Fatalf("offer from %s = %v, want nil or ErrBusy", callers[i], err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d offers won, want exactly 1", wins)
	}
	if state, ok := c.SessionState("bob"); !ok || state != StateRinging {
		t.Fatalf("callee state = %v/%v, want ringing", state, ok)
	}
}
