package model

import "testing"

func TestStateCanAdvanceForward(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StatePending, StateSent, true},
		{StatePending, StateDelivered, true},
		{StateSent, StateDelivered, true},
		{StateDelivered, StateRead, true},
		{StatePending, StateRead, true},
		{StateSent, StatePending, false},
		{StateRead, StateSent, false},
		{StateDelivered, StateSent, false},
		{StateRead, StateRead, false},
	}
	for _, c := range cases {
		if got := c.from.CanAdvance(c.to); got != c.want {
			t.Errorf("%s -> %s = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestFailedIsAbsorbing(t *testing.T) {
	if StateFailed.CanAdvance(StateSent) {
		t.Error("FAILED -> SENT should be rejected")
	}
	if StateFailed.CanAdvance(StateRead) {
		t.Error("FAILED -> READ should be rejected")
	}
}

func TestFailedReachableOnlyEarly(t *testing.T) {
	if !StatePending.CanAdvance(StateFailed) {
		t.Error("PENDING -> FAILED should be allowed")
	}
	if !StateSent.CanAdvance(StateFailed) {
		t.Error("SENT -> FAILED should be allowed")
	}
	if StateDelivered.CanAdvance(StateFailed) {
		t.Error("DELIVERED -> FAILED should be rejected")
	}
	if StateRead.CanAdvance(StateFailed) {
		t.Error("READ -> FAILED should be rejected")
	}
}

func TestEffectiveTimestamp(t *testing.T) {
	c := &ChatSummary{Timestamp: 100}
	if got := c.EffectiveTimestamp(); got != 100 {
		t.Errorf("got %d, want 100 (chat timestamp fallback)", got)
	}
	c.LastMessage = &LastMessage{Timestamp: 200}
	if got := c.EffectiveTimestamp(); got != 200 {
		t.Errorf("got %d, want 200 (last message wins)", got)
	}
}
