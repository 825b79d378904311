// Copyright 2026 The Fathom Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(90 * time.Second)
	if !c.Now().Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v, want %v", c.Now(), start.Add(90*time.Second))
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	ch := c.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("channel fired before Advance")
	default:
	}

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("channel fired before deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("channel did not fire after deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeSleepBlocksUntilAdvance(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	done := make(chan struct{})
	go func() {
		c.Sleep(10 * time.Second)
		close(done)
	}()

	c.WaitForSleepers(1)
	select {
	case <-done:
		t.Fatal("Sleep returned before Advance")
	default:
	}

	c.Advance(10 * time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeAdvanceReleasesInDeadlineOrder(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	first := c.After(time.Second)
	second := c.After(2 * time.Second)
	if c.PendingCount() != 2 {
		t.Fatalf("PendingCount = %d, want 2", c.PendingCount())
	}

	c.Advance(3 * time.Second)
	<-first
	<-second
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount after Advance = %d, want 0", c.PendingCount())
	}
}
