package eventloop

import (
	"context"
	"testing"
	"time"
)

func TestDrainRunsPostedCallbacksInOrder(t *testing.T) {
	l := New(NewFakeClock(time.Unix(0, 0)))
	var got []int
	for i := 0; i < 3; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if n := l.Drain(); n != 3 {
		t.Fatalf("drained %d, want 3", n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v", got)
		}
	}
}

func TestPostAfterStopIsDropped(t *testing.T) {
	l := New(NewFakeClock(time.Unix(0, 0)))
	l.Stop()
	if l.Post(func() { t.Fatal("must not run") }) {
		t.Fatalf("post after stop must report false")
	}
	if n := l.Drain(); n != 0 {
		t.Fatalf("drained %d, want 0", n)
	}
}

func TestAfterFiresOnAdvance(t *testing.T) {
	clk := NewFakeClock(time.Unix(100, 0))
	l := New(clk)
	fired := false
	l.After(5*time.Second, func() { fired = true })

	clk.Advance(4 * time.Second)
	l.Drain()
	if fired {
		t.Fatalf("fired early")
	}
	clk.Advance(time.Second)
	l.Drain()
	if !fired {
		t.Fatalf("did not fire at deadline")
	}
}

func TestAfterCancelPreventsCallback(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	l := New(clk)
	cancel := l.After(time.Second, func() { t.Fatal("cancelled timer ran") })
	if !cancel() {
		t.Fatalf("cancel must report prevention")
	}
	if cancel() {
		t.Fatalf("second cancel must report false")
	}
	clk.Advance(2 * time.Second)
	l.Drain()
}

func TestRunStopsAfterStop(t *testing.T) {
	l := New(nil)
	ran := false
	l.Post(func() { ran = true })
	l.Stop()
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return")
	}
	if !ran {
		t.Fatalf("queued callback skipped")
	}
}

func TestRunReturnsContextError(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return")
	}
}

func TestCallbackPanicDoesNotKillLoop(t *testing.T) {
	l := New(NewFakeClock(time.Unix(0, 0)))
	ran := false
	l.Post(func() { panic("boom") })
	l.Post(func() { ran = true })
	l.Drain()
	if !ran {
		t.Fatalf("callback after panic skipped")
	}
}

func TestFakeClockFiresInDeadlineOrder(t *testing.T) {
	clk := NewFakeClock(time.Unix(0, 0))
	var got []string
	clk.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	clk.AfterFunc(time.Second, func() { got = append(got, "a") })
	clk.Advance(3 * time.Second)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("order = %v", got)
	}
	if clk.PendingTimers() != 0 {
		t.Fatalf("pending = %d", clk.PendingTimers())
	}
}
