package heartbeat

import (
	"testing"
	"time"
)

func newTestScheduler(interval time.Duration, jitter float64) *Scheduler {
	s := New(DefaultConfig(interval), nil)
	s.randFloat = func() float64 { return 1 - jitter } // firstDelay = interval * jitter
	return s
}

func TestScheduler_FirstBeatJittered(t *testing.T) {
	s := newTestScheduler(100*time.Millisecond, 0.5)
	start := time.Now()
	s.Start()
	defer s.Stop()

	select {
	case <-s.Beats():
		elapsed := time.Since(start)
		if elapsed < 40*time.Millisecond {
			t.Errorf("first beat too early: %v", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("no first beat")
	}
}

func TestScheduler_SteadyCadenceAfterAck(t *testing.T) {
	s := newTestScheduler(50*time.Millisecond, 0.1)
	s.Start()
	defer s.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-s.Beats():
			s.Ack()
		case <-time.After(time.Second):
			t.Fatalf("no beat %d", i)
		}
	}

	select {
	case <-s.Stale():
		t.Fatal("acknowledged cadence must not go stale")
	default:
	}
}

func TestScheduler_MissedAckSignalsStaleOnce(t *testing.T) {
	s := newTestScheduler(30*time.Millisecond, 0.1)
	s.Start()
	defer s.Stop()

	select {
	case <-s.Beats():
		// Deliberately no Ack.
	case <-time.After(time.Second):
		t.Fatal("no first beat")
	}

	select {
	case <-s.Stale():
	case <-time.After(time.Second):
		t.Fatal("expected stale signal after missed ack")
	}

	// The stale channel is closed, so a second receive must not block
	// and no further beats may arrive.
	<-s.Stale()

	select {
	case <-s.Beats():
		t.Fatal("no beat may fire after stale")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScheduler_StopIsSynchronous(t *testing.T) {
	s := newTestScheduler(10*time.Millisecond, 0.1)
	s.Start()

	// Drain one beat so the loop is mid-cadence.
	select {
	case <-s.Beats():
		s.Ack()
	case <-time.After(time.Second):
		t.Fatal("no beat")
	}

	s.Stop()

	select {
	case bt := <-s.Beats():
		// A beat buffered before Stop returned would carry a
		// timestamp from before Stop; anything else is a violation.
		_ = bt
	case <-time.After(50 * time.Millisecond):
	}

	// Calling Stop again must not panic or block.
	s.Stop()
}
