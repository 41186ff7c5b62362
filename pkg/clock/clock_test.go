package clock

import "testing"

func TestFakeAdvanceAndSet(t *testing.T) {
	f := NewFake(100)
	if f.NowMillis() != 100 {
		t.Fatalf("NowMillis = %d, want 100", f.NowMillis())
	}
	f.Advance(50)
	if f.NowMillis() != 150 {
		t.Fatalf("NowMillis = %d, want 150", f.NowMillis())
	}
	f.Set(9000)
	if f.NowMillis() != 9000 {
		t.Fatalf("NowMillis = %d, want 9000", f.NowMillis())
	}
}

func TestFakeWraparound(t *testing.T) {
	f := NewFake(^uint32(0) - 99) // 2^32 - 100
	f.Advance(200)
	if f.NowMillis() != 100 {
		t.Fatalf("NowMillis = %d, want 100 after wraparound", f.NowMillis())
	}
}

func TestTimerStartStopRunning(t *testing.T) {
	f := NewFake(0)
	timer := NewTimer(f)

	if timer.Running() {
		t.Fatal("expected a fresh timer to be stopped")
	}

	timer.Start()
	if !timer.Running() {
		t.Fatal("expected Start to enter the running state")
	}

	f.Advance(500)
	if timer.Elapsed() != 500 {
		t.Fatalf("Elapsed = %d, want 500", timer.Elapsed())
	}

	timer.Stop()
	if timer.Running() {
		t.Fatal("expected Stop to clear the running state")
	}
}

func TestTimerElapsedAtLeast(t *testing.T) {
	f := NewFake(0)
	timer := NewTimer(f)

	if timer.ElapsedAtLeast(0) {
		t.Fatal("a stopped timer should never satisfy ElapsedAtLeast")
	}

	timer.Start()
	if timer.ElapsedAtLeast(1) {
		t.Fatal("no time has passed yet")
	}
	f.Advance(1000)
	if !timer.ElapsedAtLeast(1000) {
		t.Fatal("expected ElapsedAtLeast(1000) to hold after advancing exactly 1000ms")
	}
	if timer.ElapsedAtLeast(1001) {
		t.Fatal("did not expect ElapsedAtLeast(1001) to hold yet")
	}
}

func TestTimerElapsedAcrossWraparound(t *testing.T) {
	f := NewFake(^uint32(0) - 999)
	timer := NewTimer(f)
	timer.Start()

	f.Set(2000)
	if !timer.ElapsedAtLeast(3000) {
		t.Fatalf("elapsed = %d, want at least 3000 across the rollover", timer.Elapsed())
	}
}
