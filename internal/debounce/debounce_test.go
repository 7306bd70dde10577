package debounce

import (
	"sync/atomic"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestDo_CollapsesBurst(t *testing.T) {
	d := New(50 * time.Millisecond)
	var calls, last atomic.Int64
	for i := 1; i <= 5; i++ {
		v := int64(i)
		d.Do("note/a", func() {
			calls.Add(1)
			last.Store(v)
		})
	}

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool { return calls.Load() == 1 }, "debounced call never ran")
	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if last.Load() != 5 {
		t.Errorf("ran call %d, want the last one", last.Load())
	}
}

func TestDo_ReportsReplacement(t *testing.T) {
	d := New(time.Hour)
	if d.Do("a", func() {}) {
		t.Error("first Do reported a replacement")
	}
	if !d.Do("a", func() {}) {
		t.Error("second Do did not report a replacement")
	}
	if d.Do("b", func() {}) {
		t.Error("other key reported a replacement")
	}
}

func TestDo_KeysAreIndependent(t *testing.T) {
	d := New(20 * time.Millisecond)
	var calls atomic.Int64
	d.Do("a", func() { calls.Add(1) })
	d.Do("b", func() { calls.Add(1) })
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool { return calls.Load() == 2 }, "expected both keys to fire")
}

func TestCancel(t *testing.T) {
	d := New(30 * time.Millisecond)
	var calls atomic.Int64
	d.Do("a", func() { calls.Add(1) })
	if !d.Cancel("a") {
		t.Fatal("Cancel returned false")
	}
	if d.Cancel("a") {
		t.Error("second Cancel returned true")
	}
	time.Sleep(80 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("cancelled call ran")
	}
}

func TestFlush(t *testing.T) {
	d := New(time.Hour)
	var calls atomic.Int64
	d.Do("a", func() { calls.Add(1) })
	d.Do("b", func() { calls.Add(1) })
	d.Flush()
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if d.Cancel("a") || d.Cancel("b") {
		t.Error("calls still pending after Flush")
	}
}
