package infra

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestRecoverReportsPanic(t *testing.T) {
	t.Parallel()

	if Recover("calm", func() {}) {
		t.Fatalf("no panic expected")
	}
	if !Recover("panicky", func() { panic("boom") }) {
		t.Fatalf("panic should be reported")
	}
}

func TestGoRecoverableStopsAfterLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	done := make(chan struct{})
	GoRecoverable(2, "limited", func() {
		if calls.Add(1) == 3 {
			close(done)
		}
		panic("again")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("job was not restarted, calls=%d", calls.Load())
	}
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 runs, got %d", got)
	}
}

func TestEnsureWorkDir(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	dir, err := EnsureWorkDir(base, "nested", "dir")
	if err != nil {
		t.Fatalf("ensure work dir: %v", err)
	}
	if dir != filepath.Join(base, "nested", "dir") {
		t.Fatalf("unexpected dir %s", dir)
	}
}
