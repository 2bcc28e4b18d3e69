package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordingComponent struct {
	name     string
	journal  *[]string
	startErr error
	stopErr  error
}

func (c *recordingComponent) Start(context.Context) error {
	*c.journal = append(*c.journal, "start:"+c.name)
	return c.startErr
}

func (c *recordingComponent) Stop(context.Context) error {
	*c.journal = append(*c.journal, "stop:"+c.name)
	return c.stopErr
}

func TestRuntimeStopsInReverseOrder(t *testing.T) {
	t.Parallel()

	var journal []string
	r := NewRuntime()
	r.Register("a", &recordingComponent{name: "a", journal: &journal})
	r.Register("nil", nil)
	r.Register("b", &recordingComponent{name: "b", journal: &journal})

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := "start:a,start:b,stop:b,stop:a"
	if got := strings.Join(journal, ","); got != want {
		t.Fatalf("journal = %s, want %s", got, want)
	}
}

func TestRuntimeStartFailureStopsStarted(t *testing.T) {
	t.Parallel()

	var journal []string
	boom := errors.New("boom")
	r := NewRuntime()
	r.Register("a", &recordingComponent{name: "a", journal: &journal})
	r.Register("b", &recordingComponent{name: "b", journal: &journal, startErr: boom})
	r.Register("c", &recordingComponent{name: "c", journal: &journal})

	err := r.Start(context.Background())
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "start b") {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "start:a,start:b,stop:a"
	if got := strings.Join(journal, ","); got != want {
		t.Fatalf("journal = %s, want %s", got, want)
	}
}

func TestRuntimeStopJoinsErrors(t *testing.T) {
	t.Parallel()

	var journal []string
	errA, errB := errors.New("a failed"), errors.New("b failed")
	r := NewRuntime()
	r.Register("a", &recordingComponent{name: "a", journal: &journal, stopErr: errA})
	r.Register("b", &recordingComponent{name: "b", journal: &journal, stopErr: errB})

	err := r.Stop(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both errors, got %v", err)
	}
}
